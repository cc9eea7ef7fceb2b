// Package catalog answers price lookups for order placement. Catalog CRUD
// lives elsewhere; this side only reads.
package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

// Repository reads products from the shared catalog tables.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// PricesFor returns the active products keyed by id. Every requested id must
// resolve to an active product.
func (r *Repository) PricesFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]models.Product{}, nil
	}
	unique := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	var rows []models.Product
	if err := r.db.WithContext(ctx).
		Where("id IN ?", unique).
		Where("is_active = ?", true).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog prices")
	}

	out := make(map[uuid.UUID]models.Product, len(rows))
	for _, row := range rows {
		out[row.ID] = row
	}
	missing := make([]string, 0)
	for _, id := range unique {
		if _, ok := out[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown or inactive product").
			WithDetails(map[string]any{"product_ids": missing})
	}
	return out, nil
}
