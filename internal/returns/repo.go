package returns

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts the request together with its items.
func (r *Repository) Create(ctx context.Context, req *models.ReturnRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var req models.ReturnRequest
	if err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var req models.ReturnRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("return_request_id = ?", id).Find(&req.Items).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ReturnRequest, error) {
	var out []models.ReturnRequest
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// RequestedQuantities sums item quantities per line item over every request
// of the order that has not been rejected.
func (r *Repository) RequestedQuantities(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]int, error) {
	type row struct {
		LineItemID uuid.UUID
		Qty        int
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Table("return_request_items AS i").
		Select("i.line_item_id AS line_item_id, SUM(i.qty) AS qty").
		Joins("JOIN return_requests AS r ON r.id = i.return_request_id").
		Where("r.order_id = ? AND r.status <> ?", orderID, enums.ReturnStatusRejected).
		Group("i.line_item_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int, len(rows))
	for _, rw := range rows {
		out[rw.LineItemID] = rw.Qty
	}
	return out, nil
}

// UpdateFrom applies updates only while the request is still in from.
func (r *Repository) UpdateFrom(ctx context.Context, id uuid.UUID, from enums.ReturnStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
