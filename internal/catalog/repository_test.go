package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-orders/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

func TestPricesFor(t *testing.T) {
	db := dbtest.Open(t)
	shirt := models.Product{SKU: "TSHIRT", Name: "T-shirt", PriceCents: 1000, IsActive: true}
	mug := models.Product{SKU: "MUG", Name: "Mug", PriceCents: 500, IsActive: true}
	require.NoError(t, db.Create(&shirt).Error)
	require.NoError(t, db.Create(&mug).Error)

	repo := NewRepository(db)
	prices, err := repo.PricesFor(context.Background(), []uuid.UUID{shirt.ID, mug.ID, shirt.ID})
	require.NoError(t, err)
	assert.Len(t, prices, 2)
	assert.Equal(t, int64(1000), prices[shirt.ID].PriceCents)
	assert.Equal(t, "Mug", prices[mug.ID].Name)
}

func TestPricesForRejectsUnknownAndInactive(t *testing.T) {
	db := dbtest.Open(t)
	retired := models.Product{SKU: "OLD", Name: "Retired", PriceCents: 100, IsActive: true}
	require.NoError(t, db.Create(&retired).Error)
	require.NoError(t, db.Model(&retired).Update("is_active", false).Error)

	repo := NewRepository(db)
	_, err := repo.PricesFor(context.Background(), []uuid.UUID{retired.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = repo.PricesFor(context.Background(), []uuid.UUID{uuid.New()})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
