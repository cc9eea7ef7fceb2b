package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/internal/inventory"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/outbox"
)

// Repository defines persistence operations for orders, line items and the
// tracking log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	AppendTracking(ctx context.Context, entry *models.OrderTrackingEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListTracking(ctx context.Context, orderID uuid.UUID) ([]models.OrderTrackingEntry, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error)
	UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PriceLookup supplies current catalog prices.
type PriceLookup interface {
	PricesFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// StockLedger reserves and returns inventory inside the caller's transaction.
type StockLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, m inventory.Movement) error
	ReleaseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int, error)
}

// DiscountLedger consumes and restores promotional code uses.
type DiscountLedger interface {
	Consume(ctx context.Context, tx *gorm.DB, code string, orderID uuid.UUID) (int64, error)
	Restore(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error)
}

// SessionCloser stops payment collection for a cancelled order.
type SessionCloser interface {
	CloseOpenForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (int64, error)
}

type notifier interface {
	Notify(ctx context.Context, event outbox.DomainEvent)
}
