package payments

import (
	"context"
	"errors"
	"time"

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

func (r *Repository) Create(ctx context.Context, session *models.PaymentSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *Repository) FindByReference(ctx context.Context, reference string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *Repository) FindByReferenceForUpdate(ctx context.Context, reference string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference = ?", reference).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindOpenByOrderChannel returns the pending session for the order on
// channel, or nil when there is none.
func (r *Repository) FindOpenByOrderChannel(ctx context.Context, orderID uuid.UUID, channel enums.PaymentMethod) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND channel = ? AND state = ?", orderID, channel, enums.SessionStatePending).
		Order("created_at DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListByOrder returns the order's sessions, newest first.
func (r *Repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentSession, error) {
	var sessions []models.PaymentSession
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *Repository) CountOpenForOrder(ctx context.Context, orderID uuid.UUID, exceptID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("order_id = ? AND state = ? AND id <> ?", orderID, enums.SessionStatePending, exceptID).
		Count(&count).Error
	return count, err
}

// ProviderTxTaken reports whether a session other than exceptID already
// settled with the provider transaction txID on channel.
func (r *Repository) ProviderTxTaken(ctx context.Context, channel enums.PaymentMethod, txID string, exceptID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("channel = ? AND provider_tx_id = ? AND id <> ?", channel, txID, exceptID).
		Count(&count).Error
	return count > 0, err
}

// DueSessions returns pending sessions whose next poll time has passed.
func (r *Repository) DueSessions(ctx context.Context, now time.Time, limit int) ([]models.PaymentSession, error) {
	var sessions []models.PaymentSession
	err := r.db.WithContext(ctx).
		Where("state = ? AND next_poll_at <= ?", enums.SessionStatePending, now).
		Order("next_poll_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// StaleSessions returns pending sessions whose lifetime has elapsed.
func (r *Repository) StaleSessions(ctx context.Context, now time.Time, limit int) ([]models.PaymentSession, error) {
	var sessions []models.PaymentSession
	err := r.db.WithContext(ctx).
		Where("state = ? AND expires_at <= ?", enums.SessionStatePending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// UpdateFrom applies updates while the session is still in state from.
func (r *Repository) UpdateFrom(ctx context.Context, id uuid.UUID, from enums.SessionState, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("id = ? AND state = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CloseOpenForOrder expires every pending session of a cancelled order so the
// reconciler stops polling them.
func (r *Repository) CloseOpenForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (int64, error) {
	res := r.WithTx(tx).db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("order_id = ? AND state = ?", orderID, enums.SessionStatePending).
		Updates(map[string]any{
			"state":          enums.SessionStateExpired,
			"failure_reason": reason,
		})
	return res.RowsAffected, res.Error
}
