package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

// OutboxEvent is an order or payment notification recorded in the same
// transaction as the state change it describes. The publisher drains it.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`

	// delivery bookkeeping
	PublishedAt   *time.Time `gorm:"column:published_at"`
	FailedAt      *time.Time `gorm:"column:failed_at"`
	AttemptCount  int        `gorm:"column:attempt_count;not null;default:0"`
	NextAttemptAt *time.Time `gorm:"column:next_attempt_at"`
	LastError     *string    `gorm:"column:last_error"`
}

// Delivered reports whether the event reached a final state.
func (e OutboxEvent) Delivered() bool {
	return e.PublishedAt != nil || e.FailedAt != nil
}

// MessageAttributes are the broker attributes subscribers filter on.
func (e OutboxEvent) MessageAttributes(eventID string) map[string]string {
	return map[string]string{
		"event_id":       eventID,
		"event_type":     string(e.EventType),
		"aggregate_type": string(e.AggregateType),
		"aggregate_id":   e.AggregateID.String(),
		"created_at":     e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (e OutboxEvent) LogFields() map[string]any {
	fields := map[string]any{
		"outbox_id":      e.ID.String(),
		"event_type":     e.EventType,
		"aggregate_type": e.AggregateType,
		"aggregate_id":   e.AggregateID.String(),
		"attempt_count":  e.AttemptCount,
	}
	if e.LastError != nil {
		fields["last_error"] = *e.LastError
	}
	return fields
}
