package enums

import "fmt"

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventPaymentConfirmed   OutboxEventType = "payment_confirmed"
	EventRefundDecided      OutboxEventType = "refund_decided"
	EventReturnDecided      OutboxEventType = "return_decided"
)

var validOutboxEventTypeValues = []OutboxEventType{
	EventOrderStatusChanged,
	EventPaymentConfirmed,
	EventRefundDecided,
	EventReturnDecided,
}

// String implements fmt.Stringer.
func (o OutboxEventType) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OutboxEventType.
func (o OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypeValues {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into a OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypeValues {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
