package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

const envelopeSource = "storefront-orders"

// ActorRef is the customer, admin or system process behind an event.
type ActorRef struct {
	UserID *uuid.UUID `json:"userId,omitempty"`
	Role   string     `json:"role"`
}

// PayloadEnvelope wraps every event payload written to outbox_events.
// Subscribers key idempotency on EventID.
type PayloadEnvelope struct {
	Version    int                   `json:"version"`
	EventID    string                `json:"eventId"`
	Type       enums.OutboxEventType `json:"type,omitempty"`
	Source     string                `json:"source,omitempty"`
	OccurredAt time.Time             `json:"occurredAt"`
	Actor      *ActorRef             `json:"actor,omitempty"`
	Data       json.RawMessage       `json:"data"`
}

var errMissingEventID = errors.New("envelope missing event id")

// DecodeEnvelope parses a stored payload. Rows that fail here can never be
// published and are marked terminal by the publisher.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return envelope, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.EventID == "" {
		return envelope, errMissingEventID
	}
	if envelope.Version > currentVersion {
		return envelope, fmt.Errorf("envelope version %d is newer than %d", envelope.Version, currentVersion)
	}
	return envelope, nil
}
