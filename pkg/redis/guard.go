package redis

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DeliveryStore is the subset of the client the delivery guard depends on.
type DeliveryStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookKey(channel, deliveryID string) string
}

// DeliveryGuard remembers which provider callbacks were already handled.
type DeliveryGuard struct {
	store   DeliveryStore
	ttl     time.Duration
	channel string
}

func NewDeliveryGuard(store DeliveryStore, ttl time.Duration, channel string) (*DeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("delivery store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if channel == "" {
		return nil, errors.New("channel is required")
	}
	return &DeliveryGuard{store: store, ttl: ttl, channel: channel}, nil
}

// CheckAndMark records deliveryID and reports whether it had been seen before.
func (g *DeliveryGuard) CheckAndMark(ctx context.Context, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, errors.New("delivery id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookKey(g.channel, deliveryID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set delivery key: %w", err)
	}
	return !set, nil
}

// Delete forgets deliveryID so a failed delivery can be retried by the provider.
func (g *DeliveryGuard) Delete(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	return g.store.Del(ctx, g.store.WebhookKey(g.channel, deliveryID))
}
