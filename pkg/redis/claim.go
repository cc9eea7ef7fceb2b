package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ClaimStore is the subset of the client the claimer depends on.
type ClaimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseOwned(ctx context.Context, key, owner string) (bool, error)
	ClaimKey(scope, id string) string
}

// Claimer hands out short-lived exclusive claims so two workers never
// process the same resource at once. A claim expires on its own if the
// holder dies.
type Claimer struct {
	store ClaimStore
	scope string
	ttl   time.Duration
}

func NewClaimer(store ClaimStore, scope string, ttl time.Duration) (*Claimer, error) {
	if store == nil {
		return nil, errors.New("redis store required for claimer")
	}
	if scope == "" {
		return nil, errors.New("claim scope is required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Claimer{store: store, scope: scope, ttl: ttl}, nil
}

// Claim tries to take id. On success the returned release func gives the
// claim back if it is still owned by this caller.
func (c *Claimer) Claim(ctx context.Context, id string) (func(context.Context) error, bool, error) {
	key := c.store.ClaimKey(c.scope, id)
	owner := uuid.NewString()
	ok, err := c.store.SetNX(ctx, key, owner, c.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("claim %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		_, err := c.store.ReleaseOwned(ctx, key, owner)
		return err
	}
	return release, true, nil
}
