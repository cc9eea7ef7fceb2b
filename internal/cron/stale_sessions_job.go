package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

type sessionExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// NewStaleSessionsJob expires pending payment sessions whose lifetime ran out
// while no reconciler was polling them.
func NewStaleSessionsJob(logg *logger.Logger, expirer sessionExpirer) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if expirer == nil {
		return nil, fmt.Errorf("session expirer required")
	}
	return &staleSessionsJob{logg: logg, expirer: expirer}, nil
}

type staleSessionsJob struct {
	logg    *logger.Logger
	expirer sessionExpirer
}

func (j *staleSessionsJob) Name() string { return "stale-sessions" }

func (j *staleSessionsJob) Run(ctx context.Context) error {
	expired, err := j.expirer.ExpireStale(ctx)
	if err != nil {
		return fmt.Errorf("expire stale sessions: %w", err)
	}
	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "sessions_expired", expired), "stale payment sessions expired")
	}
	return nil
}
