package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubRunner struct{ runs int }

func (s *stubRunner) Run(ctx context.Context) error {
	s.runs++
	<-ctx.Done()
	return ctx.Err()
}

func TestServiceRunsReconcilerWhenReady(t *testing.T) {
	reconciler := &stubRunner{}
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), DB: stubPinger{}, Redis: stubPinger{}, Reconciler: reconciler})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = svc.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, reconciler.runs)
}

func TestServiceStopsWhenDependencyDown(t *testing.T) {
	reconciler := &stubRunner{}
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), DB: stubPinger{err: errors.New("refused")}, Reconciler: reconciler})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	assert.ErrorContains(t, err, "database ping failed")
	assert.Zero(t, reconciler.runs)
}

func TestNewServiceRequiresReconciler(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.Nop(), DB: stubPinger{}})
	assert.Error(t, err)
}
