package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

type fakePruner struct {
	cutoff time.Time
	calls  int
	err    error
}

func (f *fakePruner) DeletePublishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	return 3, f.err
}

func TestOutboxRetentionJobUsesRetentionWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakePruner{}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), Repository: repo, Retention: 48 * time.Hour})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	job.(*outboxRetentionJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if want := now.Add(-48 * time.Hour); !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
	if job.Name() != "outbox-retention" {
		t.Fatalf("unexpected name %q", job.Name())
	}
}

func TestOutboxRetentionJobDefaultsAndErrors(t *testing.T) {
	repo := &fakePruner{err: errors.New("boom")}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), Repository: repo})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if got := job.(*outboxRetentionJob).retention; got != defaultOutboxRetention {
		t.Fatalf("expected default retention, got %s", got)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected repository error")
	}
	if _, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected missing repository to fail")
	}
}

type fakeExpirer struct {
	n   int
	err error
}

func (f *fakeExpirer) ExpireStale(context.Context) (int, error) { return f.n, f.err }

func TestStaleSessionsJob(t *testing.T) {
	job, err := NewStaleSessionsJob(logger.Nop(), &fakeExpirer{n: 2})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	job, _ = NewStaleSessionsJob(logger.Nop(), &fakeExpirer{err: errors.New("db down")})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected expirer error")
	}
	if _, err := NewStaleSessionsJob(logger.Nop(), nil); err == nil {
		t.Fatal("expected missing expirer to fail")
	}
}
