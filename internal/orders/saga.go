package orders

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/metrics"
)

type undoStep struct {
	name string
	undo func(ctx context.Context) error
}

// compensator records the undo action of every applied creation step and
// replays them newest first when a later step fails. Each undo must be
// idempotent.
type compensator struct {
	steps   []undoStep
	logg    *logger.Logger
	metrics *metrics.OrderMetrics
}

func newCompensator(logg *logger.Logger, m *metrics.OrderMetrics) *compensator {
	return &compensator{logg: logg, metrics: m}
}

func (c *compensator) add(name string, undo func(ctx context.Context) error) {
	c.steps = append(c.steps, undoStep{name: name, undo: undo})
}

// run executes every recorded undo even when an earlier one fails. A failure
// here leaves the ledgers inconsistent and is logged for manual repair.
func (c *compensator) run(ctx context.Context) error {
	if len(c.steps) == 0 {
		return nil
	}
	var errs error
	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		if err := step.undo(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", step.name, err))
			if c.logg != nil {
				c.logg.Critical(c.logg.WithField(ctx, "step", step.name), "order creation compensation failed", err)
			}
		}
	}
	c.steps = nil
	if errs != nil {
		c.metrics.Compensation("failed")
		return errs
	}
	c.metrics.Compensation("applied")
	return nil
}
