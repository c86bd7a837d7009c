package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/models"
)

// Backfill re-syncs resources from start. Their watermarks are moved to
// start for the duration of the run and every watermark of the source is
// restored afterwards, whether the run succeeded or not, so scheduled syncs
// continue from where they were.
//
// The upstream filter has no upper bound: end is validated and logged, and
// records changed after end are synced too.
func (c *Coordinator) Backfill(ctx context.Context, start, end time.Time, resources []models.Resource) (RunResult, error) {
	if start.IsZero() {
		return RunResult{}, synerrors.New(synerrors.ErrorTypeValidation, "backfill start is required")
	}
	if !end.IsZero() && end.Before(start) {
		return RunResult{}, synerrors.New(synerrors.ErrorTypeValidation, "backfill end is before start").
			WithDetail("start", start).
			WithDetail("end", end)
	}
	if len(resources) == 0 {
		resources = models.DefaultResources
	}

	if !c.running.CompareAndSwap(false, true) {
		return RunResult{}, ErrRunInProgress
	}
	defer c.running.Store(false)

	source := c.orchestrator.Source()
	snapshot := c.store.Snapshot(source)
	c.logger.Info("backfill started",
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("resources", len(resources)))

	defer func() {
		c.store.Restore(context.WithoutCancel(ctx), source, snapshot)
		c.logger.Info("watermarks restored after backfill")
	}()

	for _, r := range resources {
		c.store.Set(ctx, source, r.String(), start.UTC())
	}

	return c.run(ctx, KindBackfill, resources)
}
