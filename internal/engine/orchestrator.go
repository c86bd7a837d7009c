// Package engine runs incremental syncs: one resource at a time through
// fetch, map, write and checkpoint, and whole runs across resources over a
// single warehouse session.
package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/checkpoint"
	"github.com/ajitpratap0/shopsync/pkg/logger"
	"github.com/ajitpratap0/shopsync/pkg/mapper"
	"github.com/ajitpratap0/shopsync/pkg/metrics"
	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/observability"
	"github.com/ajitpratap0/shopsync/pkg/retry"
	"github.com/ajitpratap0/shopsync/pkg/warehouse"
)

// DefaultLookback is how far back the first sync of a resource reaches.
const DefaultLookback = 90 * 24 * time.Hour

// Pager fetches every record of a resource changed since a watermark.
type Pager interface {
	FetchAllSince(ctx context.Context, resource models.Resource, since time.Time) ([]models.Record, error)
}

// Options tunes an Orchestrator.
type Options struct {
	// Source names the upstream system in the checkpoint document.
	Source string
	// Lookback is used when a resource has no watermark yet.
	Lookback time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Result describes one resource sync.
type Result struct {
	Resource  models.Resource
	Stage     Stage
	Since     time.Time
	Fetched   int
	Written   map[string]int
	Watermark *time.Time
	Duration  time.Duration
}

// Orchestrator syncs a single resource.
type Orchestrator struct {
	pager   Pager
	store   *checkpoint.Store
	retry   *retry.Executor
	metrics *metrics.Collector
	logger  *zap.Logger

	source   string
	lookback time.Duration
	now      func() time.Time
}

// NewOrchestrator wires an orchestrator. A nil collector or logger is
// replaced by a private collector or a no-op logger.
func NewOrchestrator(pager Pager, store *checkpoint.Store, exec *retry.Executor, opts Options, m *metrics.Collector, log *zap.Logger) *Orchestrator {
	if opts.Source == "" {
		opts.Source = "shopify"
	}
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if m == nil {
		m = metrics.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		pager:    pager,
		store:    store,
		retry:    exec,
		metrics:  m,
		logger:   log.With(zap.String("component", "orchestrator")),
		source:   opts.Source,
		lookback: opts.Lookback,
		now:      opts.Now,
	}
}

// Source returns the upstream system name used for watermarks.
func (o *Orchestrator) Source() string { return o.source }

// SyncResource fetches every record of resource changed since its
// watermark, writes the mapped rows through session and advances the
// watermark. The watermark only moves after every table write committed,
// so a failed sync is retried from the same point by the next run.
func (o *Orchestrator) SyncResource(ctx context.Context, session warehouse.Session, resource models.Resource) (res Result, err error) {
	start := o.now()
	res = Result{Resource: resource, Stage: StageIdle, Written: make(map[string]int)}

	ctx = logger.WithResource(ctx, o.source, resource.String())
	log := logger.FromContext(ctx, o.logger)

	ctx, span := observability.StartSpan(ctx, "sync.resource", attribute.String("resource", resource.String()))
	defer func() {
		res.Duration = o.now().Sub(start)
		status := "succeeded"
		if err != nil {
			status = "failed"
		}
		o.metrics.ObserveResource(resource.String(), status, res.Duration)
		observability.EndSpan(span, err)
	}()

	enter := func(stage Stage) {
		res.Stage = stage
		span.AddEvent(string(stage))
		log.Debug("entering stage", zap.String("stage", string(stage)))
	}
	fail := func(stage Stage, table string, cause error) (Result, error) {
		res.Stage = StageFailed
		log.Error("resource sync failed",
			zap.String("stage", string(stage)),
			zap.String("table", table),
			zap.Error(cause))
		return res, &StageError{Resource: resource, Stage: stage, Table: table, Err: cause}
	}

	// FETCHING
	enter(StageFetching)
	previous := o.store.Get(o.source, resource.String())
	res.Since = o.since(previous)
	log.Info("starting resource sync", zap.Time("since", res.Since), zap.Bool("first_sync", previous == nil))

	fetchRetry := o.retry.WithOnRetry(func(int, time.Duration, error) { o.metrics.Retry("fetch") })
	records, err := retry.Value(ctx, fetchRetry, func(ctx context.Context) ([]models.Record, error) {
		return o.pager.FetchAllSince(ctx, resource, res.Since)
	})
	if err != nil {
		return fail(StageFetching, "", err)
	}
	res.Fetched = len(records)
	o.metrics.RecordsFetched(resource.String(), len(records))

	if len(records) == 0 {
		res.Stage = StageDone
		res.Watermark = previous
		log.Info("no changes since watermark")
		return res, nil
	}

	// MAPPING
	enter(StageMapping)
	plan, err := mapper.ForResource(resource)
	if err != nil {
		return fail(StageMapping, "", err)
	}
	batches, err := plan(records)
	if err != nil {
		return fail(StageMapping, "", err)
	}

	// WRITING
	enter(StageWriting)
	writeRetry := o.retry.WithOnRetry(func(int, time.Duration, error) { o.metrics.Retry("write") })
	for _, batch := range batches {
		if len(batch.Rows) == 0 {
			continue
		}
		batch := batch
		err := writeRetry.Do(ctx, func(ctx context.Context) error {
			return session.InsertBatch(ctx, batch.Table, batch.Rows)
		})
		if err != nil {
			return fail(StageWriting, batch.Table, err)
		}
		res.Written[batch.Table] = len(batch.Rows)
		o.metrics.RowsWritten(resource.String(), batch.Table, len(batch.Rows))
		log.Info("batch written", zap.String("table", batch.Table), zap.Int("rows", len(batch.Rows)))
	}

	// CHECKPOINTING
	enter(StageCheckpointing)
	watermark := NextWatermark(previous, records)
	if watermark.IsZero() {
		// No record carried updated_at and there was no prior watermark.
		watermark = res.Since
	}
	o.store.Set(ctx, o.source, resource.String(), watermark)
	o.metrics.SetWatermark(resource.String(), watermark)
	res.Watermark = &watermark

	res.Stage = StageDone
	log.Info("resource sync complete",
		zap.Int("records", res.Fetched),
		zap.Time("watermark", watermark))
	return res, nil
}

func (o *Orchestrator) since(previous *time.Time) time.Time {
	if previous != nil {
		return *previous
	}
	return o.now().Add(-o.lookback).UTC()
}

// NextWatermark returns the larger of previous and the latest updated_at
// among records, so a watermark never moves backwards.
func NextWatermark(previous *time.Time, records []models.Record) time.Time {
	var out time.Time
	if previous != nil {
		out = *previous
	}
	for _, r := range records {
		if r.UpdatedAt.After(out) {
			out = r.UpdatedAt
		}
	}
	return out.UTC()
}
