package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/checkpoint"
	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/logger"
	"github.com/ajitpratap0/shopsync/pkg/metrics"
	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/notify"
	"github.com/ajitpratap0/shopsync/pkg/observability"
	"github.com/ajitpratap0/shopsync/pkg/warehouse"
)

// Run kinds.
const (
	KindSync     = "sync"
	KindBackfill = "backfill"
)

// RunResult describes a complete run.
type RunResult struct {
	RunID      string
	Kind       string
	StartedAt  time.Time
	FinishedAt time.Time
	Resources  []Result
	Err        error
}

// Succeeded reports whether every requested resource completed.
func (r RunResult) Succeeded() bool { return r.Err == nil }

// Coordinator runs resources in order over one warehouse session.
type Coordinator struct {
	warehouse    warehouse.Warehouse
	orchestrator *Orchestrator
	store        *checkpoint.Store
	notifier     notify.Notifier
	metrics      *metrics.Collector
	logger       *zap.Logger

	running atomic.Bool
}

// NewCoordinator wires a coordinator. A nil notifier discards run events.
func NewCoordinator(wh warehouse.Warehouse, orch *Orchestrator, store *checkpoint.Store, n notify.Notifier, m *metrics.Collector, log *zap.Logger) *Coordinator {
	if n == nil {
		n = notify.Nop{}
	}
	if m == nil {
		m = orch.metrics
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		warehouse:    wh,
		orchestrator: orch,
		store:        store,
		notifier:     n,
		metrics:      m,
		logger:       log.With(zap.String("component", "coordinator")),
	}
}

// RunAll syncs resources in order, stopping at the first failure. An empty
// list syncs models.DefaultResources. Only one run may be active at a time;
// an overlapping call returns ErrRunInProgress without doing anything.
func (c *Coordinator) RunAll(ctx context.Context, resources []models.Resource) (RunResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		return RunResult{}, ErrRunInProgress
	}
	defer c.running.Store(false)

	return c.run(ctx, KindSync, resources)
}

// Running reports whether a run is active.
func (c *Coordinator) Running() bool { return c.running.Load() }

func (c *Coordinator) run(ctx context.Context, kind string, resources []models.Resource) (result RunResult, err error) {
	if len(resources) == 0 {
		resources = models.DefaultResources
	}

	result = RunResult{
		RunID:     uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now().UTC(),
	}
	ctx = logger.WithRun(ctx, result.RunID)
	log := logger.FromContext(ctx, c.logger)

	ctx, span := observability.StartSpan(ctx, "sync.run",
		attribute.String("run_id", result.RunID),
		attribute.String("kind", kind))

	defer func() {
		result.FinishedAt = time.Now().UTC()
		result.Err = err
		c.finish(ctx, log, result)
		observability.EndSpan(span, err)
	}()

	log.Info("sync run started", zap.String("kind", kind), zap.Int("resources", len(resources)))

	session, err := c.warehouse.Connect(ctx)
	if err != nil {
		log.Error("failed to open warehouse session", zap.Error(err))
		return result, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			log.Warn("failed to close warehouse session", zap.Error(closeErr))
			if err == nil {
				err = synerrors.Wrap(closeErr, synerrors.ErrorTypeTransport, "failed to close warehouse session")
			}
		}
	}()

	for _, resource := range resources {
		res, syncErr := c.orchestrator.SyncResource(ctx, session, resource)
		result.Resources = append(result.Resources, res)
		if syncErr != nil {
			return result, syncErr
		}
	}

	if flushErr := c.store.Flush(ctx); flushErr != nil {
		log.Warn("checkpoint state is still unsaved after run", zap.Error(flushErr))
	}
	return result, nil
}

func (c *Coordinator) finish(ctx context.Context, log *zap.Logger, result RunResult) {
	status := notify.StatusSucceeded
	if result.Err != nil {
		status = notify.StatusFailed
	}
	duration := result.FinishedAt.Sub(result.StartedAt)
	c.metrics.ObserveRun(result.Kind, status, duration)

	if sErr := c.metrics.SampleProcess(ctx); sErr != nil {
		log.Debug("failed to sample process stats", zap.Error(sErr))
	}

	if result.Err != nil {
		log.Error("sync run failed", zap.Duration("duration", duration), zap.Error(result.Err))
	} else {
		log.Info("sync run complete", zap.Duration("duration", duration))
	}

	notifyCtx := context.WithoutCancel(ctx)
	if nErr := c.notifier.Notify(notifyCtx, toEvent(result, status)); nErr != nil {
		log.Warn("failed to publish run event", zap.Error(nErr))
	}
}

func toEvent(result RunResult, status string) notify.RunEvent {
	ev := notify.RunEvent{
		RunID:      result.RunID,
		Kind:       result.Kind,
		Status:     status,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Resources:  make([]notify.ResourceEvent, 0, len(result.Resources)),
	}
	if result.Err != nil {
		ev.Error = result.Err.Error()
	}
	for _, r := range result.Resources {
		ev.Resources = append(ev.Resources, notify.ResourceEvent{
			Resource:  r.Resource.String(),
			Fetched:   r.Fetched,
			Written:   r.Written,
			Watermark: r.Watermark,
			Stage:     string(r.Stage),
		})
	}
	return ev
}

// FailedStage returns the stage error of err, if any.
func FailedStage(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
