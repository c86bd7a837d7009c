// Package scheduler triggers sync runs at a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/internal/engine"
	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs a Job every interval. A trigger that fires while the
// previous run is still active is skipped. Failures are logged and never
// stop the schedule.
type Scheduler struct {
	interval time.Duration
	job      Job
	cron     *cron.Cron
	logger   *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	runs   int
}

// New builds a scheduler. The interval must be at least one second.
func New(interval time.Duration, job Job, logger *zap.Logger) (*Scheduler, error) {
	if interval < time.Second {
		return nil, synerrors.Newf(synerrors.ErrorTypeConfig, "schedule interval %s is below one second", interval)
	}
	if job == nil {
		return nil, synerrors.New(synerrors.ErrorTypeConfig, "scheduled job is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "scheduler"))

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		interval: interval,
		job:      job,
		logger:   logger,
		cron: cron.New(
			cron.WithLogger(cl),
			// Recover must wrap the job inside SkipIfStillRunning, or a
			// panic never releases the running slot.
			cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
		),
	}

	spec := fmt.Sprintf("@every %s", interval)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, synerrors.Wrap(err, synerrors.ErrorTypeConfig, "invalid schedule").WithDetail("spec", spec)
	}
	return s, nil
}

// Start begins triggering. Runs receive a context derived from ctx that is
// cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
}

// Stop stops triggering, cancels an active run and waits for it to return.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-done.Done()
	s.logger.Info("scheduler stopped")
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
}

// Runs returns how many triggers invoked the job.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.runs++
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	err := s.job(ctx)
	switch {
	case err == nil:
		s.logger.Info("scheduled sync finished", zap.Duration("duration", time.Since(start)))
	case errors.Is(err, engine.ErrRunInProgress):
		s.logger.Info("scheduled sync skipped, previous run still active")
	case errors.Is(err, context.Canceled):
		s.logger.Info("scheduled sync cancelled")
	default:
		s.logger.Error("scheduled sync failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
