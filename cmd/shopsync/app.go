package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/internal/engine"
	"github.com/ajitpratap0/shopsync/pkg/checkpoint"
	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/logger"
	"github.com/ajitpratap0/shopsync/pkg/metrics"
	"github.com/ajitpratap0/shopsync/pkg/notify"
	"github.com/ajitpratap0/shopsync/pkg/observability"
	"github.com/ajitpratap0/shopsync/pkg/paginator"
	"github.com/ajitpratap0/shopsync/pkg/retry"
	"github.com/ajitpratap0/shopsync/pkg/shopify"
	"github.com/ajitpratap0/shopsync/pkg/warehouse"
)

// app holds every long-lived component of a process.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Collector

	store        *checkpoint.Store
	closeBackend func() error

	warehouse   warehouse.Warehouse
	notifier    notify.Notifier
	coordinator *engine.Coordinator

	shutdownTracing observability.ShutdownFunc
}

// loadConfig reads .env files, the optional config file and the
// environment, optionally validates the result and initializes the global
// logger.
func loadConfig(configFile string, envFiles []string, validate bool) (*config.Config, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// openStore opens the checkpoint store on the configured backend.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*checkpoint.Store, func() error, error) {
	backend, closeFn, err := checkpoint.NewBackend(ctx, cfg.Checkpoint)
	if err != nil {
		return nil, nil, err
	}

	store, err := checkpoint.Open(ctx, backend, checkpoint.DefaultDocument(cfg.Sync.Source, cfg.Sync.Resources), log)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

// newApp wires the sync engine from cfg.
func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{
		cfg:     cfg,
		log:     logger.Get().With(zap.String("component", "shopsync-cli")),
		metrics: metrics.New(),
	}
	defer func() {
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.shutdownTracing, err = observability.Init(observability.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return a, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	a.store, a.closeBackend, err = openStore(ctx, cfg, a.log)
	if err != nil {
		return a, err
	}
	a.store.OnPersistError = func(error) { a.metrics.PersistFailure() }

	client, err := shopify.NewClient(cfg.Shopify, a.log)
	if err != nil {
		return a, err
	}
	pcfg, err := cfg.PaginatorConfig()
	if err != nil {
		return a, err
	}
	pager := paginator.New(client, pcfg, a.log)

	a.warehouse, err = warehouse.New(ctx, cfg.Warehouse, a.log)
	if err != nil {
		return a, err
	}

	a.notifier = notify.Nop{}
	if cfg.Notify.Enabled {
		kn, kErr := notify.NewKafka(cfg.Notify, a.log)
		if kErr != nil {
			return a, kErr
		}
		a.notifier = kn
	}

	exec := retry.New(cfg.Sync.RetryAttempts, cfg.Sync.RetryDelay, a.log)
	orch := engine.NewOrchestrator(pager, a.store, exec, engine.Options{
		Source:   cfg.Sync.Source,
		Lookback: cfg.Lookback(),
	}, a.metrics, a.log)
	a.coordinator = engine.NewCoordinator(a.warehouse, orch, a.store, a.notifier, a.metrics, a.log)
	return a, nil
}

// runContext applies the configured run timeout.
func (a *app) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Sync.RunTimeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Sync.RunTimeout)
	}
	return context.WithCancel(ctx)
}

// serveMetrics exposes Prometheus metrics until ctx is done when enabled.
func (a *app) serveMetrics(ctx context.Context) {
	if !a.cfg.Metrics.Enabled {
		return
	}
	go func() {
		if err := a.metrics.Serve(ctx, a.cfg.Metrics.Addr, a.cfg.Metrics.Path, a.log); err != nil {
			a.log.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

// Close releases every component that was opened.
func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Flush(ctx); err != nil {
			a.log.Warn("failed to flush checkpoint state", zap.Error(err))
		}
	}
	if a.closeBackend != nil {
		if err := a.closeBackend(); err != nil {
			a.log.Warn("failed to close checkpoint backend", zap.Error(err))
		}
	}
	if a.warehouse != nil {
		if err := a.warehouse.Close(); err != nil {
			a.log.Warn("failed to close warehouse", zap.Error(err))
		}
	}
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.log.Warn("failed to close notifier", zap.Error(err))
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.log.Warn("failed to shut down tracing", zap.Error(err))
		}
	}
	_ = logger.Sync()
}
