// Package metrics exposes shopsync's Prometheus metrics.
//
// A Collector owns its own registry so several can coexist in tests. The
// process-wide collector used by the CLI is created with New and served by
// Serve on the configured address.
//
// # Basic Usage
//
//	m := metrics.New()
//	m.RecordsFetched("orders", 250)
//	m.RowsWritten("orders", "ORDER_ITEMS", 612)
//	m.SetWatermark("orders", lastSync)
//
//	timer := metrics.NewTimer("orders")
//	syncOrders()
//	m.ObserveResource("orders", "succeeded", timer.Stop())
package metrics

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

const namespace = "shopsync"

// Collector holds every metric the sync engine records.
type Collector struct {
	registry *prometheus.Registry

	recordsFetched   *prometheus.CounterVec
	rowsWritten      *prometheus.CounterVec
	retries          *prometheus.CounterVec
	persistFailures  prometheus.Counter
	runs             *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	resourceDuration *prometheus.HistogramVec
	watermark        *prometheus.GaugeVec
	processRSS       prometheus.Gauge
	processCPU       prometheus.Gauge
}

// New creates a collector with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		recordsFetched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Records fetched from the upstream API",
		}, []string{"resource"}),
		rowsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows committed to the warehouse",
		}, []string{"resource", "table"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retried operation attempts",
		}, []string{"operation"}),
		persistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_persist_failures_total",
			Help:      "Checkpoint document writes that failed",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed sync runs by kind and status",
		}, []string{"kind", "status"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of complete sync runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"kind"}),
		resourceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resource_sync_duration_seconds",
			Help:      "Duration of a single resource sync",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		}, []string{"resource", "status"}),
		watermark: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watermark_timestamp_seconds",
			Help:      "Committed watermark per resource as a unix timestamp",
		}, []string{"resource"}),
		processRSS: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_rss_bytes",
			Help:      "Resident set size sampled after each run",
		}),
		processCPU: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_cpu_percent",
			Help:      "Process CPU usage sampled after each run",
		}),
	}
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RecordsFetched counts fetched upstream records.
func (c *Collector) RecordsFetched(resource string, n int) {
	c.recordsFetched.WithLabelValues(resource).Add(float64(n))
}

// RowsWritten counts committed warehouse rows.
func (c *Collector) RowsWritten(resource, table string, n int) {
	c.rowsWritten.WithLabelValues(resource, table).Add(float64(n))
}

// Retry counts one retried attempt of operation.
func (c *Collector) Retry(operation string) {
	c.retries.WithLabelValues(operation).Inc()
}

// PersistFailure counts a failed checkpoint write.
func (c *Collector) PersistFailure() {
	c.persistFailures.Inc()
}

// ObserveRun records a finished run.
func (c *Collector) ObserveRun(kind, status string, d time.Duration) {
	c.runs.WithLabelValues(kind, status).Inc()
	c.runDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveResource records a finished resource sync.
func (c *Collector) ObserveResource(resource, status string, d time.Duration) {
	c.resourceDuration.WithLabelValues(resource, status).Observe(d.Seconds())
}

// SetWatermark publishes the committed watermark of resource.
func (c *Collector) SetWatermark(resource string, t time.Time) {
	c.watermark.WithLabelValues(resource).Set(float64(t.Unix()))
}

// SampleProcess records the current process RSS and CPU usage.
func (c *Collector) SampleProcess(ctx context.Context) error {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		return err
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return err
	}
	c.processRSS.Set(float64(mem.RSS))

	cpu, err := p.CPUPercentWithContext(ctx)
	if err != nil {
		return err
	}
	c.processCPU.Set(cpu)
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes the metrics on addr at path until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr, path string, logger *zap.Logger) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, c.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", addr), zap.String("path", path))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Timer measures the duration of one operation.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer starts a timer.
func NewTimer(name string) *Timer {
	return &Timer{start: time.Now(), name: name}
}

// Name returns the timer's name.
func (t *Timer) Name() string { return t.name }

// Stop returns the time elapsed since the timer started. It may be called
// more than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
