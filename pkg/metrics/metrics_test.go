package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	c := New()

	c.RecordsFetched("orders", 250)
	c.RecordsFetched("orders", 10)
	c.RowsWritten("orders", "ORDER_ITEMS", 40)
	c.Retry("fetch")
	c.PersistFailure()
	c.ObserveRun("sync", "succeeded", 3*time.Second)

	assert.Equal(t, 260.0, testutil.ToFloat64(c.recordsFetched.WithLabelValues("orders")))
	assert.Equal(t, 40.0, testutil.ToFloat64(c.rowsWritten.WithLabelValues("orders", "ORDER_ITEMS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retries.WithLabelValues("fetch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.persistFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("sync", "succeeded")))
}

func TestCollector_Watermark(t *testing.T) {
	c := New()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.SetWatermark("customers", ts)
	assert.Equal(t, float64(ts.Unix()), testutil.ToFloat64(c.watermark.WithLabelValues("customers")))
}

func TestCollector_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.PersistFailure()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.persistFailures))
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.RecordsFetched("products", 3)
	require.NoError(t, c.SampleProcess(context.Background()))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `shopsync_records_fetched_total{resource="products"} 3`)
	assert.Contains(t, string(body), "shopsync_process_rss_bytes")
}

func TestTimer(t *testing.T) {
	timer := NewTimer("sync")
	assert.Equal(t, "sync", timer.Name())
	assert.GreaterOrEqual(t, timer.Stop(), time.Duration(0))
}
