package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := NewCollector("recon")
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	c.RecordRun("expenses", "success", 2*time.Second)
	c.RecordRun("expenses", "success", time.Second)
	c.RecordBuckets(map[string]int{"matched": 3, "unmatched_a": 1})
	c.RecordViolation("invoices")
	c.RecordHTTP("GET", "/health", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.runs.WithLabelValues("expenses", "success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.records.WithLabelValues("matched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.violations.WithLabelValues("invoices")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/health", "200")))
}

func TestCollector_Nil(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordRun("p", "failed", time.Second)
		c.RecordBuckets(map[string]int{"matched": 1})
		c.RecordViolation("p")
		c.RecordHTTP("GET", "/", 500, time.Second)
	})
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("recon")
	c.RecordRun("invoices", "failed", time.Second)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `recon_runs_total{profile="invoices",status="failed"} 1`)
}
