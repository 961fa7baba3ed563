package observability

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRequestAndError(t *testing.T) {
	m := NewMetrics()
	route := "/test/metrics"

	before := testutil.ToFloat64(HTTPRequests.WithLabelValues(route, http.MethodGet, "200"))
	m.RecordRequest(route, http.MethodGet, http.StatusOK, 5*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequests.WithLabelValues(route, http.MethodGet, "200")))

	m.RecordError(route, http.MethodGet, "CONFLICT")
	assert.GreaterOrEqual(t, testutil.ToFloat64(HTTPErrors.WithLabelValues(route, http.MethodGet, "CONFLICT")), 1.0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/x", http.MethodGet, http.StatusOK, time.Millisecond)
		m.RecordError("/x", http.MethodGet, "INTERNAL_ERROR")
	})
}
