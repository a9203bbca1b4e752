package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExportCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.IncProduced()
	m.IncProduced()
	m.IncRejected("already_produced")
	m.IncCascadeWarning("order")
	m.ObserveProduction(20 * time.Millisecond)
	m.ObserveRequest("POST", "/schedules/{id}/produce", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.produced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("already_produced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cascadeWarnings.WithLabelValues("order")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "/schedules/{id}/produce", "200")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["distline_production_duration_seconds"])
	assert.True(t, names["distline_http_request_duration_seconds"])
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.IncProduced()
	m.IncCascadeWarning("return")
	m.ObserveRequest("GET", "", 200, time.Second)

	empty := New(nil)
	empty.IncRejected("x")
	empty.ObserveProduction(time.Second)
}
