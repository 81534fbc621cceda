package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.LocationUpdate("ok")
	m.LocationUpdate("invalid")
	m.LocationUpdate("ok")
	m.NearbyQuery("ok", 3*time.Millisecond)
	m.Message("ping")
	m.Eviction()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.locationUpdates.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.nearbyQueries.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evictions))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnectionOpened()
		m.LocationUpdate("ok")
		m.NearbyQuery("ok", time.Second)
		m.Message("ping")
		m.Eviction()
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Message("location_update")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `caddate_realtime_messages_total{type="location_update"} 1`)
}
