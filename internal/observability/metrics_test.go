package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biotrack/biotrack/internal/observability/metrics"
)

func TestNewMetricsRegistersCollectors(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Lifecycle.RecordSubmission("flora")
	m.Lifecycle.RecordSubmission("flora")
	m.Lifecycle.RecordTransition("fauna", "pending", "approved")
	m.Lifecycle.RecordPush(3, 1)
	m.Lifecycle.RecordSync(metrics.StatusSuccess, 0.2, 2)
	m.Datastore.ForStore("local").RecordOperation(metrics.OpSave, metrics.StatusSuccess)
	m.HTTP.RecordRequest(http.MethodGet, "/api/v1/ranking", http.StatusOK, 0.01)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Lifecycle.SubmissionsTotal.WithLabelValues("flora")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Lifecycle.TransitionsTotal.WithLabelValues("fauna", "pending", "approved")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.Lifecycle.PushResultsTotal.WithLabelValues(metrics.StatusSuccess)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Lifecycle.SkippedPayloads), 0)

	// A second registration of the same collectors must fail.
	_, err = metrics.NewLifecycleMetrics(m.Registry())
	assert.Error(t, err)
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.MQTT.UpdateConnectionStatus(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, "biotrack_mqtt_connection_status 1"))
	assert.Contains(t, text, "go_goroutines")
}
