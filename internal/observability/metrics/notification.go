package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics tracks owner notifications sent through shoutrrr.
type NotificationMetrics struct {
	SentTotal    *prometheus.CounterVec
	ErrorsTotal  *prometheus.CounterVec
	Latency      prometheus.Histogram
	CircuitState prometheus.Gauge
}

// NewNotificationMetrics creates and registers notification metrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{
		SentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "biotrack_notifications_total",
			Help: "Owner notifications by outcome",
		}, []string{"status"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "biotrack_notification_errors_total",
			Help: "Notification failures by error category",
		}, []string{"error_type"}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "biotrack_notification_send_duration_seconds",
			Help:    "Time taken to deliver a notification",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount10),
		}),
		CircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "biotrack_notification_circuit_state",
			Help: "Notifier circuit breaker state (0 closed, 1 half-open, 2 open)",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

// Describe implements the Collector interface
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.SentTotal.Describe(ch)
	m.ErrorsTotal.Describe(ch)
	m.Latency.Describe(ch)
	m.CircuitState.Describe(ch)
}

// Collect implements the Collector interface
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.SentTotal.Collect(ch)
	m.ErrorsTotal.Collect(ch)
	m.Latency.Collect(ch)
	m.CircuitState.Collect(ch)
}

func (m *NotificationMetrics) RecordOperation(_, status string) {
	m.SentTotal.WithLabelValues(status).Inc()
}

func (m *NotificationMetrics) RecordDuration(_ string, seconds float64) {
	m.Latency.Observe(seconds)
}

func (m *NotificationMetrics) RecordError(_, errorType string) {
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// SetCircuitState publishes the breaker state.
func (m *NotificationMetrics) SetCircuitState(state int) {
	m.CircuitState.Set(float64(state))
}
