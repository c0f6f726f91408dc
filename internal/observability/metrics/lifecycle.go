package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics covers submissions, reviews, sync passes and the leaderboard.
type LifecycleMetrics struct {
	SubmissionsTotal   *prometheus.CounterVec
	TransitionsTotal   *prometheus.CounterVec
	PushResultsTotal   *prometheus.CounterVec
	SkippedPayloads    prometheus.Counter
	SyncRunsTotal      *prometheus.CounterVec
	SyncDuration       prometheus.Histogram
	RemoteStatusErrors prometheus.Counter
	LeaderboardUsers   prometheus.Gauge
	RecordsByStatus    *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// NewLifecycleMetrics creates and registers lifecycle metrics.
func NewLifecycleMetrics(registry *prometheus.Registry) (*LifecycleMetrics, error) {
	m := &LifecycleMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register lifecycle metrics: %w", err)
	}
	return m, nil
}

func (m *LifecycleMetrics) initMetrics() {
	m.SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "biotrack_submissions_total",
		Help: "Total number of accepted submissions",
	}, []string{"kind"})

	m.TransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "biotrack_status_transitions_total",
		Help: "Total number of applied status transitions",
	}, []string{"kind", "from", "to"})

	m.PushResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "biotrack_push_results_total",
		Help: "Uploads attempted by push passes by outcome",
	}, []string{"status"})

	m.SkippedPayloads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "biotrack_remote_payloads_skipped_total",
		Help: "Remote payloads dropped because they failed normalization",
	})

	m.SyncRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "biotrack_sync_runs_total",
		Help: "Reconciliation passes by outcome",
	}, []string{"status"})

	m.SyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "biotrack_sync_duration_seconds",
		Help:    "Duration of reconciliation passes",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
	})

	m.RemoteStatusErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "biotrack_remote_status_errors_total",
		Help: "Reviews whose remote status update failed",
	})

	m.LeaderboardUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "biotrack_leaderboard_users",
		Help: "Users with at least one approved record",
	})

	m.RecordsByStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "biotrack_records",
		Help: "Records in the merged view after the last sync",
	}, []string{"kind", "status"})

	m.collectors = []prometheus.Collector{
		m.SubmissionsTotal, m.TransitionsTotal, m.PushResultsTotal, m.SkippedPayloads,
		m.SyncRunsTotal, m.SyncDuration, m.RemoteStatusErrors, m.LeaderboardUsers, m.RecordsByStatus,
	}
}

// Describe implements the Collector interface
func (m *LifecycleMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *LifecycleMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordSubmission counts one accepted submission.
func (m *LifecycleMetrics) RecordSubmission(kind string) {
	m.SubmissionsTotal.WithLabelValues(kind).Inc()
}

// RecordTransition counts one applied status change.
func (m *LifecycleMetrics) RecordTransition(kind, from, to string) {
	m.TransitionsTotal.WithLabelValues(kind, from, to).Inc()
}

// RecordPush adds the outcome of a push pass.
func (m *LifecycleMetrics) RecordPush(succeeded, failed int) {
	m.PushResultsTotal.WithLabelValues(StatusSuccess).Add(float64(succeeded))
	m.PushResultsTotal.WithLabelValues(StatusError).Add(float64(failed))
}

// RecordSync observes one reconciliation pass.
func (m *LifecycleMetrics) RecordSync(status string, seconds float64, skipped int) {
	m.SyncRunsTotal.WithLabelValues(status).Inc()
	m.SyncDuration.Observe(seconds)
	m.SkippedPayloads.Add(float64(skipped))
}
