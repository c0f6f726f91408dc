package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics tracks operations of one record store ("local" or "remote").
type DatastoreMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	rowsGauge         *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// NewDatastoreMetrics creates and registers datastore metrics.
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register datastore metrics: %w", err)
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biotrack_datastore_operations_total",
			Help: "Total number of record store operations",
		},
		[]string{"store", "operation", "status"},
	)
	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "biotrack_datastore_operation_duration_seconds",
			Help:    "Time taken for record store operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		},
		[]string{"store", "operation"},
	)
	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biotrack_datastore_errors_total",
			Help: "Total number of record store errors",
		},
		[]string{"store", "operation", "error_type"},
	)
	m.rowsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "biotrack_datastore_records",
			Help: "Number of records returned by the last full listing",
		},
		[]string{"store"},
	)
	m.collectors = []prometheus.Collector{m.operationsTotal, m.operationDuration, m.errorsTotal, m.rowsGauge}
}

// Describe implements the Collector interface
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// ForStore returns a Recorder bound to one store label.
func (m *DatastoreMetrics) ForStore(store string) *StoreRecorder {
	return &StoreRecorder{m: m, store: store}
}

// StoreRecorder implements Recorder for a single store.
type StoreRecorder struct {
	m     *DatastoreMetrics
	store string
}

func (r *StoreRecorder) RecordOperation(operation, status string) {
	r.m.operationsTotal.WithLabelValues(r.store, operation, status).Inc()
}

func (r *StoreRecorder) RecordDuration(operation string, seconds float64) {
	r.m.operationDuration.WithLabelValues(r.store, operation).Observe(seconds)
}

func (r *StoreRecorder) RecordError(operation, errorType string) {
	r.m.errorsTotal.WithLabelValues(r.store, operation, errorType).Inc()
}

// SetRecordCount publishes the size of the last full listing.
func (r *StoreRecorder) SetRecordCount(n int) {
	r.m.rowsGauge.WithLabelValues(r.store).Set(float64(n))
}
