// Package metrics provides the Prometheus collectors of each subsystem.
package metrics

// Operation label values.
const (
	OpList     = "list"
	OpGet      = "get"
	OpSave     = "save"
	OpSaveAll  = "save_all"
	OpFetch    = "fetch"
	OpUpload   = "upload"
	OpSetState = "set_status"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Histogram bucket layout.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms.
	BucketStart10ms = 0.01
	// BucketStart64B is the starting bucket for byte size histograms.
	BucketStart64B = 64.0
	// BucketFactor2 is the common exponential growth factor.
	BucketFactor2 = 2
	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)
