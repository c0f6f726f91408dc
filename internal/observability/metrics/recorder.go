package metrics

// Recorder is the minimal metric surface components depend on, so tests can
// pass a no-op or a fake instead of real collectors.
type Recorder interface {
	// RecordOperation counts an operation with its outcome ("success", "error").
	RecordOperation(operation, status string)
	// RecordDuration observes the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)
	// RecordError counts an error with its category.
	RecordError(operation, errorType string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordOperation(string, string) {}
func (NopRecorder) RecordDuration(string, float64) {}
func (NopRecorder) RecordError(string, string) {}
