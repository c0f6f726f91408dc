package record

import (
	"fmt"

	"github.com/biotrack/biotrack/internal/errors"
)

const component = "record"

// Sentinel errors for the lifecycle error taxonomy. Use errors.Is against these.
var (
	// ErrValidation marks malformed input. Not retryable.
	ErrValidation = errors.NewStd("validation failed")
	// ErrAuthorization marks an actor without the required role or ownership. Not retryable.
	ErrAuthorization = errors.NewStd("not authorized")
	// ErrInvalidTransition marks a status change outside the allowed edges.
	ErrInvalidTransition = errors.NewStd("invalid status transition")
	// ErrUpload marks a transient remote failure. Retryable.
	ErrUpload = errors.NewStd("upload failed")
	// ErrNotFound marks a lookup miss.
	ErrNotFound = errors.NewStd("record not found")
)

// NewValidationError reports a bad field value.
func NewValidationError(field, format string, args ...any) error {
	return errors.New(fmt.Errorf("%w: %s: %s", ErrValidation, field, fmt.Sprintf(format, args...))).
		Component(component).
		Category(errors.CategoryValidation).
		Priority(errors.PriorityLow).
		Context("field", field).
		Build()
}

// NewAuthorizationError reports that actorID may not perform operation.
func NewAuthorizationError(actorID, operation string) error {
	return errors.New(fmt.Errorf("%w: actor %q may not %s", ErrAuthorization, actorID, operation)).
		Component(component).
		Category(errors.CategoryAuthorization).
		Priority(errors.PriorityLow).
		Context("actor_id", actorID).
		Context("operation", operation).
		Build()
}

// NewInvalidTransitionError reports a forbidden status edge.
func NewInvalidTransitionError(key string, from, to Status) error {
	return errors.New(fmt.Errorf("%w: %s cannot move from %q to %q", ErrInvalidTransition, key, from, to)).
		Component(component).
		Category(errors.CategoryState).
		Priority(errors.PriorityMedium).
		Context("record", key).
		Context("from", string(from)).
		Context("to", string(to)).
		Build()
}

// NewNotFoundError reports a missing record.
func NewNotFoundError(key string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrNotFound, key)).
		Component(component).
		Category(errors.CategoryNotFound).
		Priority(errors.PriorityLow).
		Context("record", key).
		Build()
}

// UploadError is the per-record failure collected by a push pass.
type UploadError struct {
	Key string
	Err error
}

// NewUploadError wraps cause for the record identified by key.
func NewUploadError(key string, cause error) *UploadError {
	return &UploadError{Key: key, Err: cause}
}

func (e *UploadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrUpload, e.Key)
	}
	return fmt.Sprintf("%s: %s: %v", ErrUpload, e.Key, e.Err)
}

// Unwrap exposes both ErrUpload and the transport cause.
func (e *UploadError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpload}
	}
	return []error{ErrUpload, e.Err}
}

// ErrorCategory lets upload failures be grouped with network errors.
func (e *UploadError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryNetwork
}

func IsValidation(err error) bool        { return errors.Is(err, ErrValidation) }
func IsAuthorization(err error) bool     { return errors.Is(err, ErrAuthorization) }
func IsInvalidTransition(err error) bool { return errors.Is(err, ErrInvalidTransition) }
func IsUpload(err error) bool            { return errors.Is(err, ErrUpload) }
func IsNotFound(err error) bool          { return errors.Is(err, ErrNotFound) }
