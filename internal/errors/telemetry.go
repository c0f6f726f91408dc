// Package errors - telemetry integration (optional)
package errors

import (
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

var telemetryReporter atomic.Pointer[TelemetryReporter]

// SetTelemetryReporter installs the reporter used by Build. Passing nil disables reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	if reporter == nil {
		telemetryReporter.Store(nil)
	} else {
		telemetryReporter.Store(&reporter)
	}

	hooksMu.RLock()
	hasHooks := len(errorHooks) > 0
	hooksMu.RUnlock()
	hasActiveReporting.Store(hasHooks || reporter != nil)
}

func currentReporter() TelemetryReporter {
	ptr := telemetryReporter.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// reportToTelemetry forwards only errors that are worth an alert. Validation and
// authorization failures are caller mistakes and stay local.
func reportToTelemetry(ee *EnhancedError) {
	reporter := currentReporter()
	if reporter == nil || !reporter.IsEnabled() || ee.IsReported() {
		return
	}
	switch ee.Category {
	case CategoryValidation, CategoryAuthorization, CategoryNotFound, CategoryState:
		return
	}
	if ee.Priority == PriorityLow {
		return
	}
	reporter.ReportError(ee)
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError reports an enhanced error to Sentry with identifiers scrubbed
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	message := scrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.Category))
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}
		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		scope.SetFingerprint([]string{ee.Component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Level = sentryLevel(ee)
		event.Message = message
		event.Exception = []sentry.Exception{{
			Type:  fmt.Sprintf("%s %s", ee.Component, ee.Category),
			Value: message,
		}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

func sentryLevel(ee *EnhancedError) sentry.Level {
	switch ee.Priority {
	case PriorityCritical:
		return sentry.LevelFatal
	case PriorityHigh:
		return sentry.LevelError
	case PriorityLow:
		return sentry.LevelInfo
	}
	if ee.Category == CategoryNetwork || ee.Category == CategoryMQTTPublish {
		return sentry.LevelWarning
	}
	return sentry.LevelError
}

var (
	uuidPattern  = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	queryPattern = regexp.MustCompile(`\?[^\s]*`)
	tokenPattern = regexp.MustCompile(`(?i)(token|api_key|password|secret)=[^\s&]+`)
)

// scrubMessage removes record identifiers, query strings and credentials.
func scrubMessage(msg string) string {
	msg = tokenPattern.ReplaceAllString(msg, "$1=[REDACTED]")
	msg = queryPattern.ReplaceAllString(msg, "?[REDACTED]")
	return uuidPattern.ReplaceAllString(msg, "[ID]")
}
