// Package telemetry reports high priority errors to Sentry. It is opt-in and
// strips identifying data before anything leaves the process.
package telemetry

import (
	"fmt"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/logger"
)

const componentName = "telemetry"

// Config mirrors the sentry section of the settings file.
type Config struct {
	Enabled     bool
	DSN         string
	Environment string
	Debug       bool
	SampleRate  float64
}

// Option adjusts the Sentry client options, mainly for tests.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

// Init starts the Sentry client and installs it as the error reporter used by
// internal/errors. A disabled config is a no-op.
func Init(cfg Config, version string, log logger.Logger, opts ...Option) error {
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	if !cfg.Enabled {
		log.Debug("sentry telemetry disabled")
		return nil
	}
	if cfg.DSN == "" {
		return errors.Newf("sentry enabled without a DSN").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1.0
	}
	environment := cfg.Environment
	if environment == "" {
		environment = "production"
	}

	options := sentry.ClientOptions{
		Dsn:              cfg.DSN,
		SampleRate:       sampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: false,
		Environment:      environment,
		ServerName:       "",
		Release:          fmt.Sprintf("biotrack@%s", version),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := sentry.Init(options); err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetContext("application", map[string]any{
			"name":    "biotrack",
			"version": version,
		})
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	log.Info("sentry telemetry enabled", logger.String("environment", environment))
	return nil
}

// applyPrivacyFilters drops user, host and runtime details from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}

// Shutdown detaches the reporter and flushes buffered events.
func Shutdown(timeout time.Duration) {
	errors.SetTelemetryReporter(nil)
	sentry.Flush(timeout)
}
