package conf

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/labstack/gommon/bytes"

	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/record"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// Validate checks the whole settings tree and reports every problem at once.
func Validate(settings *Settings) error {
	ve := ValidationError{}
	add := func(errs []string) { ve.Errors = append(ve.Errors, errs...) }

	add(validateRemote(&settings.Remote))
	add(validateSync(&settings.Sync))
	add(validateAPI(&settings.API))
	add(validateMQTT(&settings.MQTT))
	add(validateNotification(&settings.Notification))
	add(validateSentry(&settings.Sentry))

	if settings.Datastore.Local.Path == "" {
		ve.Errors = append(ve.Errors, "datastore.local.path must not be empty")
	}
	if settings.Ranking.CacheTTL < 0 {
		ve.Errors = append(ve.Errors, "ranking.cache_ttl must be non-negative")
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Context("error_count", len(ve.Errors)).
			Build()
	}
	return nil
}

func validateRemote(s *RemoteSettings) []string {
	var errs []string
	switch s.Type {
	case RemoteHTTP:
		if err := validateURL(s.HTTP.BaseURL, "http", "https"); err != nil {
			errs = append(errs, fmt.Sprintf("remote.http.base_url: %v", err))
		}
		if s.HTTP.Timeout < 0 {
			errs = append(errs, "remote.http.timeout must be non-negative")
		}
		if s.HTTP.RateLimit < 0 {
			errs = append(errs, "remote.http.rate_limit must be non-negative")
		}
	case RemoteDatabase:
		switch s.Database.Driver {
		case "sqlite":
			if s.Database.Path == "" {
				errs = append(errs, "remote.database.path is required for sqlite")
			}
		case "mysql":
			if s.Database.MySQL.Host == "" || s.Database.MySQL.Database == "" {
				errs = append(errs, "remote.database.mysql host and database are required")
			}
			if s.Database.MySQL.Port <= 0 || s.Database.MySQL.Port > 65535 {
				errs = append(errs, fmt.Sprintf("remote.database.mysql.port out of range: %d", s.Database.MySQL.Port))
			}
		default:
			errs = append(errs, fmt.Sprintf("remote.database.driver must be sqlite or mysql, got %q", s.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("remote.type must be %q or %q, got %q", RemoteHTTP, RemoteDatabase, s.Type))
	}
	return errs
}

func validateSync(s *SyncSettings) []string {
	var errs []string
	if s.Interval < 0 {
		errs = append(errs, "sync.interval must be non-negative")
	}
	if s.Concurrency < 1 {
		errs = append(errs, "sync.concurrency must be at least 1")
	}
	if s.UploadTimeout < 0 {
		errs = append(errs, "sync.upload_timeout must be non-negative")
	}
	return errs
}

func validateAPI(s *APISettings) []string {
	var errs []string
	if s.Listen == "" {
		errs = append(errs, "api.listen must not be empty")
	}
	if s.BodyLimit != "" {
		if _, err := bytes.Parse(s.BodyLimit); err != nil {
			errs = append(errs, fmt.Sprintf("api.body_limit: %v", err))
		}
	}
	return errs
}

func validateMQTT(s *MQTTSettings) []string {
	if !s.Enabled {
		return nil
	}
	var errs []string
	if err := validateURL(s.Broker, "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss"); err != nil {
		errs = append(errs, fmt.Sprintf("mqtt.broker: %v", err))
	}
	if s.Topic == "" {
		errs = append(errs, "mqtt.topic must not be empty")
	}
	if s.QoS < 0 || s.QoS > 2 {
		errs = append(errs, fmt.Sprintf("mqtt.qos must be 0, 1 or 2, got %d", s.QoS))
	}
	return errs
}

func validateNotification(s *NotificationSettings) []string {
	if !s.Enabled {
		return nil
	}
	var errs []string
	if len(s.URLs) == 0 {
		errs = append(errs, "notification.urls must list at least one service URL")
	}
	for _, st := range s.Statuses {
		if _, err := record.ParseStatus(st); err != nil {
			errs = append(errs, fmt.Sprintf("notification.statuses: unknown status %q", st))
		}
	}
	return errs
}

func validateSentry(s *SentrySettings) []string {
	if !s.Enabled {
		return nil
	}
	var errs []string
	if s.DSN == "" {
		errs = append(errs, "sentry.dsn is required when sentry is enabled")
	}
	if s.SampleRate < 0 || s.SampleRate > 1 {
		errs = append(errs, "sentry.sample_rate must be between 0 and 1")
	}
	return errs
}

func validateURL(raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return nil
		}
	}
	return fmt.Errorf("unsupported scheme %q", u.Scheme)
}

// NotificationStatuses returns the configured statuses in canonical form.
// Unknown values are skipped; Validate reports them.
func (s *NotificationSettings) NotificationStatuses() []record.Status {
	out := make([]record.Status, 0, len(s.Statuses))
	for _, raw := range s.Statuses {
		if st, err := record.ParseStatus(raw); err == nil {
			out = append(out, st)
		}
	}
	return out
}
