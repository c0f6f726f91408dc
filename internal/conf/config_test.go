package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/record"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "main:\n  name: field-station\n")
	settings, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "field-station", settings.Main.Name)
	assert.Equal(t, RemoteDatabase, settings.Remote.Type)
	assert.Equal(t, "sqlite", settings.Remote.Database.Driver)
	assert.Equal(t, 5*time.Minute, settings.Sync.Interval)
	assert.True(t, settings.Sync.PushOnSubmit)
	assert.Equal(t, 4, settings.Sync.Concurrency)
	assert.Equal(t, 10*time.Minute, settings.Ranking.CacheTTL)
	assert.Equal(t, ":8080", settings.API.Listen)
	assert.False(t, settings.MQTT.Enabled)
	assert.Equal(t, []record.Status{record.StatusApproved, record.StatusRejected},
		settings.Notification.NotificationStatuses())
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
}

func TestLoadOverridesFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
remote:
  type: http
  http:
    base_url: https://records.example.org/api
    token: secret
    rate_limit: 2.5
sync:
  interval: 30s
  push_on_submit: false
mqtt:
  enabled: true
  broker: tcp://broker.local:1883
  qos: 1
`)
	settings, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, RemoteHTTP, settings.Remote.Type)
	assert.Equal(t, "https://records.example.org/api", settings.Remote.HTTP.BaseURL)
	assert.Equal(t, "secret", settings.Remote.HTTP.Token)
	assert.InDelta(t, 2.5, settings.Remote.HTTP.RateLimit, 0.0001)
	assert.Equal(t, 30*time.Second, settings.Sync.Interval)
	assert.False(t, settings.Sync.PushOnSubmit)
	assert.True(t, settings.MQTT.Enabled)
	assert.Equal(t, 1, settings.MQTT.QoS)
	assert.Equal(t, "biotrack/reviews", settings.MQTT.Topic)
}

// Not parallel: t.Setenv.
func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("BIOTRACK_SYNC_CONCURRENCY", "9")
	t.Setenv("BIOTRACK_API_LISTEN", "127.0.0.1:9000")

	settings, err := Load(viper.New(), writeConfig(t, "debug: true\n"))
	require.NoError(t, err)
	assert.True(t, settings.Debug)
	assert.Equal(t, 9, settings.Sync.Concurrency)
	assert.Equal(t, "127.0.0.1:9000", settings.API.Listen)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
remote:
  type: ftp
sync:
  concurrency: 0
`)
	_, err := Load(viper.New(), path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
	assert.Contains(t, ve.Errors[0], "remote.type")
	assert.Contains(t, ve.Errors[1], "sync.concurrency")
}

func validSettings(t *testing.T) *Settings {
	t.Helper()
	settings, err := Load(viper.New(), writeConfig(t, "{}\n"))
	require.NoError(t, err)
	return settings
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Settings) {},
		},
		{
			name: "http remote needs base url",
			mutate: func(s *Settings) {
				s.Remote.Type = RemoteHTTP
			},
			wantErr: "remote.http.base_url",
		},
		{
			name: "http remote rejects ftp scheme",
			mutate: func(s *Settings) {
				s.Remote.Type = RemoteHTTP
				s.Remote.HTTP.BaseURL = "ftp://records.example.org"
			},
			wantErr: "unsupported scheme",
		},
		{
			name: "mysql port range",
			mutate: func(s *Settings) {
				s.Remote.Database.Driver = "mysql"
				s.Remote.Database.MySQL.Port = 70000
			},
			wantErr: "remote.database.mysql.port",
		},
		{
			name: "unknown database driver",
			mutate: func(s *Settings) {
				s.Remote.Database.Driver = "postgres"
			},
			wantErr: "remote.database.driver",
		},
		{
			name: "mqtt qos",
			mutate: func(s *Settings) {
				s.MQTT.Enabled = true
				s.MQTT.QoS = 3
			},
			wantErr: "mqtt.qos",
		},
		{
			name: "disabled mqtt is not checked",
			mutate: func(s *Settings) {
				s.MQTT.QoS = 3
				s.MQTT.Broker = ""
			},
		},
		{
			name: "notification needs urls",
			mutate: func(s *Settings) {
				s.Notification.Enabled = true
			},
			wantErr: "notification.urls",
		},
		{
			name: "notification status synonyms accepted",
			mutate: func(s *Settings) {
				s.Notification.Enabled = true
				s.Notification.URLs = []string{"generic://hooks.example.org/notify"}
				s.Notification.Statuses = []string{"verified", "declined"}
			},
		},
		{
			name: "notification unknown status",
			mutate: func(s *Settings) {
				s.Notification.Enabled = true
				s.Notification.URLs = []string{"generic://hooks.example.org/notify"}
				s.Notification.Statuses = []string{"archived"}
			},
			wantErr: "archived",
		},
		{
			name: "sentry dsn",
			mutate: func(s *Settings) {
				s.Sentry.Enabled = true
			},
			wantErr: "sentry.dsn",
		},
		{
			name: "body limit format",
			mutate: func(s *Settings) {
				s.API.BodyLimit = "lots"
			},
			wantErr: "api.body_limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			settings := validSettings(t)
			tt.mutate(settings)

			err := Validate(settings)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	t.Parallel()

	settings := validSettings(t)
	settings.Main.Name = "saved"
	settings.Sync.Interval = 90 * time.Second
	settings.Notification.URLs = []string{"ntfy://ntfy.sh/{owner}"}

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveYAMLConfig(path, settings))

	loaded, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Main.Name)
	assert.Equal(t, 90*time.Second, loaded.Sync.Interval)
	assert.Equal(t, []string{"ntfy://ntfy.sh/{owner}"}, loaded.Notification.URLs)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestDefaultConfigPaths(t *testing.T) {
	t.Parallel()

	paths := DefaultConfigPaths()
	require.NotEmpty(t, paths)
	assert.Equal(t, ".", paths[0])
	assert.Equal(t, "/etc/biotrack", paths[len(paths)-1])
}
