// Package conf loads biotrack settings from config.yaml, BIOTRACK_* environment
// variables and command line flags through viper.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/logger"
)

const (
	// EnvPrefix prefixes every environment override, e.g. BIOTRACK_SYNC_INTERVAL.
	EnvPrefix = "BIOTRACK"

	// Remote source types.
	RemoteHTTP     = "http"
	RemoteDatabase = "database"

	componentName = "conf"
)

// Settings is the root of the configuration tree.
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Main struct {
		Name string `yaml:"name" mapstructure:"name"`
	} `yaml:"main" mapstructure:"main"`

	Logging logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`

	Datastore struct {
		Local LocalStoreSettings `yaml:"local" mapstructure:"local"`
	} `yaml:"datastore" mapstructure:"datastore"`

	Remote       RemoteSettings       `yaml:"remote" mapstructure:"remote"`
	Sync         SyncSettings         `yaml:"sync" mapstructure:"sync"`
	Ranking      RankingSettings      `yaml:"ranking" mapstructure:"ranking"`
	API          APISettings          `yaml:"api" mapstructure:"api"`
	MQTT         MQTTSettings         `yaml:"mqtt" mapstructure:"mqtt"`
	Notification NotificationSettings `yaml:"notification" mapstructure:"notification"`
	Sentry       SentrySettings       `yaml:"sentry" mapstructure:"sentry"`
}

// LocalStoreSettings locates the on-device buffer of unsynced records.
type LocalStoreSettings struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RemoteSettings selects and configures the source of truth.
type RemoteSettings struct {
	Type     string                 `yaml:"type" mapstructure:"type"` // http or database
	HTTP     HTTPRemoteSettings     `yaml:"http" mapstructure:"http"`
	Database DatabaseRemoteSettings `yaml:"database" mapstructure:"database"`
}

// HTTPRemoteSettings configures the REST source.
type HTTPRemoteSettings struct {
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	Token     string        `yaml:"token" mapstructure:"token"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent string        `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second, 0 disables
	Burst     int           `yaml:"burst" mapstructure:"burst"`
}

// DatabaseRemoteSettings configures the shared database source.
type DatabaseRemoteSettings struct {
	Driver string        `yaml:"driver" mapstructure:"driver"` // mysql or sqlite
	Path   string        `yaml:"path" mapstructure:"path"`     // sqlite only
	MySQL  MySQLSettings `yaml:"mysql" mapstructure:"mysql"`
}

// MySQLSettings holds the MySQL connection.
type MySQLSettings struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// SyncSettings controls reconciliation.
type SyncSettings struct {
	Interval      time.Duration `yaml:"interval" mapstructure:"interval"` // 0 disables auto sync
	PushOnSubmit  bool          `yaml:"push_on_submit" mapstructure:"push_on_submit"`
	Concurrency   int           `yaml:"concurrency" mapstructure:"concurrency"`
	UploadTimeout time.Duration `yaml:"upload_timeout" mapstructure:"upload_timeout"`
}

// RankingSettings controls the leaderboard cache.
type RankingSettings struct {
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// APISettings configures the HTTP server.
type APISettings struct {
	Listen          string        `yaml:"listen" mapstructure:"listen"`
	Metrics         bool          `yaml:"metrics" mapstructure:"metrics"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	BodyLimit       string        `yaml:"body_limit" mapstructure:"body_limit"`
}

// MQTTSettings configures review event broadcasting.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker   string `yaml:"broker" mapstructure:"broker"`
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Topic    string `yaml:"topic" mapstructure:"topic"`
	Retain   bool   `yaml:"retain" mapstructure:"retain"`
	QoS      int    `yaml:"qos" mapstructure:"qos"`
}

// NotificationSettings configures owner notifications.
type NotificationSettings struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	URLs     []string      `yaml:"urls" mapstructure:"urls"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Statuses []string      `yaml:"statuses" mapstructure:"statuses"`
	Template string        `yaml:"template" mapstructure:"template"`
}

// SentrySettings configures opt-in error telemetry.
type SentrySettings struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	DSN         string  `yaml:"dsn" mapstructure:"dsn"`
	Environment string  `yaml:"environment" mapstructure:"environment"`
	Debug       bool    `yaml:"debug" mapstructure:"debug"`
	SampleRate  float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// Load reads settings into a fresh Settings value. v is usually viper.GetViper()
// so flags bound by the CLI take part; configPath overrides the search paths.
// A missing config file is not an error: defaults and environment apply.
func Load(v *viper.Viper, configPath string) (*Settings, error) {
	if v == nil {
		v = viper.New()
	}
	if err := initViper(v, configPath); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := Validate(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func initViper(v *viper.Viper, configPath string) error {
	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, path := range DefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath == "" && errors.As(err, &notFound) {
			return nil
		}
		return errors.New(fmt.Errorf("error reading config file: %w", err)).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Context("path", configPath).
			Build()
	}
	return nil
}

// DefaultConfigPaths lists the directories searched for config.yaml, in order.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "biotrack"))
	}
	return append(paths, "/etc/biotrack")
}

// SaveYAMLConfig writes settings to configPath atomically.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Write to a temporary file in the same directory so the rename is atomic.
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}
	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
