package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/biotrack/biotrack/internal/logger"
)

// setDefaultConfig registers a default for every key, which also makes every
// key reachable through BIOTRACK_* environment variables.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("main.name", "biotrack")

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("datastore.local.path", "data/local.db")

	v.SetDefault("remote.type", RemoteDatabase)
	v.SetDefault("remote.http.base_url", "")
	v.SetDefault("remote.http.token", "")
	v.SetDefault("remote.http.timeout", 30*time.Second)
	v.SetDefault("remote.http.user_agent", "biotrack")
	v.SetDefault("remote.http.rate_limit", 0.0)
	v.SetDefault("remote.http.burst", 1)
	v.SetDefault("remote.database.driver", "sqlite")
	v.SetDefault("remote.database.path", "data/remote.db")
	v.SetDefault("remote.database.mysql.host", "localhost")
	v.SetDefault("remote.database.mysql.port", 3306)
	v.SetDefault("remote.database.mysql.username", "")
	v.SetDefault("remote.database.mysql.password", "")
	v.SetDefault("remote.database.mysql.database", "biotrack")

	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.push_on_submit", true)
	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("sync.upload_timeout", 20*time.Second)

	v.SetDefault("ranking.cache_ttl", 10*time.Minute)

	v.SetDefault("api.listen", ":8080")
	v.SetDefault("api.metrics", true)
	v.SetDefault("api.read_timeout", 15*time.Second)
	v.SetDefault("api.write_timeout", 30*time.Second)
	v.SetDefault("api.shutdown_timeout", 10*time.Second)
	v.SetDefault("api.body_limit", "1M")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "biotrack")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "biotrack/reviews")
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.qos", 0)

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.urls", []string{})
	v.SetDefault("notification.timeout", 10*time.Second)
	v.SetDefault("notification.statuses", []string{"approved", "rejected"})
	v.SetDefault("notification.template", "")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.debug", false)
	v.SetDefault("sentry.sample_rate", 1.0)
}
