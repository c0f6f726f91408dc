// Package app assembles the lifecycle service and its collaborators from settings.
package app

import (
	"context"
	"time"

	"github.com/biotrack/biotrack/internal/conf"
	"github.com/biotrack/biotrack/internal/datastore"
	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/lifecycle"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/mqtt"
	"github.com/biotrack/biotrack/internal/notification"
	"github.com/biotrack/biotrack/internal/observability"
	"github.com/biotrack/biotrack/internal/remote"
)

const componentName = "app"

// App owns everything built for one process. Close releases it in reverse order.
type App struct {
	Settings *conf.Settings
	Service  *lifecycle.Service
	Metrics  *observability.Metrics

	log     logger.Logger
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// New opens the stores, connects the optional sinks and builds the service.
// On error everything opened so far is closed again.
func New(ctx context.Context, settings *conf.Settings, log logger.Logger) (_ *App, err error) {
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	a := &App{Settings: settings, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.Metrics, err = observability.NewMetrics(); err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryGeneric).
			Build()
	}

	local, err := datastore.OpenLocal(settings.Datastore.Local.Path, log.Module("datastore"),
		datastore.WithLocalMetrics(a.Metrics.Datastore.ForStore("local")))
	if err != nil {
		return nil, err
	}
	a.onClose("local store", local.Close)

	src, err := a.openRemote(&settings.Remote)
	if err != nil {
		return nil, err
	}

	opts := []lifecycle.Option{lifecycle.WithMetrics(a.Metrics.Lifecycle)}
	sinkOpts, err := a.openSinks(ctx, settings)
	if err != nil {
		return nil, err
	}
	opts = append(opts, sinkOpts...)

	a.Service = lifecycle.New(lifecycle.Config{
		PushOnSubmit:  settings.Sync.PushOnSubmit,
		Concurrency:   settings.Sync.Concurrency,
		UploadTimeout: settings.Sync.UploadTimeout,
		RankingTTL:    settings.Ranking.CacheTTL,
	}, local, src, log.Module("lifecycle"), opts...)

	log.Info("lifecycle service ready",
		logger.String("remote", settings.Remote.Type),
		logger.String("local_path", settings.Datastore.Local.Path))
	return a, nil
}

func (a *App) openRemote(s *conf.RemoteSettings) (remote.Source, error) {
	switch s.Type {
	case conf.RemoteHTTP:
		client, err := remote.NewHTTPClient(remote.HTTPConfig{
			BaseURL:   s.HTTP.BaseURL,
			Timeout:   s.HTTP.Timeout,
			UserAgent: s.HTTP.UserAgent,
			Token:     s.HTTP.Token,
			RateLimit: s.HTTP.RateLimit,
			Burst:     s.HTTP.Burst,
		}, a.log.Module("remote"), remote.WithHTTPMetrics(a.Metrics.Datastore.ForStore("remote_http")))
		if err != nil {
			return nil, err
		}
		a.onClose("remote client", func() error {
			client.Close()
			return nil
		})
		return client, nil

	case conf.RemoteDatabase:
		db := s.Database
		store, err := datastore.OpenRemote(datastore.RemoteConfig{
			Driver: db.Driver,
			Path:   db.Path,
			MySQL: datastore.MySQLConfig{
				Host:     db.MySQL.Host,
				Port:     db.MySQL.Port,
				Username: db.MySQL.Username,
				Password: db.MySQL.Password,
				Database: db.MySQL.Database,
			},
		}, a.log.Module("datastore"), datastore.WithRemoteMetrics(a.Metrics.Datastore.ForStore("remote_db")))
		if err != nil {
			return nil, err
		}
		a.onClose("remote store", store.Close)
		return store, nil

	default:
		return nil, errors.Newf("unknown remote type %q", s.Type).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// openSinks builds the MQTT and notification sinks. A broker that is down at
// startup is not fatal; the publisher reconnects on the next event.
func (a *App) openSinks(ctx context.Context, settings *conf.Settings) ([]lifecycle.Option, error) {
	var opts []lifecycle.Option

	if m := settings.MQTT; m.Enabled {
		cfg := mqtt.DefaultConfig()
		cfg.Broker = m.Broker
		cfg.Username = m.Username
		cfg.Password = m.Password
		cfg.Retain = m.Retain
		cfg.QoS = byte(m.QoS)
		if m.ClientID != "" {
			cfg.ClientID = m.ClientID
		}
		if m.Topic != "" {
			cfg.Topic = m.Topic
		}

		client, err := mqtt.NewClient(cfg, a.Metrics.MQTT, a.log.Module("mqtt"))
		if err != nil {
			return nil, err
		}
		if err := client.Connect(ctx); err != nil {
			a.log.Warn("MQTT broker unavailable, will retry on publish",
				logger.String("broker", m.Broker),
				logger.Error(err))
		}
		publisher := mqtt.NewPublisher(client, cfg.Topic, a.log.Module("mqtt"))
		a.onClose("mqtt", func() error {
			publisher.Close()
			return nil
		})
		opts = append(opts, lifecycle.WithSink("mqtt", publisher))
	}

	if n := settings.Notification; n.Enabled {
		notifier, err := notification.NewNotifier(notification.Config{
			URLs:           n.URLs,
			Timeout:        n.Timeout,
			Statuses:       n.NotificationStatuses(),
			Template:       n.Template,
			CircuitBreaker: notification.DefaultCircuitBreakerConfig(),
		}, a.log.Module("notification"), notification.WithMetrics(a.Metrics.Notification))
		if err != nil {
			return nil, err
		}
		a.onClose("notifier", func() error {
			notifier.Close()
			return nil
		})
		opts = append(opts, lifecycle.WithSink("notification", notifier))
	}
	return opts, nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.log.Warn("failed to close", logger.String("resource", c.name), logger.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// RunSync runs one sync pass with a deadline, for one-shot commands.
func (a *App) RunSync(ctx context.Context, timeout time.Duration) (lifecycle.SyncReport, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return a.Service.Sync(ctx)
}
