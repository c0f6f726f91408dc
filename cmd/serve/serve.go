// Package serve runs the HTTP API with periodic sync.
package serve

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/biotrack/biotrack/internal/api"
	"github.com/biotrack/biotrack/internal/app"
	"github.com/biotrack/biotrack/internal/conf"
	"github.com/biotrack/biotrack/internal/logger"
)

// Command returns the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and sync with the remote source periodically",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				settings.API.Listen = listen
			}
			return run(cmd.Context(), settings)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address, overrides api.listen")

	return cmd
}

func run(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("serve")

	a, err := app.New(ctx, settings, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("shutdown incomplete", logger.Error(err))
		}
	}()

	// The remote snapshot starts empty; populate it before taking traffic.
	if report, err := a.Service.Sync(ctx); err != nil {
		log.Warn("initial sync failed, serving local records only", logger.Error(err))
	} else {
		log.Info("initial sync complete",
			logger.Int("pushed", report.Pushed),
			logger.Int("fetched", report.Fetched))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	syncDone := a.Service.StartAutoSync(ctx, settings.Sync.Interval)

	server := api.New(api.NewConfigFromSettings(&settings.API), a.Service,
		api.WithMetrics(a.Metrics),
		api.WithLogger(logger.Global().Module("api")))
	err = server.Start(ctx)

	cancel()
	<-syncDone
	return err
}
