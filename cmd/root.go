// Package cmd wires the biotrack command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/biotrack/biotrack/cmd/ranking"
	"github.com/biotrack/biotrack/cmd/review"
	"github.com/biotrack/biotrack/cmd/serve"
	"github.com/biotrack/biotrack/cmd/submit"
	"github.com/biotrack/biotrack/cmd/sync"
	"github.com/biotrack/biotrack/internal/buildinfo"
	"github.com/biotrack/biotrack/internal/conf"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/telemetry"
)

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "biotrack",
		Short:         "Biodiversity record lifecycle engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, &configPath); err != nil {
		panic(err)
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Current().String())
		},
	}

	subcommands := []*cobra.Command{
		serve.Command(settings),
		sync.Command(settings),
		ranking.Command(settings),
		review.Command(settings),
		submit.Command(settings),
		versionCmd,
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Skip setup for the version command
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(settings, configPath)
	}

	return rootCmd
}

// initialize loads the configuration, then sets up logging and telemetry.
func initialize(settings *conf.Settings, configPath string) error {
	loaded, err := conf.Load(viper.GetViper(), configPath)
	if err != nil {
		return err
	}
	if loaded.Debug {
		loaded.Logging.DefaultLevel = "debug"
	}

	central, err := logger.NewCentralLogger(&loaded.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	sentry := loaded.Sentry
	if err := telemetry.Init(telemetry.Config{
		Enabled:     sentry.Enabled,
		DSN:         sentry.DSN,
		Environment: sentry.Environment,
		Debug:       sentry.Debug,
		SampleRate:  sentry.SampleRate,
	}, buildinfo.Current().GetVersion(), central.Module("telemetry")); err != nil {
		return err
	}

	*settings = *loaded
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configPath *string) error {
	rootCmd.PersistentFlags().StringVarP(configPath, "config", "c", "", "Path to the config file (default: search ./, ~/.config/biotrack, /etc/biotrack)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
