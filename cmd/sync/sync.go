// Package sync runs one reconciliation pass from the command line.
package sync

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/biotrack/biotrack/cmd/output"
	"github.com/biotrack/biotrack/internal/app"
	"github.com/biotrack/biotrack/internal/conf"
	"github.com/biotrack/biotrack/internal/lifecycle"
	"github.com/biotrack/biotrack/internal/logger"
)

// Command returns the sync command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		format  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push pending local records and refresh the remote snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), settings, logger.Global().Module("sync"))
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report, syncErr := a.RunSync(cmd.Context(), timeout)
			if err := output.Write(cmd.OutOrStdout(), f, report, func() [][]string { return reportTable(report) }); err != nil {
				return err
			}
			return syncErr
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(output.FormatTable), "Output format: table, json or yaml")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Deadline for the whole pass")

	return cmd
}

func reportTable(r lifecycle.SyncReport) [][]string {
	rows := [][]string{
		{"PUSHED", "FAILED", "FETCHED", "SKIPPED", "TOTAL", "DURATION"},
		{
			strconv.Itoa(r.Pushed),
			strconv.Itoa(len(r.Failed)),
			strconv.Itoa(r.Fetched),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Total),
			r.Duration.Round(time.Millisecond).String(),
		},
	}
	if len(r.Failed) > 0 {
		rows = append(rows, []string{}, []string{"RECORD", "ERROR"})
		for _, f := range r.Failed {
			rows = append(rows, []string{f.Key, f.Error})
		}
	}
	return rows
}
