// Package ranking prints the contributor leaderboard.
package ranking

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/biotrack/biotrack/cmd/output"
	"github.com/biotrack/biotrack/internal/app"
	"github.com/biotrack/biotrack/internal/conf"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/ranking"
)

// Command returns the ranking command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		format string
		user   string
		noSync bool
	)

	cmd := &cobra.Command{
		Use:   "ranking",
		Short: "Print the leaderboard of approved contributions",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			entries, err := load(cmd.Context(), settings, user, !noSync)
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), f, entries, func() [][]string { return Table(entries) })
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(output.FormatTable), "Output format: table, json or yaml")
	cmd.Flags().StringVar(&user, "user", "", "Show a single user's entry")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Rank local records only, without fetching the remote source")

	return cmd
}

func load(ctx context.Context, settings *conf.Settings, user string, doSync bool) ([]ranking.Entry, error) {
	log := logger.Global().Module("ranking")
	a, err := app.New(ctx, settings, log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	if doSync {
		if _, err := a.Service.Sync(ctx); err != nil {
			log.Warn("sync failed, ranking local records only", logger.Error(err))
		}
	}
	if user != "" {
		entry, err := a.Service.RankingFor(ctx, user)
		if err != nil {
			return nil, err
		}
		return []ranking.Entry{entry}, nil
	}
	return a.Service.Ranking(ctx)
}

// Table renders entries with a header row.
func Table(entries []ranking.Entry) [][]string {
	rows := make([][]string, 0, len(entries)+1)
	rows = append(rows, []string{"RANK", "USER", "NAME", "FLORA", "FAUNA", "POINTS"})
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.Itoa(e.Rank),
			e.UserID,
			e.DisplayName,
			strconv.Itoa(e.ApprovedFloraCount),
			strconv.Itoa(e.ApprovedFaunaCount),
			strconv.Itoa(e.Points),
		})
	}
	return rows
}
