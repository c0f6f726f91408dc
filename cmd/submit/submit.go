// Package submit records a new observation from a JSON document.
package submit

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/biotrack/biotrack/cmd/output"
	"github.com/biotrack/biotrack/cmd/review"
	"github.com/biotrack/biotrack/internal/api"
	"github.com/biotrack/biotrack/internal/app"
	"github.com/biotrack/biotrack/internal/conf"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/record"
)

// Command returns the submit command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		actorID string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "submit [file.json]",
		Short: "Submit an observation, read from a file or stdin",
		Long: `Submit a flora or fauna observation. The record is stored locally as
pending and pushed to the remote source when sync.push_on_submit is set.

Example:
  echo '{"kind":"flora","commonName":"Oak","location":{"lat":60.1,"lon":24.9}}' | biotrack submit --actor alice`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			actor, err := review.ParseActor(actorID, "")
			if err != nil {
				return err
			}
			raw, err := readRaw(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, settings, logger.Global().Module("submit"))
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rec, err := a.Service.Submit(ctx, actor, raw)
			if err != nil {
				return err
			}
			resp := api.NewRecordResponse(rec)
			return output.Write(cmd.OutOrStdout(), f, resp, func() [][]string {
				return [][]string{
					{"ID", "KIND", "NAME", "STATUS", "REMOTE ID"},
					{rec.ID, string(rec.Kind), rec.CommonName, string(rec.Status), rec.RemoteID},
				}
			})
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "", "Submitting user id (required)")
	cmd.Flags().StringVarP(&format, "format", "f", string(output.FormatTable), "Output format: table, json or yaml")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

func readRaw(stdin io.Reader, args []string) (record.Raw, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return record.Raw{}, fmt.Errorf("failed to read observation: %w", err)
	}
	return record.DecodeRaw(data)
}
