// Package review applies a reviewer decision from the command line.
package review

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/biotrack/biotrack/internal/app"
	"github.com/biotrack/biotrack/internal/approval"
	"github.com/biotrack/biotrack/internal/conf"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/record"
)

// Command returns the review command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		actorID string
		role    string
		notes   string
	)

	cmd := &cobra.Command{
		Use:   "review <kind> <id> <status>",
		Short: "Approve, reject or reopen a record",
		Long: `Apply a status decision to a record and propagate it to the remote source.

Examples:
  biotrack review flora 8f14e45f approved --actor dr-moss --notes "clear photo"
  biotrack review fauna r-17 pending --actor admin --role admin`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := record.ParseKind(args[0])
			if err != nil {
				return err
			}
			status, err := record.ParseStatus(args[2])
			if err != nil {
				return err
			}
			actor, err := ParseActor(actorID, role)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, settings, logger.Global().Module("review"))
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			// Remote records are only addressable once the snapshot is loaded.
			if _, err := a.Service.Sync(ctx); err != nil {
				return fmt.Errorf("failed to load remote records: %w", err)
			}

			res, err := a.Service.Review(ctx, actor, kind, args[1], status, notes)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s -> %s by %s\n", res.Event.Key(), res.Event.OldStatus, res.Event.NewStatus, actor.ID)
			if res.RemoteErr != nil {
				fmt.Fprintf(out, "warning: remote source not updated: %v\n", res.RemoteErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "", "Reviewer id (required)")
	cmd.Flags().StringVar(&role, "role", string(approval.RoleScientist), "Reviewer role: scientist or admin")
	cmd.Flags().StringVar(&notes, "notes", "", "Review notes stored with the decision")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

// ParseActor validates command line actor flags.
func ParseActor(id, role string) (approval.Actor, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return approval.Actor{}, record.NewValidationError("actor", "missing")
	}
	r := approval.Role(strings.ToLower(strings.TrimSpace(role)))
	switch r {
	case approval.RoleUser, approval.RoleScientist, approval.RoleAdmin:
		return approval.Actor{ID: id, Role: r}, nil
	case "":
		return approval.Actor{ID: id, Role: approval.RoleUser}, nil
	default:
		return approval.Actor{}, record.NewValidationError("role", "unknown role %q", role)
	}
}
