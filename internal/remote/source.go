// Package remote defines the source of truth the lifecycle engine reconciles
// against, and an HTTP implementation of it.
package remote

import (
	"context"
	"time"

	"github.com/biotrack/biotrack/internal/record"
)

// Source is the remote persistence the core consumes but does not own.
type Source interface {
	// FetchAll returns the raw payloads of every record of kind.
	FetchAll(ctx context.Context, kind record.Kind) ([]record.Raw, error)
	// FetchByOwner returns the raw payloads submitted by ownerID.
	FetchByOwner(ctx context.Context, ownerID string) ([]record.Raw, error)
	// Upload persists rec and returns the id the remote assigned.
	Upload(ctx context.Context, rec record.Record) (string, error)
	// SetStatus records a review decision for the record known remotely as remoteID.
	SetStatus(ctx context.Context, remoteID string, update StatusUpdate) error
}

// StatusUpdate is a review decision pushed to the remote source.
type StatusUpdate struct {
	Kind       record.Kind   `json:"kind"`
	Status     record.Status `json:"status"`
	ReviewerID string        `json:"reviewerId,omitempty"`
	ReviewedAt *time.Time    `json:"reviewedAt,omitempty"`
	Notes      string        `json:"reviewNotes,omitempty"`
}

// UpdateFrom builds the status update that mirrors rec's review fields.
func UpdateFrom(rec record.Record) StatusUpdate {
	return StatusUpdate{
		Kind:       rec.Kind,
		Status:     rec.Status,
		ReviewerID: rec.ReviewerID,
		ReviewedAt: rec.ReviewedAt,
		Notes:      rec.ReviewNotes,
	}
}
