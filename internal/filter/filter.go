// Package filter projects named, read-only views out of a record collection.
// Every function returns a new slice and leaves its input untouched.
package filter

import (
	"github.com/biotrack/biotrack/internal/record"
)

// ViewName identifies a projection.
type ViewName string

const (
	ViewApproved     ViewName = "approved"
	ViewMine         ViewName = "mine"
	ViewMinePending  ViewName = "mine-pending"
	ViewMineApproved ViewName = "mine-approved"
	ViewMineRejected ViewName = "mine-rejected"
)

// Views lists every named view.
var Views = []ViewName{ViewApproved, ViewMine, ViewMinePending, ViewMineApproved, ViewMineRejected}

// NeedsUser reports whether the view is scoped to a viewing user.
func (v ViewName) NeedsUser() bool {
	return v != ViewApproved
}

func where(records []record.Record, keep func(record.Record) bool) []record.Record {
	out := make([]record.Record, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// ApprovedAll returns every approved record.
func ApprovedAll(records []record.Record) []record.Record {
	return where(records, func(r record.Record) bool { return r.Status == record.StatusApproved })
}

// Mine returns the records owned by userID in any status.
func Mine(records []record.Record, userID string) []record.Record {
	return where(records, func(r record.Record) bool { return r.OwnerID == userID })
}

func mineWith(records []record.Record, userID string, status record.Status) []record.Record {
	return where(records, func(r record.Record) bool { return r.OwnerID == userID && r.Status == status })
}

// MinePending returns userID's records awaiting review.
func MinePending(records []record.Record, userID string) []record.Record {
	return mineWith(records, userID, record.StatusPending)
}

// MineApproved returns userID's approved records.
func MineApproved(records []record.Record, userID string) []record.Record {
	return mineWith(records, userID, record.StatusApproved)
}

// MineRejected returns userID's rejected records.
func MineRejected(records []record.Record, userID string) []record.Record {
	return mineWith(records, userID, record.StatusRejected)
}

// ByKind narrows records to one kind. An empty kind keeps everything.
func ByKind(records []record.Record, kind record.Kind) []record.Record {
	if kind == "" {
		return where(records, func(record.Record) bool { return true })
	}
	return where(records, func(r record.Record) bool { return r.Kind == kind })
}

// View resolves a named view.
func View(name ViewName, records []record.Record, userID string) ([]record.Record, error) {
	if name.NeedsUser() && userID == "" {
		return nil, record.NewValidationError("view", "%q requires a user", name)
	}
	switch name {
	case ViewApproved:
		return ApprovedAll(records), nil
	case ViewMine:
		return Mine(records, userID), nil
	case ViewMinePending:
		return MinePending(records, userID), nil
	case ViewMineApproved:
		return MineApproved(records, userID), nil
	case ViewMineRejected:
		return MineRejected(records, userID), nil
	default:
		return nil, record.NewValidationError("view", "unknown view %q", name)
	}
}

// BadgeCounts are the per-user counters shown next to the views.
type BadgeCounts struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// Badges counts userID's records by status in one pass. The counts equal the
// lengths of Mine, MinePending, MineApproved and MineRejected.
func Badges(records []record.Record, userID string) BadgeCounts {
	var b BadgeCounts
	for _, r := range records {
		if r.OwnerID != userID {
			continue
		}
		b.Total++
		switch r.Status {
		case record.StatusPending:
			b.Pending++
		case record.StatusApproved:
			b.Approved++
		case record.StatusRejected:
			b.Rejected++
		}
	}
	return b
}
