// Package ranking derives point totals and the leaderboard from approved records.
package ranking

import (
	"cmp"
	"slices"
	"time"

	"github.com/biotrack/biotrack/internal/record"
)

// Points per approved record.
const (
	FloraPoints = 10
	FaunaPoints = 15
)

// Entry is one leaderboard row. It is derived data and never stored.
type Entry struct {
	UserID             string    `json:"userId" yaml:"userId"`
	DisplayName        string    `json:"displayName" yaml:"displayName"`
	ApprovedFloraCount int       `json:"approvedFloraCount" yaml:"approvedFloraCount"`
	ApprovedFaunaCount int       `json:"approvedFaunaCount" yaml:"approvedFaunaCount"`
	Points             int       `json:"points" yaml:"points"`
	Rank               int       `json:"rank" yaml:"rank"`
	LastApprovalAt     time.Time `json:"lastApprovalAt" yaml:"lastApprovalAt"`
}

// PointsFor returns the points rec contributes: zero unless approved.
func PointsFor(rec record.Record) int {
	if rec.Status != record.StatusApproved {
		return 0
	}
	switch rec.Kind {
	case record.KindFlora:
		return FloraPoints
	case record.KindFauna:
		return FaunaPoints
	default:
		return 0
	}
}

// approvalTime is when a record started counting.
func approvalTime(rec record.Record) time.Time {
	if rec.ReviewedAt != nil && !rec.ReviewedAt.IsZero() {
		return *rec.ReviewedAt
	}
	return rec.CreatedAt
}

// ComputeRanking groups approved records by owner and orders owners by points.
// Ties go to the user who reached the total first, that is the earlier latest
// approval, then to the lower user id. Equal points share a rank and the next
// rank skips the size of the tie group. The input is not modified.
func ComputeRanking(records []record.Record) []Entry {
	byUser := make(map[string]*Entry)
	for _, rec := range records {
		pts := PointsFor(rec)
		if pts == 0 {
			continue
		}
		e, ok := byUser[rec.OwnerID]
		if !ok {
			e = &Entry{UserID: rec.OwnerID}
			byUser[rec.OwnerID] = e
		}
		if e.DisplayName == "" {
			e.DisplayName = rec.OwnerName
		}
		e.Points += pts
		switch rec.Kind {
		case record.KindFlora:
			e.ApprovedFloraCount++
		case record.KindFauna:
			e.ApprovedFaunaCount++
		}
		if at := approvalTime(rec); at.After(e.LastApprovalAt) {
			e.LastApprovalAt = at
		}
	}

	entries := make([]Entry, 0, len(byUser))
	for _, e := range byUser {
		if e.DisplayName == "" {
			e.DisplayName = e.UserID
		}
		entries = append(entries, *e)
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		if c := a.LastApprovalAt.Compare(b.LastApprovalAt); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})

	for i := range entries {
		if i > 0 && entries[i].Points == entries[i-1].Points {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
	return entries
}

// Find returns the entry for userID.
func Find(entries []Entry, userID string) (Entry, bool) {
	for _, e := range entries {
		if e.UserID == userID {
			return e, true
		}
	}
	return Entry{}, false
}
