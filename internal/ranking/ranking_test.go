package ranking

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biotrack/biotrack/internal/approval"
	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/record"
)

var base = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func approved(id, owner string, kind record.Kind, reviewedMinute int) record.Record {
	at := base.Add(time.Duration(reviewedMinute) * time.Minute)
	return record.Record{
		ID:         id,
		OwnerID:    owner,
		Kind:       kind,
		Status:     record.StatusApproved,
		CreatedAt:  base,
		ReviewerID: "sci",
		ReviewedAt: &at,
	}
}

func withStatus(r record.Record, s record.Status) record.Record {
	r.Status = s
	if s == record.StatusPending {
		r.ReviewerID = ""
		r.ReviewedAt = nil
	}
	return r
}

func TestPointsFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rec  record.Record
		want int
	}{
		{"approved flora", approved("1", "u", record.KindFlora, 0), 10},
		{"approved fauna", approved("2", "u", record.KindFauna, 0), 15},
		{"pending fauna", withStatus(approved("3", "u", record.KindFauna, 0), record.StatusPending), 0},
		{"rejected flora", withStatus(approved("4", "u", record.KindFlora, 0), record.StatusRejected), 0},
		{"unknown kind", approved("5", "u", record.Kind("fungi"), 0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, PointsFor(tt.rec))
		})
	}
}

func TestComputeRankingTiedAt35(t *testing.T) {
	t.Parallel()

	records := []record.Record{
		approved("a1", "ana", record.KindFlora, 1),
		approved("a2", "ana", record.KindFlora, 2),
		approved("a3", "ana", record.KindFauna, 3),
		approved("b1", "ben", record.KindFlora, 1),
		approved("b2", "ben", record.KindFlora, 2),
		approved("b3", "ben", record.KindFauna, 4),
	}

	entries := ComputeRanking(records)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, 35, e.Points)
		assert.Equal(t, 1, e.Rank)
		assert.Equal(t, 2, e.ApprovedFloraCount)
		assert.Equal(t, 1, e.ApprovedFaunaCount)
	}
	// ana reached 35 first.
	assert.Equal(t, "ana", entries[0].UserID)
	assert.Equal(t, "ben", entries[1].UserID)
}

func TestComputeRankingSkipsRankAfterTie(t *testing.T) {
	t.Parallel()

	records := []record.Record{
		approved("1", "u1", record.KindFlora, 5),
		approved("2", "u1", record.KindFlora, 6),
		approved("3", "u2", record.KindFauna, 1),
		approved("4", "u2", record.KindFauna, 2),
		approved("5", "u3", record.KindFlora, 0),
		approved("6", "u3", record.KindFlora, 0),
		approved("7", "u4", record.KindFlora, 0),
		approved("8", "u4", record.KindFlora, 0),
		withStatus(approved("9", "u5", record.KindFauna, 0), record.StatusRejected),
	}
	// Lift u1 and u3 to 30 as well; u3 reaches it first, u1 last.
	records = append(records,
		approved("10", "u1", record.KindFlora, 7),
		approved("11", "u3", record.KindFlora, 1))

	entries := ComputeRanking(records)
	got := make([]string, len(entries))
	for i, e := range entries {
		got[i] = fmt.Sprintf("%s:%d:%d", e.UserID, e.Points, e.Rank)
	}
	assert.Equal(t, []string{"u3:30:1", "u2:30:1", "u1:30:1", "u4:20:4"}, got)
}

func TestComputeRankingDenseExample(t *testing.T) {
	t.Parallel()

	records := []record.Record{
		approved("a", "x", record.KindFauna, 0), approved("b", "x", record.KindFauna, 0),
		approved("c", "y", record.KindFauna, 1), approved("d", "y", record.KindFauna, 1),
		approved("e", "z", record.KindFlora, 0), approved("f", "z", record.KindFlora, 0),
	}
	entries := ComputeRanking(records)
	ranks := make([]int, len(entries))
	points := make([]int, len(entries))
	for i, e := range entries {
		ranks[i] = e.Rank
		points[i] = e.Points
	}
	assert.Equal(t, []int{30, 30, 20}, points)
	assert.Equal(t, []int{1, 1, 3}, ranks)
}

func TestComputeRankingDisplayNameAndFallbackTime(t *testing.T) {
	t.Parallel()

	named := approved("1", "u1", record.KindFlora, 0)
	named.OwnerName = "Una"
	noReview := approved("2", "u2", record.KindFlora, 0)
	noReview.ReviewedAt = nil
	noReview.CreatedAt = base.Add(-time.Hour)

	entries := ComputeRanking([]record.Record{named, noReview})
	require.Len(t, entries, 2)
	assert.Equal(t, "u2", entries[0].UserID, "earlier approval wins the tie")
	assert.Equal(t, "u2", entries[0].DisplayName)
	assert.Equal(t, base.Add(-time.Hour), entries[0].LastApprovalAt)
	assert.Equal(t, "Una", entries[1].DisplayName)
}

func randomRecords(rng *rand.Rand, n int) []record.Record {
	statuses := record.Statuses
	out := make([]record.Record, n)
	for i := range out {
		r := approved(fmt.Sprintf("r%d", i), fmt.Sprintf("user-%d", rng.IntN(5)), record.Kinds[rng.IntN(2)], rng.IntN(30))
		out[i] = withStatus(r, statuses[rng.IntN(len(statuses))])
	}
	return out
}

func TestComputeRankingProperties(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(3, 5))
	for range 200 {
		records := randomRecords(rng, rng.IntN(40))
		entries := ComputeRanking(records)

		// Point conservation.
		perUser := map[string]int{}
		for _, r := range records {
			if r.Status == record.StatusApproved {
				perUser[r.OwnerID] += PointsFor(r)
			}
		}
		require.Len(t, entries, len(perUser))
		for user, pts := range perUser {
			e, ok := Find(entries, user)
			require.True(t, ok)
			assert.Equal(t, pts, e.Points)
		}

		// Rank is 1 + number of users with strictly more points.
		for _, e := range entries {
			higher := 0
			for _, o := range entries {
				if o.Points > e.Points {
					higher++
				}
			}
			assert.Equal(t, higher+1, e.Rank)
		}

		// Idempotent.
		assert.Equal(t, entries, ComputeRanking(records))
	}
}

func TestEngineCachesUntilEvent(t *testing.T) {
	t.Parallel()

	records := []record.Record{approved("1", "u1", record.KindFlora, 0)}
	var loads atomic.Int32
	load := func(context.Context) ([]record.Record, error) {
		loads.Add(1)
		return records, nil
	}

	eng := NewEngine(time.Minute, logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC))
	ctx := t.Context()

	first, err := eng.Leaderboard(ctx, load)
	require.NoError(t, err)
	require.Len(t, first, 1)
	first[0].Points = 999

	again, err := eng.Leaderboard(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, 10, again[0].Points, "callers get copies")
	assert.Equal(t, int32(1), loads.Load())

	eng.HandleEvent(approval.Event{OwnerID: "u1", OldStatus: record.StatusPending, NewStatus: record.StatusRejected})
	_, err = eng.Leaderboard(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, int32(1), loads.Load(), "rejection of a pending record does not invalidate")

	records = append(records, approved("2", "u2", record.KindFauna, 1))
	eng.HandleEvent(approval.Event{RecordID: "2", Kind: record.KindFauna, OwnerID: "u2", OldStatus: record.StatusPending, NewStatus: record.StatusApproved})
	assert.Equal(t, []string{"u2"}, eng.dirtyUsers())

	entry, err := eng.Entry(ctx, load, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Rank)
	assert.Equal(t, int32(2), loads.Load())
	assert.Empty(t, eng.dirtyUsers())

	_, err = eng.Entry(ctx, load, "nobody")
	assert.True(t, record.IsNotFound(err))

	eng.Invalidate()
	_, err = eng.Leaderboard(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, int32(3), loads.Load())
}

func TestEngineEventDuringRecompute(t *testing.T) {
	t.Parallel()

	eng := NewEngine(time.Minute, logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC))
	ctx := t.Context()
	records := []record.Record{approved("1", "u1", record.KindFlora, 0)}
	eng.HandleEvent(approval.Event{RecordID: "1", Kind: record.KindFlora, OwnerID: "u1", OldStatus: record.StatusPending, NewStatus: record.StatusApproved})

	var loads atomic.Int32
	racing := func(context.Context) ([]record.Record, error) {
		if loads.Add(1) == 1 {
			eng.HandleEvent(approval.Event{RecordID: "2", Kind: record.KindFauna, OwnerID: "u2", OldStatus: record.StatusPending, NewStatus: record.StatusApproved})
		}
		return records, nil
	}

	_, err := eng.Leaderboard(ctx, racing)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, eng.dirtyUsers(), "a stale result clears nothing")

	_, err = eng.Leaderboard(ctx, racing)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load(), "a stale result is not cached")
	assert.Empty(t, eng.dirtyUsers())

	_, err = eng.Leaderboard(ctx, racing)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}

func TestEngineLoaderError(t *testing.T) {
	t.Parallel()

	eng := NewEngine(0, logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC))
	boom := errors.NewStd("db down")
	_, err := eng.Leaderboard(t.Context(), func(context.Context) ([]record.Record, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}
