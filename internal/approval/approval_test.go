package approval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biotrack/biotrack/internal/record"
)

var (
	fixedNow  = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	scientist = Actor{ID: "sci-1", Role: RoleScientist}
	admin     = Actor{ID: "adm-1", Role: RoleAdmin}
)

func newTestMachine(opts ...Option) *Machine {
	return NewMachine(append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func pendingRecord() record.Record {
	return record.Record{
		ID:         "r1",
		Origin:     record.OriginRemote,
		OwnerID:    "alice",
		Kind:       record.KindFauna,
		CommonName: "Fox",
		Status:     record.StatusPending,
		CreatedAt:  fixedNow.Add(-time.Hour),
	}
}

func reviewed(status record.Status) record.Record {
	r := pendingRecord()
	at := fixedNow.Add(-time.Minute)
	r.Status = status
	r.ReviewerID = "sci-0"
	r.ReviewedAt = &at
	r.ReviewNotes = "old notes"
	return r
}

func TestTransitionLegality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    record.Status
		to      record.Status
		allowed bool
	}{
		{record.StatusPending, record.StatusApproved, true},
		{record.StatusPending, record.StatusRejected, true},
		{record.StatusApproved, record.StatusPending, true},
		{record.StatusRejected, record.StatusPending, true},
		{record.StatusApproved, record.StatusRejected, false},
		{record.StatusRejected, record.StatusApproved, false},
		{record.StatusPending, record.StatusPending, false},
		{record.StatusApproved, record.StatusApproved, false},
		{record.StatusPending, record.Status("archived"), false},
	}

	m := newTestMachine()
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.allowed, Allowed(tt.from, tt.to))

			rec := pendingRecord()
			if tt.from != record.StatusPending {
				rec = reviewed(tt.from)
			}
			_, _, err := m.Transition(rec, tt.to, scientist)
			if tt.allowed {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, record.IsInvalidTransition(err))
		})
	}
}

func TestTransitionAuthorization(t *testing.T) {
	t.Parallel()

	m := newTestMachine()
	for _, actor := range []Actor{{ID: "alice", Role: RoleUser}, {ID: "x", Role: ""}, {ID: "", Role: RoleAdmin}} {
		_, _, err := m.Transition(pendingRecord(), record.StatusApproved, actor)
		require.Error(t, err)
		assert.True(t, record.IsAuthorization(err))
	}

	// Authorization is checked before the edge.
	_, _, err := m.Transition(reviewed(record.StatusApproved), record.StatusRejected, Actor{ID: "alice", Role: RoleUser})
	assert.True(t, record.IsAuthorization(err))
}

func TestTransitionSetsReviewerFields(t *testing.T) {
	t.Parallel()

	m := newTestMachine()
	in := pendingRecord()
	in.ReviewNotes = "stale"

	out, ev, err := m.Transition(in, record.StatusApproved, admin)
	require.NoError(t, err)

	assert.Equal(t, record.StatusApproved, out.Status)
	assert.Equal(t, "adm-1", out.ReviewerID)
	require.NotNil(t, out.ReviewedAt)
	assert.Equal(t, fixedNow, *out.ReviewedAt)
	assert.Empty(t, out.ReviewNotes)
	assert.Equal(t, record.StatusPending, in.Status, "input must not change")

	assert.Equal(t, Event{
		RecordID:  "r1",
		Kind:      record.KindFauna,
		OwnerID:   "alice",
		OldStatus: record.StatusPending,
		NewStatus: record.StatusApproved,
		ActorID:   "adm-1",
		At:        fixedNow,
	}, ev)
	assert.True(t, ev.AffectsRanking())
	assert.Equal(t, "fauna:r1", ev.Key())
}

func TestReopenClearsReviewer(t *testing.T) {
	t.Parallel()

	m := newTestMachine()
	out, ev, err := m.Transition(reviewed(record.StatusRejected), record.StatusPending, scientist, WithNotes("needs photo"))
	require.NoError(t, err)

	assert.Equal(t, record.StatusPending, out.Status)
	assert.Empty(t, out.ReviewerID)
	assert.Nil(t, out.ReviewedAt)
	assert.Equal(t, "needs photo", out.ReviewNotes)
	assert.False(t, ev.AffectsRanking())
}

func TestAffectsRanking(t *testing.T) {
	t.Parallel()

	assert.True(t, Event{OldStatus: record.StatusApproved, NewStatus: record.StatusPending}.AffectsRanking())
	assert.True(t, Event{OldStatus: record.StatusPending, NewStatus: record.StatusApproved}.AffectsRanking())
	assert.False(t, Event{OldStatus: record.StatusPending, NewStatus: record.StatusRejected}.AffectsRanking())
}

func TestHandlersReceiveEvents(t *testing.T) {
	t.Parallel()

	var fromOption, fromSubscribe []Event
	m := newTestMachine(WithHandler(func(e Event) { fromOption = append(fromOption, e) }))
	m.Subscribe(func(e Event) { fromSubscribe = append(fromSubscribe, e) })
	m.Subscribe(nil)

	approved, _, err := m.Transition(pendingRecord(), record.StatusApproved, scientist)
	require.NoError(t, err)
	_, _, err = m.Transition(approved, record.StatusRejected, scientist)
	require.Error(t, err)
	_, _, err = m.Transition(approved, record.StatusPending, scientist)
	require.NoError(t, err)

	require.Len(t, fromOption, 2)
	assert.Equal(t, fromOption, fromSubscribe)
	assert.Equal(t, record.StatusPending, fromOption[1].NewStatus)
}

func TestTargets(t *testing.T) {
	t.Parallel()

	assert.ElementsMatch(t, []record.Status{record.StatusApproved, record.StatusRejected}, Targets(record.StatusPending))
	assert.Equal(t, []record.Status{record.StatusPending}, Targets(record.StatusApproved))
	assert.Empty(t, Targets("bogus"))
}
