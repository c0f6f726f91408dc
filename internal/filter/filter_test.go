package filter

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biotrack/biotrack/internal/record"
)

func rec(id, owner string, status record.Status) record.Record {
	return record.Record{ID: id, OwnerID: owner, Kind: record.KindFlora, Status: status}
}

func ids(records []record.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

var sample = []record.Record{
	rec("1", "alice", record.StatusApproved),
	rec("2", "alice", record.StatusPending),
	rec("3", "bob", record.StatusApproved),
	rec("4", "alice", record.StatusRejected),
	rec("5", "bob", record.StatusPending),
}

func TestViews(t *testing.T) {
	t.Parallel()

	tests := []struct {
		view ViewName
		user string
		want []string
	}{
		{ViewApproved, "", []string{"1", "3"}},
		{ViewApproved, "alice", []string{"1", "3"}},
		{ViewMine, "alice", []string{"1", "2", "4"}},
		{ViewMinePending, "alice", []string{"2"}},
		{ViewMineApproved, "bob", []string{"3"}},
		{ViewMineRejected, "bob", []string{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.view)+"/"+tt.user, func(t *testing.T) {
			t.Parallel()
			got, err := View(tt.view, sample, tt.user)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestViewErrors(t *testing.T) {
	t.Parallel()

	_, err := View(ViewMine, sample, "")
	assert.True(t, record.IsValidation(err))
	_, err = View("everything", sample, "alice")
	assert.True(t, record.IsValidation(err))
}

func TestProjectionsDoNotMutateInput(t *testing.T) {
	t.Parallel()

	input := []record.Record{rec("1", "a", record.StatusApproved), rec("2", "a", record.StatusPending)}
	out := ApprovedAll(input)
	require.Len(t, out, 1)
	out[0].OwnerID = "changed"
	assert.Equal(t, "a", input[0].OwnerID)
	assert.Equal(t, []string{"1", "2"}, ids(input))
}

func TestByKind(t *testing.T) {
	t.Parallel()

	mixed := []record.Record{rec("1", "a", record.StatusPending), {ID: "2", Kind: record.KindFauna}}
	assert.Equal(t, []string{"2"}, ids(ByKind(mixed, record.KindFauna)))
	assert.Equal(t, []string{"1", "2"}, ids(ByKind(mixed, "")))
}

func TestBadgesMatchProjections(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	users := []string{"u0", "u1", "u2"}
	for range 300 {
		records := make([]record.Record, rng.IntN(30))
		for i := range records {
			records[i] = rec(fmt.Sprint(i), users[rng.IntN(len(users))], record.Statuses[rng.IntN(3)])
		}
		for _, u := range users {
			b := Badges(records, u)
			assert.Len(t, Mine(records, u), b.Total)
			assert.Len(t, MinePending(records, u), b.Pending)
			assert.Len(t, MineApproved(records, u), b.Approved)
			assert.Len(t, MineRejected(records, u), b.Rejected)
			assert.Equal(t, b.Total, b.Pending+b.Approved+b.Rejected)
		}
	}
}
