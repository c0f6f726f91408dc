package notification

import (
	"io"
	"sync"
	"testing"
	"time"

	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biotrack/biotrack/internal/approval"
	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/observability/metrics"
	"github.com/biotrack/biotrack/internal/record"
)

type sentMessage struct {
	urls    []string
	title   string
	message string
}

type fakeSender struct {
	urls []string
	hub  *fakeHub
}

func (s *fakeSender) Send(message string, params *stypes.Params) []error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	title, _ := params.Title()
	s.hub.sent = append(s.hub.sent, sentMessage{urls: s.urls, title: title, message: message})
	if s.hub.fail != nil {
		return []error{nil, s.hub.fail}
	}
	return nil
}

type fakeHub struct {
	mu      sync.Mutex
	created [][]string
	sent    []sentMessage
	fail    error
}

func (h *fakeHub) factory(urls ...string) (Sender, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.created = append(h.created, urls)
	return &fakeSender{urls: urls, hub: h}, nil
}

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func reviewed(status record.Status) (approval.Event, record.Record) {
	rec := record.Record{
		ID:          "r1",
		Kind:        record.KindFlora,
		OwnerID:     "alice smith",
		CommonName:  "Oak",
		Status:      status,
		ReviewNotes: "great shot",
	}
	ev := approval.Event{
		RecordID:  "r1",
		Kind:      record.KindFlora,
		OwnerID:   "alice smith",
		OldStatus: record.StatusPending,
		NewStatus: status,
		ActorID:   "sci",
		At:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	return ev, rec
}

func TestNewNotifierValidation(t *testing.T) {
	t.Parallel()

	hub := &fakeHub{}
	_, err := NewNotifier(Config{}, testLogger(), WithSenderFactory(hub.factory))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = NewNotifier(Config{URLs: []string{"generic://x"}, Template: "{{.Broken"}, testLogger(),
		WithSenderFactory(hub.factory))
	require.Error(t, err)

	_, err = NewNotifier(Config{URLs: []string{"generic://x"}, Statuses: []record.Status{"archived"}}, testLogger(),
		WithSenderFactory(hub.factory))
	require.Error(t, err)

	// Real shoutrrr parsing rejects unknown schemes without sending anything.
	_, err = NewNotifier(Config{URLs: []string{"nosuchservice://token@host"}}, testLogger())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "token@host")
}

func TestHandleReviewSendsPerOwnerMessage(t *testing.T) {
	t.Parallel()

	hub := &fakeHub{}
	n, err := NewNotifier(Config{URLs: []string{"ntfy://ntfy.sh/biotrack-{owner}"}}, testLogger(),
		WithSenderFactory(hub.factory))
	require.NoError(t, err)

	ev, rec := reviewed(record.StatusApproved)
	require.NoError(t, n.HandleReview(t.Context(), ev, rec))
	require.NoError(t, n.HandleReview(t.Context(), ev, rec))

	hub.mu.Lock()
	defer hub.mu.Unlock()
	require.Len(t, hub.sent, 2)
	assert.Equal(t, []string{"ntfy://ntfy.sh/biotrack-alice%20smith"}, hub.sent[0].urls)
	assert.Equal(t, "Observation approved", hub.sent[0].title)
	assert.Equal(t, `Your flora observation "Oak" was approved by sci. Notes: great shot`, hub.sent[0].message)
	// One validation sender plus one cached sender for the owner.
	assert.Len(t, hub.created, 2)
}

func TestHandleReviewSkipsUnwantedStatuses(t *testing.T) {
	t.Parallel()

	hub := &fakeHub{}
	n, err := NewNotifier(Config{URLs: []string{"generic://hook"}}, testLogger(), WithSenderFactory(hub.factory))
	require.NoError(t, err)

	ev, rec := reviewed(record.StatusPending)
	ev.OldStatus = record.StatusApproved
	assert.False(t, n.Wants(ev))
	require.NoError(t, n.HandleReview(t.Context(), ev, rec))

	hub.mu.Lock()
	defer hub.mu.Unlock()
	assert.Empty(t, hub.sent)
}

func TestComposeReopened(t *testing.T) {
	t.Parallel()

	hub := &fakeHub{}
	n, err := NewNotifier(Config{
		URLs:     []string{"generic://hook"},
		Statuses: []record.Status{record.StatusPending},
		Template: "{{.Record.CommonName}} {{.Verb}}",
	}, testLogger(), WithSenderFactory(hub.factory))
	require.NoError(t, err)

	ev, rec := reviewed(record.StatusPending)
	msg, err := n.Compose(ev, rec)
	require.NoError(t, err)
	assert.Equal(t, "Oak reopened", msg)
	assert.Equal(t, "Observation back in review", Title(ev))
}

func TestHandleReviewFailureRecordsMetricsAndOpensCircuit(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := metrics.NewNotificationMetrics(registry)
	require.NoError(t, err)

	hub := &fakeHub{fail: errors.NewStd("delivery failed for generic://secret@hook")}
	n, err := NewNotifier(Config{
		URLs:           []string{"generic://secret@hook"},
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Hour, HalfOpenMaxRequests: 1},
	}, testLogger(), WithSenderFactory(hub.factory), WithMetrics(m))
	require.NoError(t, err)

	ev, rec := reviewed(record.StatusRejected)
	for range 2 {
		err = n.HandleReview(t.Context(), ev, rec)
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "secret")
	}

	err = n.HandleReview(t.Context(), ev, rec)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCircuitOpen)

	hub.mu.Lock()
	assert.Len(t, hub.sent, 2, "open circuit does not call the sender")
	hub.mu.Unlock()

	assert.InDelta(t, 3, testutil.ToFloat64(m.SentTotal.WithLabelValues(metrics.StatusError)), 0)
	assert.InDelta(t, float64(StateOpen), testutil.ToFloat64(m.CircuitState), 0)
}
