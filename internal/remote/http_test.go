package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/observability/metrics"
	"github.com/biotrack/biotrack/internal/record"
)

const testBaseURL = "https://api.example.test/v1"

type fakeRecorder struct {
	mu         sync.Mutex
	operations map[string]int
	errors     map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{operations: map[string]int{}, errors: map[string]int{}}
}

func (f *fakeRecorder) RecordOperation(op, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.operations[op+"/"+status]++
}

func (f *fakeRecorder) RecordDuration(string, float64) {}

func (f *fakeRecorder) RecordError(op, errorType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[op+"/"+errorType]++
}

// newMockedClient returns a client whose transport is an isolated httpmock
// transport, so tests can run in parallel.
func newMockedClient(t *testing.T, cfg HTTPConfig, opts ...HTTPOption) (*HTTPClient, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	if cfg.BaseURL == "" {
		cfg.BaseURL = testBaseURL
	}
	opts = append(opts, WithTransport(&http.Client{Transport: transport}))
	c, err := NewHTTPClient(cfg, logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC), opts...)
	require.NoError(t, err)
	return c, transport
}

func TestNewHTTPClientRejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	for _, base := range []string{"", "not a url", "/relative/path"} {
		_, err := NewHTTPClient(HTTPConfig{BaseURL: base}, nil)
		require.Error(t, err, base)
		assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration), base)
	}
}

func TestFetchAllDecodesMixedPayloads(t *testing.T) {
	t.Parallel()

	c, transport := newMockedClient(t, HTTPConfig{})
	transport.RegisterResponderWithQuery(http.MethodGet, testBaseURL+"/records", "kind=flora",
		httpmock.NewStringResponder(http.StatusOK, `{"data": [
			{"id": "r1", "kind": "flora", "ownerId": "alice", "commonName": "Oak",
			 "location": {"lat": 48.2, "lon": "16.37"}, "status": "APPROVED",
			 "reviewerId": "sci", "createdAt": "2024-05-01T10:00:00Z"},
			{"remote_id": "r2", "kind": "flora", "owner_id": "bob", "common_name": "Fern",
			 "lat": "1.5", "lon": 2.5, "approval_status": "pending", "created_at": 1714557600}
		]}`))

	raws, err := c.FetchAll(t.Context(), record.KindFlora)
	require.NoError(t, err)
	require.Len(t, raws, 2)

	for _, raw := range raws {
		assert.Equal(t, string(record.OriginRemote), raw.Origin)
		assert.Empty(t, raw.RemoteID)
	}
	assert.Equal(t, "r1", raws[0].ID)
	assert.Equal(t, "r2", raws[1].ID, "remote id is promoted to id")

	first, err := record.Normalize(raws[0])
	require.NoError(t, err)
	assert.Equal(t, record.StatusApproved, first.Status)
	assert.Equal(t, "sci", first.ReviewerID)

	second, err := record.Normalize(raws[1])
	require.NoError(t, err)
	assert.Equal(t, record.StatusPending, second.Status)
	assert.Equal(t, "remote", string(second.Origin))
}

func TestFetchByOwnerQuery(t *testing.T) {
	t.Parallel()

	c, transport := newMockedClient(t, HTTPConfig{})
	transport.RegisterResponderWithQuery(http.MethodGet, testBaseURL+"/records", "owner=alice",
		httpmock.NewStringResponder(http.StatusOK, `[]`))

	raws, err := c.FetchByOwner(t.Context(), "alice")
	require.NoError(t, err)
	assert.Empty(t, raws)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestUploadSendsPayloadAndReturnsID(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := record.Record{
		ID:         "local-1",
		Origin:     record.OriginLocal,
		OwnerID:    "alice",
		Kind:       record.KindFauna,
		CommonName: "Red fox",
		Location:   record.Location{Lat: 1, Lon: 2},
		Details:    record.FaunaDetails{AnimalClass: "mammal"},
		Status:     record.StatusPending,
		CreatedAt:  created,
	}

	var got map[string]any
	var headers http.Header
	c, transport := newMockedClient(t, HTTPConfig{Token: "secret", UserAgent: "biotrack-test"})
	transport.RegisterResponder(http.MethodPost, testBaseURL+"/records",
		func(req *http.Request) (*http.Response, error) {
			headers = req.Header.Clone()
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
			}
			return httpmock.NewStringResponse(http.StatusCreated, `{"remoteId": "srv-9"}`), nil
		})

	id, err := c.Upload(t.Context(), rec)
	require.NoError(t, err)
	assert.Equal(t, "srv-9", id)

	assert.Equal(t, "local-1", got["clientRef"])
	assert.Equal(t, "fauna", got["kind"])
	assert.Equal(t, "Red fox", got["commonName"])
	assert.Equal(t, map[string]any{"animalClass": "mammal"}, got["details"])
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	assert.Equal(t, "biotrack-test", headers.Get("User-Agent"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
}

func TestUploadResponseShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"remoteId", `{"remoteId": "a"}`, "a", false},
		{"snake", `{"remote_id": "b"}`, "b", false},
		{"plain id", `{"id": "c"}`, "c", false},
		{"envelope", `{"data": {"id": "d"}}`, "d", false},
		{"missing id", `{"ok": true}`, "", true},
		{"blank id", `{"id": "  "}`, "", true},
		{"not json", `created`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, transport := newMockedClient(t, HTTPConfig{})
			transport.RegisterResponder(http.MethodPost, testBaseURL+"/records",
				httpmock.NewStringResponder(http.StatusOK, tt.body))

			id, err := c.Upload(t.Context(), record.Record{ID: "x", Kind: record.KindFlora})
			if tt.wantErr {
				require.Error(t, err)
				assert.Empty(t, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestSetStatus(t *testing.T) {
	t.Parallel()

	reviewed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	update := StatusUpdate{
		Kind:       record.KindFlora,
		Status:     record.StatusApproved,
		ReviewerID: "sci",
		ReviewedAt: &reviewed,
		Notes:      "nice",
	}

	var got StatusUpdate
	c, transport := newMockedClient(t, HTTPConfig{})
	transport.RegisterResponder(http.MethodPatch, testBaseURL+"/records/flora/srv-1/status",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return nil, err
			}
			return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
		})
	transport.RegisterResponder(http.MethodPatch, testBaseURL+"/records/flora/missing/status",
		httpmock.NewStringResponder(http.StatusNotFound, `{"error": "no such record"}`))

	require.NoError(t, c.SetStatus(t.Context(), "srv-1", update))
	assert.Equal(t, update.Status, got.Status)
	assert.Equal(t, "sci", got.ReviewerID)
	require.NotNil(t, got.ReviewedAt)
	assert.True(t, reviewed.Equal(*got.ReviewedAt))

	err := c.SetStatus(t.Context(), "missing", update)
	require.Error(t, err)
	assert.True(t, record.IsNotFound(err))
	assert.Contains(t, err.Error(), "flora:missing")
}

func TestHTTPErrorsAreCategorized(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		category errors.ErrorCategory
		notFound bool
	}{
		{"bad request", http.StatusBadRequest, errors.CategoryHTTP, false},
		{"unauthorized", http.StatusUnauthorized, errors.CategoryHTTP, false},
		{"not found", http.StatusNotFound, errors.CategoryNotFound, true},
		{"server error", http.StatusInternalServerError, errors.CategoryHTTP, false},
		{"unavailable", http.StatusServiceUnavailable, errors.CategoryHTTP, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := newFakeRecorder()
			c, transport := newMockedClient(t, HTTPConfig{}, WithHTTPMetrics(rec))
			transport.RegisterResponderWithQuery(http.MethodGet, testBaseURL+"/records", "kind=fauna",
				httpmock.NewStringResponder(tt.status, `{"error": "boom"}`))

			raws, err := c.FetchAll(t.Context(), record.KindFauna)
			require.Error(t, err)
			assert.Nil(t, raws)
			assert.True(t, errors.IsCategory(err, tt.category))
			assert.Equal(t, tt.notFound, record.IsNotFound(err))

			rec.mu.Lock()
			defer rec.mu.Unlock()
			assert.Equal(t, 1, rec.operations[metrics.OpFetch+"/"+metrics.StatusError])
			assert.Equal(t, 1, rec.errors[metrics.OpFetch+"/"+string(tt.category)])
		})
	}
}

func TestTransportErrors(t *testing.T) {
	t.Parallel()

	c, transport := newMockedClient(t, HTTPConfig{})
	transport.RegisterResponder(http.MethodPost, testBaseURL+"/records",
		httpmock.NewErrorResponder(errors.NewStd("connection refused")))

	_, err := c.Upload(t.Context(), record.Record{ID: "x", Kind: record.KindFlora})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = c.Upload(ctx, record.Record{ID: "x", Kind: record.KindFlora})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDefaultTimeoutApplied(t *testing.T) {
	t.Parallel()

	var hadDeadline bool
	var remaining time.Duration
	c, transport := newMockedClient(t, HTTPConfig{Timeout: 5 * time.Second})
	transport.RegisterResponderWithQuery(http.MethodGet, testBaseURL+"/records", "kind=flora",
		func(req *http.Request) (*http.Response, error) {
			var deadline time.Time
			deadline, hadDeadline = req.Context().Deadline()
			remaining = time.Until(deadline)
			return httpmock.NewStringResponse(http.StatusOK, `[]`), nil
		})

	_, err := c.FetchAll(t.Context(), record.KindFlora)
	require.NoError(t, err)
	assert.True(t, hadDeadline)
	assert.LessOrEqual(t, remaining, 5*time.Second)
	assert.Greater(t, remaining, 3*time.Second)
}

func TestRateLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	c, transport := newMockedClient(t, HTTPConfig{RateLimit: 0.001, Burst: 1})
	transport.RegisterResponderWithQuery(http.MethodGet, testBaseURL+"/records", "kind=flora",
		httpmock.NewStringResponder(http.StatusOK, `[]`))

	_, err := c.FetchAll(t.Context(), record.KindFlora)
	require.NoError(t, err, "burst allows the first request")

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, err = c.FetchAll(ctx, record.KindFlora)
	require.Error(t, err)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}
