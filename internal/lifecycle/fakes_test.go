package lifecycle

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/biotrack/biotrack/internal/approval"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/reconcile"
	"github.com/biotrack/biotrack/internal/record"
	"github.com/biotrack/biotrack/internal/remote"
)

var epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func ptr[T any](v T) *T { return &v }

// fakeLocal is an in-memory LocalStore.
type fakeLocal struct {
	mu      sync.Mutex
	records map[string]record.Record
	listErr error
}

func newFakeLocal(recs ...record.Record) *fakeLocal {
	l := &fakeLocal{records: make(map[string]record.Record)}
	for _, r := range recs {
		l.records[record.IdentityKey(r)] = r
	}
	return l
}

func (l *fakeLocal) List(context.Context) ([]record.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listErr != nil {
		return nil, l.listErr
	}
	out := make([]record.Record, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, r)
	}
	reconcile.SortRecords(out)
	return out, nil
}

func (l *fakeLocal) Get(_ context.Context, kind record.Kind, id string) (record.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[record.Key(kind, id)]
	if !ok {
		return record.Record{}, record.NewNotFoundError(record.Key(kind, id))
	}
	return r, nil
}

func (l *fakeLocal) Save(_ context.Context, rec record.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[record.IdentityKey(rec)] = rec
	return nil
}

func (l *fakeLocal) SaveAll(ctx context.Context, recs []record.Record) error {
	for _, r := range recs {
		if err := l.Save(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (l *fakeLocal) get(kind record.Kind, id string) record.Record {
	r, _ := l.Get(context.Background(), kind, id)
	return r
}

// fakeRemote is an in-memory remote.Source that behaves like a server:
// uploads become visible to later fetches.
type fakeRemote struct {
	mu         sync.Mutex
	raws       map[record.Kind][]record.Raw
	nextID     int
	failUpload map[string]error // by common name
	fetchErr   error
	statusErr  error
	fetches    int
	statusLog  []remote.StatusUpdate

	// When set before use, Upload signals uploadStarted and waits for releaseUpload.
	uploadStarted chan struct{}
	releaseUpload chan struct{}
}

func newFakeRemote(raws ...record.Raw) *fakeRemote {
	f := &fakeRemote{raws: make(map[record.Kind][]record.Raw), failUpload: make(map[string]error)}
	for _, r := range raws {
		f.raws[record.Kind(r.Kind)] = append(f.raws[record.Kind(r.Kind)], r)
	}
	return f
}

func (f *fakeRemote) FetchAll(_ context.Context, kind record.Kind) ([]record.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return slices.Clone(f.raws[kind]), nil
}

func (f *fakeRemote) FetchByOwner(_ context.Context, ownerID string) ([]record.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []record.Raw
	for _, kind := range record.Kinds {
		for _, r := range f.raws[kind] {
			if r.OwnerID == ownerID {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (f *fakeRemote) Upload(_ context.Context, rec record.Record) (string, error) {
	if f.uploadStarted != nil {
		f.uploadStarted <- struct{}{}
		<-f.releaseUpload
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failUpload[rec.CommonName]; err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("r-%d", f.nextID)
	raw := record.RawFrom(rec)
	raw.ID = id
	raw.RemoteID = ""
	raw.Origin = string(record.OriginRemote)
	f.raws[rec.Kind] = append(f.raws[rec.Kind], raw)
	return id, nil
}

func (f *fakeRemote) SetStatus(_ context.Context, remoteID string, update remote.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusLog = append(f.statusLog, update)
	if f.statusErr != nil {
		return f.statusErr
	}
	raws := f.raws[update.Kind]
	for i := range raws {
		if raws[i].ID != remoteID {
			continue
		}
		raws[i].Status = ptr(string(update.Status))
		raws[i].ApprovalStatus = nil
		raws[i].ReviewerID = update.ReviewerID
		raws[i].ReviewedAt = update.ReviewedAt
		raws[i].ReviewNotes = update.Notes
		return nil
	}
	return record.NewNotFoundError(record.Key(update.Kind, remoteID))
}

func (f *fakeRemote) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeRemote) status(kind record.Kind, id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.raws[kind] {
		if r.ID == id && r.Status != nil {
			return *r.Status
		}
	}
	return ""
}

func (f *fakeRemote) count(kind record.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.raws[kind])
}

// recordingSink captures review events.
type recordingSink struct {
	mu     sync.Mutex
	events []approval.Event
	err    error
}

func (s *recordingSink) HandleReview(_ context.Context, ev approval.Event, _ record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) Events() []approval.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

func remoteRaw(id, owner string, kind record.Kind, status string, minute int) record.Raw {
	return record.Raw{
		ID:         id,
		Origin:     string(record.OriginRemote),
		OwnerID:    owner,
		OwnerName:  owner,
		Kind:       string(kind),
		CommonName: "Specimen " + id,
		Lat:        ptr(60.17),
		Lon:        ptr(24.94),
		Status:     ptr(status),
		CreatedAt:  epoch.Add(time.Duration(minute) * time.Minute),
	}
}

func submission(kind record.Kind, name string) record.Raw {
	return record.Raw{
		Kind:       string(kind),
		CommonName: name,
		Lat:        ptr(61.5),
		Lon:        ptr(23.8),
	}
}

var (
	alice     = approval.Actor{ID: "alice", Role: approval.RoleUser}
	bob       = approval.Actor{ID: "bob", Role: approval.RoleUser}
	scientist = approval.Actor{ID: "dr-moss", Role: approval.RoleScientist}
)

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestService(local *fakeLocal, src *fakeRemote, cfg Config, opts ...Option) *Service {
	opts = append([]Option{
		WithClock(func() time.Time { return epoch.Add(time.Hour) }),
		WithIDGenerator(sequentialIDs("l")),
	}, opts...)
	return New(cfg, local, src, testLogger(), opts...)
}
