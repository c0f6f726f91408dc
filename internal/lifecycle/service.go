// Package lifecycle orchestrates the record lifecycle: submissions go to the
// local buffer, sync passes push them upstream and pull the remote snapshot,
// reviews move records through the approval state machine and fan the
// resulting events out to the ranking engine and the configured sinks.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/biotrack/biotrack/internal/approval"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/observability/metrics"
	"github.com/biotrack/biotrack/internal/ranking"
	"github.com/biotrack/biotrack/internal/reconcile"
	"github.com/biotrack/biotrack/internal/record"
	"github.com/biotrack/biotrack/internal/remote"
)

const (
	componentName = "lifecycle"

	// DefaultSinkTimeout bounds each sink call after a review.
	DefaultSinkTimeout = 10 * time.Second
)

// LocalStore is the on-device buffer of records created here.
type LocalStore interface {
	List(ctx context.Context) ([]record.Record, error)
	Get(ctx context.Context, kind record.Kind, id string) (record.Record, error)
	Save(ctx context.Context, rec record.Record) error
	SaveAll(ctx context.Context, recs []record.Record) error
}

// EventSink receives review decisions after they have been applied.
// Failures are logged and never undo the review.
type EventSink interface {
	HandleReview(ctx context.Context, ev approval.Event, rec record.Record) error
}

// Config tunes the service. Zero values select defaults.
type Config struct {
	PushOnSubmit  bool
	Concurrency   int
	UploadTimeout time.Duration
	SinkTimeout   time.Duration
	RankingTTL    time.Duration
}

type namedSink struct {
	name string
	sink EventSink
}

// Service is safe for concurrent use.
type Service struct {
	cfg     Config
	local   LocalStore
	remote  remote.Source
	machine *approval.Machine
	ranking *ranking.Engine
	sinks   []namedSink
	metrics *metrics.LifecycleMetrics
	log     logger.Logger
	now     func() time.Time
	newID   func() string

	// mu guards the remote snapshot.
	mu       sync.RWMutex
	snapshot []record.Record
	lastSync time.Time

	// writeMu serializes sync passes with submissions, edits and reviews, so an
	// upload result or a fetched snapshot never replaces a newer decision.
	writeMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithSink adds a named event sink.
func WithSink(name string, sink EventSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sinks = append(s.sinks, namedSink{name: name, sink: sink})
		}
	}
}

// WithMetrics records lifecycle metrics.
func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source for submissions and reviews.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides uuid based ids for new submissions.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New wires a service around the local buffer and the remote source.
func New(cfg Config, local LocalStore, src remote.Source, log logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = reconcile.DefaultConcurrency
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = DefaultSinkTimeout
	}

	s := &Service{
		cfg:    cfg,
		local:  local,
		remote: src,
		log:    log,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ranking = ranking.NewEngine(cfg.RankingTTL, log.Module("ranking"))
	s.machine = approval.NewMachine(
		approval.WithClock(func() time.Time { return s.now().UTC() }),
		approval.WithHandler(s.ranking.HandleEvent),
	)
	if s.metrics != nil {
		m := s.metrics
		s.machine.Subscribe(func(ev approval.Event) {
			m.RecordTransition(string(ev.Kind), string(ev.OldStatus), string(ev.NewStatus))
		})
	}
	return s
}

// Machine exposes the state machine so callers can subscribe extra handlers.
func (s *Service) Machine() *approval.Machine {
	return s.machine
}

// LastSync returns when the remote snapshot was last refreshed.
func (s *Service) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

func (s *Service) snapshotCopy() []record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]record.Record, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}

// Records returns the merged view of the local buffer and the last remote snapshot.
func (s *Service) Records(ctx context.Context) ([]record.Record, error) {
	local, err := s.local.List(ctx)
	if err != nil {
		return nil, err
	}
	return reconcile.Merge(local, s.snapshotCopy()), nil
}

// find locates a record in the merged view. fromSnapshot reports whether the
// returned copy is the remote one.
func (s *Service) find(ctx context.Context, kind record.Kind, id string) (rec record.Record, fromSnapshot bool, err error) {
	records, err := s.Records(ctx)
	if err != nil {
		return record.Record{}, false, err
	}
	key := record.Key(kind, id)
	if r, ok := lookup(records, key); ok {
		return r, s.inSnapshot(record.IdentityKey(r)), nil
	}

	// A synced local record is shadowed by its remote copy; follow its remote id.
	if buffered, err := s.local.Get(ctx, kind, id); err == nil {
		if rk := record.RemoteKey(buffered); rk != "" && rk != key {
			if r, ok := lookup(records, rk); ok {
				return r, s.inSnapshot(record.IdentityKey(r)), nil
			}
		}
	} else if !record.IsNotFound(err) {
		return record.Record{}, false, err
	}
	return record.Record{}, false, record.NewNotFoundError(key)
}

func lookup(records []record.Record, key string) (record.Record, bool) {
	for _, r := range records {
		if record.IdentityKey(r) == key || (r.RemoteID != "" && record.RemoteKey(r) == key) {
			return r, true
		}
	}
	return record.Record{}, false
}

func (s *Service) inSnapshot(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.snapshot {
		if record.IdentityKey(s.snapshot[i]) == key {
			return true
		}
	}
	return false
}

// Submit creates a pending local record owned by the actor. With push on
// submit enabled it also tries to upload it; a failed upload is logged and the
// record simply stays local.
func (s *Service) Submit(ctx context.Context, actor approval.Actor, raw record.Raw) (record.Record, error) {
	if actor.ID == "" {
		return record.Record{}, record.NewAuthorizationError(actor.ID, "submit")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	pending := string(record.StatusPending)
	raw.ID = s.newID()
	raw.RemoteID = ""
	raw.Origin = string(record.OriginLocal)
	raw.OwnerID = actor.ID
	raw.Status = &pending
	raw.ApprovalStatus = nil
	raw.ReviewerID = ""
	raw.ReviewedAt = nil
	raw.ReviewNotes = ""
	raw.CreatedAt = s.now().UTC()

	rec, err := record.Normalize(raw)
	if err != nil {
		return record.Record{}, err
	}
	if err := s.local.Save(ctx, rec); err != nil {
		return record.Record{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordSubmission(string(rec.Kind))
	}
	s.log.Info("record submitted",
		logger.String("record", record.IdentityKey(rec)),
		logger.String("owner_id", rec.OwnerID))

	if !s.cfg.PushOnSubmit {
		return rec, nil
	}

	res := s.push(ctx, []record.Record{rec})
	if len(res.Succeeded) == 1 {
		pushed := res.Succeeded[0]
		if err := s.local.Save(ctx, pushed); err != nil {
			s.log.Warn("failed to persist upload result",
				logger.String("record", record.IdentityKey(pushed)),
				logger.Error(err))
			return rec, nil
		}
		return pushed, nil
	}
	for _, f := range res.Failed {
		s.log.Warn("upload on submit failed, record stays pending",
			logger.String("record", f.Err.Key),
			logger.Error(f.Err.Err))
	}
	return rec, nil
}

// Edit applies an owner correction to a record that has not been synced.
func (s *Service) Edit(ctx context.Context, actor approval.Actor, kind record.Kind, id string, edit record.Edit) (record.Record, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec, _, err := s.find(ctx, kind, id)
	if err != nil {
		return record.Record{}, err
	}
	updated, err := record.ApplyEdit(rec, actor.ID, edit)
	if err != nil {
		return record.Record{}, err
	}
	if err := s.local.Save(ctx, updated); err != nil {
		return record.Record{}, err
	}
	s.log.Debug("record edited", logger.String("record", record.IdentityKey(updated)))
	return updated, nil
}

func (s *Service) push(ctx context.Context, records []record.Record) reconcile.PushResult {
	res := reconcile.PushPending(ctx, records, s.remote.Upload,
		reconcile.WithConcurrency(s.cfg.Concurrency),
		reconcile.WithTimeout(s.cfg.UploadTimeout))
	if s.metrics != nil && res.Attempted() > 0 {
		s.metrics.RecordPush(len(res.Succeeded), len(res.Failed))
	}
	return res
}
