// Package approval implements the review state machine for records.
package approval

import (
	"sync"
	"time"

	"github.com/biotrack/biotrack/internal/record"
)

// Role is the permission level of an actor.
type Role string

const (
	RoleUser      Role = "user"
	RoleScientist Role = "scientist"
	RoleAdmin     Role = "admin"
)

// CanReview reports whether the role may change record status.
func (r Role) CanReview() bool {
	return r == RoleScientist || r == RoleAdmin
}

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role Role
}

// Event describes one successful status change.
type Event struct {
	RecordID  string
	Kind      record.Kind
	OwnerID   string
	OldStatus record.Status
	NewStatus record.Status
	ActorID   string
	At        time.Time
}

// AffectsRanking is true when the record enters or leaves the approved state.
func (e Event) AffectsRanking() bool {
	return (e.OldStatus == record.StatusApproved) != (e.NewStatus == record.StatusApproved)
}

// Key returns the identity key of the affected record.
func (e Event) Key() string {
	return record.Key(e.Kind, e.RecordID)
}

// EventHandler receives events after a transition has been applied.
type EventHandler func(Event)

var edges = map[record.Status][]record.Status{
	record.StatusPending:  {record.StatusApproved, record.StatusRejected},
	record.StatusApproved: {record.StatusPending},
	record.StatusRejected: {record.StatusPending},
}

// Allowed reports whether from -> to is a legal edge. approved and rejected
// only reach each other through pending.
func Allowed(from, to record.Status) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Targets lists the statuses reachable from s.
func Targets(s record.Status) []record.Status {
	return append([]record.Status(nil), edges[s]...)
}

// Machine applies transitions and notifies subscribers.
type Machine struct {
	now      func() time.Time
	mu       sync.RWMutex
	handlers []EventHandler
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the time source used for ReviewedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithHandler subscribes h at construction time.
func WithHandler(h EventHandler) Option {
	return func(m *Machine) {
		if h != nil {
			m.handlers = append(m.handlers, h)
		}
	}
}

// NewMachine creates a state machine.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe adds a handler invoked synchronously after every transition.
func (m *Machine) Subscribe(h EventHandler) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

type transitionOptions struct {
	notes    string
	hasNotes bool
}

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// WithNotes keeps notes as the review notes. Without it notes are cleared.
func WithNotes(notes string) TransitionOption {
	return func(o *transitionOptions) {
		o.notes = notes
		o.hasNotes = true
	}
}

// Transition moves rec to status on behalf of actor and returns the updated
// copy with the emitted event. The input record is not modified.
func (m *Machine) Transition(rec record.Record, to record.Status, actor Actor, opts ...TransitionOption) (record.Record, Event, error) {
	key := record.IdentityKey(rec)
	if actor.ID == "" || !actor.Role.CanReview() {
		return record.Record{}, Event{}, record.NewAuthorizationError(actor.ID, "review "+key)
	}
	if !Allowed(rec.Status, to) {
		return record.Record{}, Event{}, record.NewInvalidTransitionError(key, rec.Status, to)
	}

	var o transitionOptions
	for _, opt := range opts {
		opt(&o)
	}

	now := m.now()
	out := rec
	out.Status = to
	out.ReviewNotes = ""
	if o.hasNotes {
		out.ReviewNotes = o.notes
	}
	if to == record.StatusPending {
		// Reviewer fields exist only on reviewed records.
		out.ReviewerID = ""
		out.ReviewedAt = nil
	} else {
		out.ReviewerID = actor.ID
		out.ReviewedAt = &now
	}

	ev := Event{
		RecordID:  rec.ID,
		Kind:      rec.Kind,
		OwnerID:   rec.OwnerID,
		OldStatus: rec.Status,
		NewStatus: to,
		ActorID:   actor.ID,
		At:        now,
	}

	m.mu.RLock()
	handlers := m.handlers
	m.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
	return out, ev, nil
}
