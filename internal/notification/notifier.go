// Package notification tells observers when a scientist reviewed their record.
package notification

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/url"
	"strings"
	"sync"
	"text/template"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/biotrack/biotrack/internal/approval"
	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/observability/metrics"
	"github.com/biotrack/biotrack/internal/record"
)

const (
	componentName = "notification"

	// OwnerPlaceholder in a service URL is replaced with the record owner's id,
	// so each observer can have a channel of their own.
	OwnerPlaceholder = "{owner}"

	opSend = "send"

	// DefaultMessageTemplate renders the notification body.
	DefaultMessageTemplate = `Your {{.Kind}} observation "{{.Record.CommonName}}" was {{.Verb}} by {{.Event.ActorID}}.` +
		`{{if .Record.ReviewNotes}} Notes: {{.Record.ReviewNotes}}{{end}}`
)

// Config configures the notifier.
type Config struct {
	// URLs are shoutrrr service URLs. Each may contain OwnerPlaceholder.
	URLs    []string
	Timeout time.Duration
	// Statuses lists the new statuses that trigger a notification.
	// Defaults to approved and rejected.
	Statuses []record.Status
	// Template overrides DefaultMessageTemplate.
	Template       string
	CircuitBreaker CircuitBreakerConfig
}

// Sender delivers one message. *router.ServiceRouter satisfies it.
type Sender interface {
	Send(message string, params *stypes.Params) []error
}

// SenderFactory builds a Sender for a set of service URLs.
type SenderFactory func(urls ...string) (Sender, error)

// ShoutrrrFactory returns a factory backed by shoutrrr with its logger silenced.
func ShoutrrrFactory(timeout time.Duration) SenderFactory {
	return func(urls ...string) (Sender, error) {
		sender, err := shoutrrr.CreateSender(urls...)
		if err != nil {
			return nil, err
		}
		if timeout > 0 {
			sender.Timeout = timeout
		}
		sender.SetLogger(log.New(io.Discard, "", 0))
		return sender, nil
	}
}

// Notifier sends review decisions to the record owner.
type Notifier struct {
	urls     []string
	statuses map[record.Status]bool
	tmpl     *template.Template
	factory  SenderFactory
	breaker  *CircuitBreaker
	metrics  metrics.Recorder
	gauge    stateGauge
	log      logger.Logger

	mu      sync.Mutex
	senders map[string]Sender
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSenderFactory replaces shoutrrr, mainly for tests.
func WithSenderFactory(f SenderFactory) Option {
	return func(n *Notifier) {
		if f != nil {
			n.factory = f
		}
	}
}

// WithMetrics records delivery metrics and the breaker state.
func WithMetrics(m *metrics.NotificationMetrics) Option {
	return func(n *Notifier) {
		if m != nil {
			n.metrics = m
			n.gauge = m
		}
	}
}

// NewNotifier validates cfg, including every service URL.
func NewNotifier(cfg Config, log logger.Logger, opts ...Option) (*Notifier, error) {
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	if len(cfg.URLs) == 0 {
		return nil, configError("at least one notification URL is required")
	}

	text := cfg.Template
	if strings.TrimSpace(text) == "" {
		text = DefaultMessageTemplate
	}
	tmpl, err := template.New("notification").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, configError("invalid message template: %v", err)
	}

	statuses := cfg.Statuses
	if len(statuses) == 0 {
		statuses = []record.Status{record.StatusApproved, record.StatusRejected}
	}

	n := &Notifier{
		urls:     append([]string(nil), cfg.URLs...),
		statuses: make(map[record.Status]bool, len(statuses)),
		tmpl:     tmpl,
		factory:  ShoutrrrFactory(cfg.Timeout),
		metrics:  metrics.NopRecorder{},
		log:      log,
		senders:  make(map[string]Sender),
	}
	for _, s := range statuses {
		if !s.Valid() {
			return nil, configError("unknown status %q", s)
		}
		n.statuses[s] = true
	}
	for _, opt := range opts {
		opt(n)
	}
	breakerCfg := cfg.CircuitBreaker
	if breakerCfg == (CircuitBreakerConfig{}) {
		breakerCfg = DefaultCircuitBreakerConfig()
	}
	n.breaker = NewCircuitBreaker(breakerCfg, n.gauge, log)

	// Building a sender parses every URL without sending anything.
	if _, err := n.factory(n.expand("validation")...); err != nil {
		return nil, configError("invalid notification URL: %s", n.sanitize(err.Error(), "validation"))
	}
	return n, nil
}

func configError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component(componentName).
		Category(errors.CategoryConfiguration).
		Build()
}

// Wants reports whether ev triggers a notification.
func (n *Notifier) Wants(ev approval.Event) bool {
	return n.statuses[ev.NewStatus]
}

// HandleReview notifies the owner of rec about ev.
func (n *Notifier) HandleReview(ctx context.Context, ev approval.Event, rec record.Record) error {
	if !n.Wants(ev) || ev.OwnerID == "" {
		return nil
	}

	message, err := n.Compose(ev, rec)
	if err != nil {
		return err
	}
	sender, err := n.senderFor(ev.OwnerID)
	if err != nil {
		return err
	}

	start := time.Now()
	err = n.breaker.Call(ctx, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		params := stypes.Params{}
		params.SetTitle(Title(ev))
		for _, sendErr := range sender.Send(message, &params) {
			if sendErr != nil {
				return errors.Newf("%s", n.sanitize(sendErr.Error(), ev.OwnerID)).
					Component(componentName).
					Category(errors.CategoryNotification).
					Context("record", ev.Key()).
					Build()
			}
		}
		return nil
	})
	n.metrics.RecordDuration(opSend, time.Since(start).Seconds())
	if err != nil {
		n.metrics.RecordOperation(opSend, metrics.StatusError)
		n.metrics.RecordError(opSend, string(errorCategory(err)))
		return err
	}
	n.metrics.RecordOperation(opSend, metrics.StatusSuccess)
	n.log.Debug("owner notified",
		logger.String("record", ev.Key()),
		logger.String("owner_id", ev.OwnerID),
		logger.String("status", string(ev.NewStatus)))
	return nil
}

// Title is the notification title for ev.
func Title(ev approval.Event) string {
	switch ev.NewStatus {
	case record.StatusApproved:
		return "Observation approved"
	case record.StatusRejected:
		return "Observation rejected"
	default:
		return "Observation back in review"
	}
}

type messageData struct {
	Event  approval.Event
	Record record.Record
	Kind   record.Kind
	Verb   string
}

// Compose renders the message body for ev.
func (n *Notifier) Compose(ev approval.Event, rec record.Record) (string, error) {
	verb := string(ev.NewStatus)
	if ev.NewStatus == record.StatusPending {
		verb = "reopened"
	}
	var buf bytes.Buffer
	if err := n.tmpl.Execute(&buf, messageData{Event: ev, Record: rec, Kind: ev.Kind, Verb: verb}); err != nil {
		return "", errors.New(err).
			Component(componentName).
			Category(errors.CategoryNotification).
			Context("record", ev.Key()).
			Build()
	}
	return buf.String(), nil
}

func (n *Notifier) senderFor(ownerID string) (Sender, error) {
	key := ""
	if n.perOwner() {
		key = ownerID
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if s, ok := n.senders[key]; ok {
		return s, nil
	}
	s, err := n.factory(n.expand(ownerID)...)
	if err != nil {
		return nil, errors.Newf("create sender: %s", n.sanitize(err.Error(), ownerID)).
			Component(componentName).
			Category(errors.CategoryNotification).
			Build()
	}
	n.senders[key] = s
	return s, nil
}

func (n *Notifier) perOwner() bool {
	for _, u := range n.urls {
		if strings.Contains(u, OwnerPlaceholder) {
			return true
		}
	}
	return false
}

func (n *Notifier) expand(ownerID string) []string {
	out := make([]string, len(n.urls))
	for i, u := range n.urls {
		out[i] = strings.ReplaceAll(u, OwnerPlaceholder, url.PathEscape(ownerID))
	}
	return out
}

// sanitize strips service URLs, which carry tokens, from msg.
func (n *Notifier) sanitize(msg, ownerID string) string {
	for _, u := range n.expand(ownerID) {
		msg = strings.ReplaceAll(msg, u, "[service-url]")
	}
	return msg
}

func errorCategory(err error) errors.ErrorCategory {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return errors.CategoryGeneric
}

// Close drops cached senders.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	clear(n.senders)
}
