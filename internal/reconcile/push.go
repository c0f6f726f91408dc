package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/record"
)

// DefaultConcurrency bounds simultaneous uploads in one push pass.
const DefaultConcurrency = 4

// UploadFunc persists one record remotely and returns the id the remote assigned.
type UploadFunc func(ctx context.Context, rec record.Record) (remoteID string, err error)

// Failure pairs a record left untouched with the reason its upload failed.
type Failure struct {
	Record record.Record
	Err    *record.UploadError
}

// PushResult is the outcome of one best-effort push pass. Both slices keep
// the order of the input.
type PushResult struct {
	Succeeded []record.Record
	Failed    []Failure
}

// Attempted returns the number of records the pass tried to upload.
func (r PushResult) Attempted() int {
	return len(r.Succeeded) + len(r.Failed)
}

// Err joins the individual upload failures, or returns nil.
func (r PushResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i := range r.Failed {
		errs[i] = r.Failed[i].Err
	}
	return errors.Join(errs...)
}

type pushOptions struct {
	concurrency int
	timeout     time.Duration
}

// PushOption customizes PushPending.
type PushOption func(*pushOptions)

// WithConcurrency bounds simultaneous uploads. Values below one mean one.
func WithConcurrency(n int) PushOption {
	return func(o *pushOptions) {
		o.concurrency = max(n, 1)
	}
}

// WithTimeout bounds each upload call. Zero leaves timeouts to the transport.
func WithTimeout(d time.Duration) PushOption {
	return func(o *pushOptions) {
		o.timeout = d
	}
}

// Pending returns the records PushPending would upload: local origin, no remote id.
func Pending(records []record.Record) []record.Record {
	var out []record.Record
	for _, r := range records {
		if r.IsLocalOnly() {
			out = append(out, r)
		}
	}
	return out
}

// PushPending uploads every local-only record. A failed or panicking upload
// leaves its record untouched and never affects the others. Nothing is retried.
func PushPending(ctx context.Context, records []record.Record, upload UploadFunc, opts ...PushOption) PushResult {
	o := pushOptions{concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(&o)
	}

	pending := Pending(records)
	if len(pending) == 0 {
		return PushResult{}
	}

	// Each goroutine owns exactly one slot.
	outcomes := make([]pushOutcome, len(pending))

	// A plain Group: one failure must not cancel the siblings.
	var g errgroup.Group
	g.SetLimit(o.concurrency)

	for i := range pending {
		rec := pending[i]
		g.Go(func() error {
			outcomes[i] = pushOne(ctx, rec, upload, o.timeout)
			return nil
		})
	}
	_ = g.Wait()

	var res PushResult
	for _, oc := range outcomes {
		if oc.err != nil {
			res.Failed = append(res.Failed, Failure{Record: oc.rec, Err: oc.err})
			continue
		}
		res.Succeeded = append(res.Succeeded, oc.rec)
	}
	return res
}

type pushOutcome struct {
	rec record.Record
	err *record.UploadError
}

func pushOne(ctx context.Context, rec record.Record, upload UploadFunc, timeout time.Duration) (oc pushOutcome) {
	key := record.IdentityKey(rec)
	oc.rec = rec

	defer func() {
		if p := recover(); p != nil {
			oc.rec = rec
			oc.err = record.NewUploadError(key, fmt.Errorf("upload panicked: %v", p))
		}
	}()

	if err := ctx.Err(); err != nil {
		oc.err = record.NewUploadError(key, err)
		return oc
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	remoteID, err := upload(callCtx, rec)
	if err != nil {
		oc.err = record.NewUploadError(key, err)
		return oc
	}
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		oc.err = record.NewUploadError(key, errors.NewStd("remote returned an empty id"))
		return oc
	}

	oc.rec.Origin = record.OriginRemote
	oc.rec.RemoteID = remoteID
	return oc
}
