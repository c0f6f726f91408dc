package lifecycle

import (
	"context"

	"github.com/biotrack/biotrack/internal/approval"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/record"
	"github.com/biotrack/biotrack/internal/remote"
)

// ReviewResult is the outcome of an applied review. RemoteErr is set when the
// local transition stands but the remote status update failed.
type ReviewResult struct {
	Record    record.Record
	Event     approval.Event
	RemoteErr error
}

// Review moves the record identified by kind and id to status. Authorization
// and transition errors abort before anything changes.
func (s *Service) Review(ctx context.Context, actor approval.Actor, kind record.Kind, id string, status record.Status, notes string) (ReviewResult, error) {
	result, err := s.applyReview(ctx, actor, kind, id, status, notes)
	if err != nil {
		return ReviewResult{}, err
	}
	s.dispatch(ctx, result.Event, result.Record)
	return result, nil
}

// applyReview stores the transition locally and remotely. The remote update
// happens under writeMu so a concurrent sync cannot fetch the old status over it.
func (s *Service) applyReview(ctx context.Context, actor approval.Actor, kind record.Kind, id string, status record.Status, notes string) (ReviewResult, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec, fromSnapshot, err := s.find(ctx, kind, id)
	if err != nil {
		return ReviewResult{}, err
	}

	var opts []approval.TransitionOption
	if notes != "" {
		opts = append(opts, approval.WithNotes(notes))
	}
	updated, ev, err := s.machine.Transition(rec, status, actor, opts...)
	if err != nil {
		return ReviewResult{}, err
	}

	if fromSnapshot {
		s.replaceInSnapshot(updated)
	} else if err := s.local.Save(ctx, updated); err != nil {
		return ReviewResult{}, err
	}
	if ev.AffectsRanking() {
		// The state machine invalidated before the new status was stored.
		s.ranking.Invalidate()
	}

	result := ReviewResult{Record: updated, Event: ev}
	if remoteID := updated.RemoteIdentity(); remoteID != "" {
		if err := s.remote.SetStatus(ctx, remoteID, remote.UpdateFrom(updated)); err != nil {
			result.RemoteErr = err
			if s.metrics != nil {
				s.metrics.RemoteStatusErrors.Inc()
			}
			s.log.Warn("remote status update failed, local review stands",
				logger.String("record", ev.Key()),
				logger.String("remote_id", remoteID),
				logger.Error(err))
		}
	}

	s.log.Info("record reviewed",
		logger.String("record", ev.Key()),
		logger.String("from", string(ev.OldStatus)),
		logger.String("to", string(ev.NewStatus)),
		logger.String("actor_id", actor.ID))
	return result, nil
}

func (s *Service) replaceInSnapshot(rec record.Record) {
	key := record.IdentityKey(rec)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.snapshot {
		if record.IdentityKey(s.snapshot[i]) == key {
			s.snapshot[i] = rec
			return
		}
	}
}

// dispatch hands the event to every sink. Sinks run sequentially with their
// own timeout and their failures are only logged.
func (s *Service) dispatch(ctx context.Context, ev approval.Event, rec record.Record) {
	// A canceled request must not suppress notifications of an applied review.
	base := context.WithoutCancel(ctx)
	for _, ns := range s.sinks {
		sinkCtx, cancel := context.WithTimeout(base, s.cfg.SinkTimeout)
		err := ns.sink.HandleReview(sinkCtx, ev, rec)
		cancel()
		if err != nil {
			s.log.Warn("review sink failed",
				logger.String("sink", ns.name),
				logger.String("record", ev.Key()),
				logger.Error(err))
		}
	}
}
