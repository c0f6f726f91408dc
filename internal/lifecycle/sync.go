package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/observability/metrics"
	"github.com/biotrack/biotrack/internal/record"
)

// SyncFailure describes one record a push pass could not upload.
type SyncFailure struct {
	Key   string `json:"key" yaml:"key"`
	Error string `json:"error" yaml:"error"`
}

// SyncReport summarizes one reconciliation pass.
type SyncReport struct {
	StartedAt time.Time     `json:"startedAt" yaml:"startedAt"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Pushed    int           `json:"pushed" yaml:"pushed"`
	Failed    []SyncFailure `json:"failed,omitempty" yaml:"failed,omitempty"`
	Fetched   int           `json:"fetched" yaml:"fetched"`
	Skipped   int           `json:"skipped" yaml:"skipped"`
	Total     int           `json:"total" yaml:"total"`
}

// Sync pushes pending local records, then refreshes the remote snapshot.
// Upload failures are reported, not returned: the records stay pending for the
// next pass. A fetch failure returns an error and keeps the previous snapshot,
// but the push results are persisted either way. Submissions, edits and
// reviews wait for a running pass.
func (s *Service) Sync(ctx context.Context) (report SyncReport, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	report.StartedAt = s.now().UTC()
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		if s.metrics != nil {
			status := metrics.StatusSuccess
			if err != nil {
				status = metrics.StatusError
			}
			s.metrics.RecordSync(status, report.Duration.Seconds(), report.Skipped)
		}
	}()

	local, err := s.local.List(ctx)
	if err != nil {
		return report, err
	}

	res := s.push(ctx, local)
	report.Pushed = len(res.Succeeded)
	for _, f := range res.Failed {
		report.Failed = append(report.Failed, SyncFailure{Key: f.Err.Key, Error: f.Err.Error()})
	}
	if len(res.Succeeded) > 0 {
		if err := s.local.SaveAll(ctx, res.Succeeded); err != nil {
			return report, err
		}
	}
	if len(res.Failed) > 0 {
		s.log.Warn("some uploads failed, records stay pending",
			logger.Int("failed", len(res.Failed)),
			logger.Error(res.Err()))
	}

	remote, skipped, err := s.fetchRemote(ctx)
	report.Skipped = skipped
	if err != nil {
		return report, err
	}
	report.Fetched = len(remote)

	s.mu.Lock()
	s.snapshot = remote
	s.lastSync = report.StartedAt
	s.mu.Unlock()
	s.ranking.Invalidate()

	merged, err := s.Records(ctx)
	if err != nil {
		return report, err
	}
	report.Total = len(merged)
	s.recordGauges(merged)

	s.log.Info("sync pass completed",
		logger.Int("pushed", report.Pushed),
		logger.Int("failed", len(report.Failed)),
		logger.Int("fetched", report.Fetched),
		logger.Int("skipped", report.Skipped),
		logger.Duration("elapsed", time.Since(start)))
	return report, nil
}

// fetchRemote loads and normalizes every remote record. Payloads that fail
// normalization are skipped and counted.
func (s *Service) fetchRemote(ctx context.Context) (out []record.Record, skipped int, err error) {
	for _, kind := range record.Kinds {
		raws, err := s.remote.FetchAll(ctx, kind)
		if err != nil {
			return nil, skipped, errors.New(fmt.Errorf("fetch %s records: %w", kind, err)).
				Component(componentName).
				Category(errors.CategoryNetwork).
				Priority(errors.PriorityMedium).
				Context("kind", string(kind)).
				Build()
		}
		for i := range raws {
			raw := raws[i]
			if raw.Kind == "" {
				raw.Kind = string(kind)
			}
			rec, err := record.Normalize(raw)
			if err != nil {
				skipped++
				s.log.Debug("skipping invalid remote payload",
					logger.String("kind", string(kind)),
					logger.String("id", raw.ID),
					logger.Error(err))
				continue
			}
			out = append(out, asRemote(rec))
		}
	}
	return out, skipped, nil
}

// asRemote marks a fetched record as remote: its id is its remote identity.
func asRemote(rec record.Record) record.Record {
	if rec.Origin == record.OriginRemote && rec.RemoteID == "" {
		return rec
	}
	if rec.RemoteID != "" {
		rec.ID = rec.RemoteID
	}
	rec.Origin = record.OriginRemote
	rec.RemoteID = ""
	return rec
}

func (s *Service) recordGauges(records []record.Record) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordsByStatus.Reset()
	for _, r := range records {
		s.metrics.RecordsByStatus.WithLabelValues(string(r.Kind), string(r.Status)).Inc()
	}
}
