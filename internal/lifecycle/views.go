package lifecycle

import (
	"context"

	"github.com/biotrack/biotrack/internal/filter"
	"github.com/biotrack/biotrack/internal/ranking"
	"github.com/biotrack/biotrack/internal/record"
)

// Ranking returns the leaderboard, recomputing it when the cache is cold.
func (s *Service) Ranking(ctx context.Context) ([]ranking.Entry, error) {
	entries, err := s.ranking.Leaderboard(ctx, s.Records)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.LeaderboardUsers.Set(float64(len(entries)))
	}
	return entries, nil
}

// RankingFor returns one user's leaderboard row.
func (s *Service) RankingFor(ctx context.Context, userID string) (ranking.Entry, error) {
	return s.ranking.Entry(ctx, s.Records, userID)
}

// View resolves a named projection of the merged records, optionally narrowed to one kind.
func (s *Service) View(ctx context.Context, name filter.ViewName, userID string, kind record.Kind) ([]record.Record, error) {
	if kind != "" && !kind.Valid() {
		return nil, record.NewValidationError("kind", "must be flora or fauna, got %q", kind)
	}
	records, err := s.Records(ctx)
	if err != nil {
		return nil, err
	}
	view, err := filter.View(name, records, userID)
	if err != nil {
		return nil, err
	}
	return filter.ByKind(view, kind), nil
}

// Badges counts userID's records by status.
func (s *Service) Badges(ctx context.Context, userID string) (filter.BadgeCounts, error) {
	if userID == "" {
		return filter.BadgeCounts{}, record.NewValidationError("user", "missing")
	}
	records, err := s.Records(ctx)
	if err != nil {
		return filter.BadgeCounts{}, err
	}
	return filter.Badges(records, userID), nil
}
