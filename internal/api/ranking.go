package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/biotrack/biotrack/internal/lifecycle"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/ranking"
)

// RankingResponse wraps the leaderboard.
type RankingResponse struct {
	Entries []ranking.Entry `json:"entries"`
	Count   int             `json:"count"`
}

// SyncResponse reports a sync pass triggered over the API.
type SyncResponse struct {
	lifecycle.SyncReport
	Error string `json:"error,omitempty"`
}

func (s *Server) getRanking(c echo.Context) error {
	entries, err := s.service.Ranking(c.Request().Context())
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []ranking.Entry{}
	}
	return c.JSON(http.StatusOK, RankingResponse{Entries: entries, Count: len(entries)})
}

func (s *Server) getRankingEntry(c echo.Context) error {
	entry, err := s.service.RankingFor(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *Server) getBadges(c echo.Context) error {
	badges, err := s.service.Badges(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, badges)
}

// runSync serves POST /sync. A failed remote fetch answers 502 with the
// partial report so callers still see what was pushed.
func (s *Server) runSync(c echo.Context) error {
	report, err := s.service.Sync(c.Request().Context())
	if err != nil {
		s.logger.Warn("sync over API failed", logger.Error(err))
		return c.JSON(statusFor(err), SyncResponse{SyncReport: report, Error: err.Error()})
	}
	return c.JSON(http.StatusOK, SyncResponse{SyncReport: report})
}
