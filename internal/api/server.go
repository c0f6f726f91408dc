package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/biotrack/biotrack/internal/approval"
	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/filter"
	"github.com/biotrack/biotrack/internal/lifecycle"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/observability"
	"github.com/biotrack/biotrack/internal/ranking"
	"github.com/biotrack/biotrack/internal/record"
)

// Service is the lifecycle surface the handlers use.
type Service interface {
	Records(ctx context.Context) ([]record.Record, error)
	View(ctx context.Context, name filter.ViewName, userID string, kind record.Kind) ([]record.Record, error)
	Submit(ctx context.Context, actor approval.Actor, raw record.Raw) (record.Record, error)
	Edit(ctx context.Context, actor approval.Actor, kind record.Kind, id string, edit record.Edit) (record.Record, error)
	Review(ctx context.Context, actor approval.Actor, kind record.Kind, id string, status record.Status, notes string) (lifecycle.ReviewResult, error)
	Sync(ctx context.Context) (lifecycle.SyncReport, error)
	Ranking(ctx context.Context) ([]ranking.Entry, error)
	RankingFor(ctx context.Context, userID string) (ranking.Entry, error)
	Badges(ctx context.Context, userID string) (filter.BadgeCounts, error)
	LastSync() time.Time
}

var _ Service = (*lifecycle.Service)(nil)

// Server is the HTTP front of the lifecycle service.
type Server struct {
	echo      *echo.Echo
	config    *Config
	service   Service
	metrics   *observability.Metrics
	logger    logger.Logger
	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetrics records request metrics and, when enabled in the config, serves /metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a server with every route registered.
func New(cfg *Config, svc Service, opts ...ServerOption) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.applyDefaults()

	s := &Server{
		echo:      echo.New(),
		config:    cfg,
		service:   svc,
		logger:    GetLogger(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.errorHandler
	s.echo.Server.ReadTimeout = cfg.ReadTimeout
	s.echo.Server.WriteTimeout = cfg.WriteTimeout
	s.echo.Server.IdleTimeout = DefaultIdleTimeout

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Echo exposes the router, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(echomw.RequestID())
	s.echo.Use(echomw.BodyLimit(s.config.BodyLimit))
	s.echo.Use(newRequestLogger(s.logger.Module("http")))
	if s.metrics != nil {
		s.echo.Use(requestMetrics(s.metrics.HTTP))
	}
	s.echo.Use(actorMiddleware)
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.health)
	if s.config.Metrics && s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/records", s.listRecords)
	v1.POST("/records", s.submitRecord)
	v1.PATCH("/records/:kind/:id", s.editRecord)
	v1.POST("/records/:kind/:id/review", s.reviewRecord)
	v1.POST("/sync", s.runSync)
	v1.GET("/ranking", s.getRanking)
	v1.GET("/ranking/:userId", s.getRankingEntry)
	v1.GET("/users/:userId/badges", s.getBadges)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.logger.Info("HTTP server listening", logger.String("address", s.config.Listen))
		if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.New(err).
				Component("api").
				Category(errors.CategoryNetwork).
				Priority(errors.PriorityHigh).
				Context("address", s.config.Listen).
				Build()
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down HTTP server")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	resp := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	}
	if last := s.service.LastSync(); !last.IsZero() {
		resp["lastSync"] = last
	}
	return c.JSON(http.StatusOK, resp)
}
