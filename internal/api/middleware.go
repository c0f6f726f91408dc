package api

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/biotrack/biotrack/internal/approval"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/observability/metrics"
	"github.com/biotrack/biotrack/internal/record"
)

// Headers set by the trusted gateway.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"

	actorContextKey = "actor"
)

// newRequestLogger logs one line per request.
func newRequestLogger(log logger.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.String("request_id", v.RequestID),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}
			log.Debug("request", fields...)
			return nil
		},
	})
}

// requestMetrics observes every request against its route pattern.
func requestMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			code := c.Response().Status
			if err != nil {
				code = statusFor(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.RecordRequest(c.Request().Method, route, code, time.Since(start).Seconds())
			return err
		}
	}
}

// actorMiddleware reads the gateway headers. Requests without an actor id
// proceed anonymously; handlers that need one fail with an authorization error.
func actorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := strings.TrimSpace(c.Request().Header.Get(HeaderActorID))
		if id == "" {
			return next(c)
		}
		role := approval.Role(strings.ToLower(strings.TrimSpace(c.Request().Header.Get(HeaderActorRole))))
		switch role {
		case "":
			role = approval.RoleUser
		case approval.RoleUser, approval.RoleScientist, approval.RoleAdmin:
		default:
			return record.NewValidationError("role", "unknown role %q", role)
		}
		c.Set(actorContextKey, approval.Actor{ID: id, Role: role})
		return next(c)
	}
}

// actorFrom returns the request actor, or the zero actor for anonymous calls.
func actorFrom(c echo.Context) approval.Actor {
	actor, _ := c.Get(actorContextKey).(approval.Actor)
	return actor
}
