package api

import (
	"crypto/rand"
	"math/big"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/record"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			b[i] = charset[i%len(charset)]
			continue
		}
		b[i] = charset[n.Int64()]
	}
	return string(b)
}

// statusFor maps the lifecycle error taxonomy to HTTP status codes.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case record.IsValidation(err):
		return http.StatusBadRequest
	case record.IsAuthorization(err):
		return http.StatusForbidden
	case record.IsNotFound(err):
		return http.StatusNotFound
	case record.IsInvalidTransition(err):
		return http.StatusConflict
	case record.IsUpload(err),
		errors.IsCategory(err, errors.CategoryNetwork),
		errors.IsCategory(err, errors.CategoryHTTP),
		errors.IsCategory(err, errors.CategoryTimeout),
		errors.IsCategory(err, errors.CategoryDatabase):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusForbidden:
		return "not allowed"
	case http.StatusNotFound:
		return "not found"
	case http.StatusConflict:
		return "status change not allowed"
	case http.StatusBadGateway:
		return "remote source unavailable"
	default:
		return http.StatusText(code)
	}
}

// errorHandler is the echo HTTPErrorHandler.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := statusFor(err)

	var he *echo.HTTPError
	message := messageFor(code)
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			message = m
		}
	}
	resp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.Int("code", code),
		logger.String("path", c.Request().URL.Path),
		logger.String("method", c.Request().Method),
		logger.Error(err),
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("API error", fields...)
	} else {
		s.logger.Debug("API error", fields...)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	if writeErr := c.JSON(code, resp); writeErr != nil {
		s.logger.Warn("failed to write error response", logger.Error(writeErr))
	}
}
