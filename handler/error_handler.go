package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/requestid"
)

// ErrorInfo contains classified error information
type ErrorInfo struct {
	StatusCode int
	Message    string
	LogLevel   slog.Level
}

func isClientError(statusCode int) bool {
	return statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError
}

// determineLogLevel maps HTTP status codes to appropriate log levels
func determineLogLevel(statusCode int) slog.Level {
	if isClientError(statusCode) {
		return slog.LevelWarn
	}
	return slog.LevelError
}

// classifyError analyzes the error and returns structured error information
func classifyError(err error) ErrorInfo {
	info := ErrorInfo{
		StatusCode: http.StatusInternalServerError,
		Message:    "An error occurred processing your request",
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		info.StatusCode = httpErr.Code
		info.Message = httpErr.Key
	}

	// Validation errors override a plain HTTP error if both are present.
	var validationErr ValidationError
	if errors.As(err, &validationErr) {
		info.StatusCode = http.StatusUnprocessableEntity
		info.Message = validationErr.Error()
	}

	info.LogLevel = determineLogLevel(info.StatusCode)
	return info
}

// LogErrors returns an error handler that logs the failure with request
// context and renders it as a JSON error body. Client errors log at warn,
// server errors at error.
func LogErrors(log *slog.Logger) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx Context, err error) {
		info := classifyError(err)

		log.LogAttrs(ctx.Request().Context(), info.LogLevel, "request error",
			slog.String("request_id", requestid.FromContext(ctx.Request().Context())),
			logger.Error(err),
			slog.Int("status_code", info.StatusCode),
			slog.String("method", ctx.Request().Method),
			slog.String("path", ctx.Request().URL.Path),
			logger.Component("http"),
		)

		_ = JSONError(err).Render(ctx.ResponseWriter(), ctx.Request())
	}
}
