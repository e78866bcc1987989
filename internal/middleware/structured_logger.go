// Package middleware provides HTTP middleware for the auth proxy.
// This file implements structured request logging.
//
// Logged fields per request: request_id, method, path, status, duration_ms,
// client_ip. Level follows the status class: INFO for 2xx, WARN for 4xx,
// ERROR for 5xx. The /health endpoint is skipped to keep probe noise out of
// the logs. Request and response bodies are never logged here; the audit
// trail for command dispatches lives with the /cli handler, where masking
// is applied.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/delight-co/finest-grained-auth-proxy/internal/logger"
)

// StructuredLogger provides structured logging for all requests
func StructuredLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if path == "/health" {
			return
		}

		duration := time.Since(start)
		status := c.Writer.Status()

		var entry *zerolog.Event
		log := logger.HTTP()
		switch {
		case status >= 500:
			entry = log.Error()
		case status >= 400:
			entry = log.Warn()
		default:
			entry = log.Info()
		}

		entry.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Int64("duration_ms", duration.Milliseconds()).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
