package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnayoung/go-btc-chart/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware reuses the caller's request id or issues a new one and
// carries it on the request context.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = logger.NewRequestID()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// apiRecorder observes served requests. *metrics.Collector satisfies it.
type apiRecorder interface {
	RecordAPIRequest(route string, status int, duration time.Duration)
}

type noopAPIRecorder struct{}

func (noopAPIRecorder) RecordAPIRequest(string, int, time.Duration) {}

func loggingMiddleware(l *slog.Logger, recorder apiRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		recorder.RecordAPIRequest(route, status, time.Since(start))

		level := slog.LevelDebug
		if status >= 500 {
			level = slog.LevelError
		}
		logger.LogDuration(c.Request.Context(), logger.FromContext(c.Request.Context(), l), level, "request handled", start,
			"method", c.Request.Method, "route", route, "status", status)
	}
}
