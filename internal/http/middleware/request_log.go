package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/poldracklab/cogat/internal/platform/ctxutil"
	"github.com/poldracklab/cogat/internal/platform/logger"
)

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil {
			return
		}

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		fields := []any{
			"method", c.Request.Method,
			"route", route,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if meta, ok := ctxutil.RequestMetaFrom(c.Request.Context()); ok {
			fields = append(fields, "request_id", meta.RequestID)
			if meta.TraceID != "" {
				fields = append(fields, "trace_id", meta.TraceID)
			}
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields = append(fields, "query", q)
		}
		if actor := ctxutil.GetActor(c.Request.Context()); actor.Valid() {
			fields = append(fields, "user_id", actor.ID)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("request failed", fields...)
		case status >= 400:
			log.Warn("request rejected", fields...)
		default:
			log.Debug("request served", fields...)
		}
	}
}
