package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/poldracklab/cogat/internal/platform/ctxutil"
)

const headerRequestID = "X-Request-Id"

// RequestMeta stamps every request with a request id, reusing an inbound
// X-Request-Id, and records the active span's trace id when otelgin runs first.
func RequestMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := ctxutil.RequestMeta{
			RequestID: strings.TrimSpace(c.GetHeader(headerRequestID)),
			Route:     c.FullPath(),
		}
		if meta.RequestID == "" || len(meta.RequestID) > 128 {
			meta.RequestID = uuid.NewString()
		}
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			meta.TraceID = sc.TraceID().String()
		}
		c.Request = c.Request.WithContext(ctxutil.WithRequestMeta(c.Request.Context(), meta))
		c.Header(headerRequestID, meta.RequestID)
		c.Next()
	}
}
