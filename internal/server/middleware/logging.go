package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/looplj/lifeline/internal/contexts"
	"github.com/looplj/lifeline/internal/tracing"
)

const (
	DefaultTraceHeader   = "LL-Trace-Id"
	DefaultRequestHeader = "LL-Request-Id"
)

// WithLoggingTracing stores the trace ID and request ID in the request context
// so later log entries carry them.
func WithLoggingTracing(config tracing.Config) gin.HandlerFunc {
	traceHeader := config.TraceHeader
	if traceHeader == "" {
		traceHeader = DefaultTraceHeader
	}

	requestHeader := config.RequestHeader
	if requestHeader == "" {
		requestHeader = DefaultRequestHeader
	}

	return func(c *gin.Context) {
		traceID := c.GetHeader(traceHeader)
		if traceID == "" {
			traceID = tracing.GenerateTraceID()
		}

		requestID := tracing.GenerateRequestID()

		c.Header(traceHeader, traceID)
		c.Header(requestHeader, requestID)

		ctx := tracing.WithTraceID(c.Request.Context(), traceID)
		ctx = tracing.WithRequestID(ctx, requestID)
		ctx = tracing.WithOperationName(ctx, fmt.Sprintf("%s %s", c.Request.Method, c.FullPath()))

		if name := c.Param("name"); name != "" {
			ctx = contexts.WithCollection(ctx, name)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
