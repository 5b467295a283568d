package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looplj/lifeline/internal/contexts"
	"github.com/looplj/lifeline/internal/tracing"
)

func TestWithLoggingTracing(t *testing.T) {
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(WithLoggingTracing(tracing.Config{}))

	engine.GET("/api/collections/:name", func(c *gin.Context) {
		ctx := c.Request.Context()

		traceID, ok := tracing.GetTraceID(ctx)
		assert.True(t, ok)
		assert.True(t, strings.HasPrefix(traceID, "ll-"))

		requestID, ok := tracing.GetRequestID(ctx)
		assert.True(t, ok)
		assert.True(t, strings.HasPrefix(requestID, "req-"))

		op, ok := tracing.GetOperationName(ctx)
		assert.True(t, ok)
		assert.Equal(t, "GET /api/collections/:name", op)

		collection, ok := contexts.GetCollection(ctx)
		assert.True(t, ok)
		assert.Equal(t, "emergency_alerts", collection)

		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/collections/emergency_alerts", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(DefaultRequestHeader))
	assert.NotEmpty(t, w.Header().Get(DefaultTraceHeader))
}

func TestWithLoggingTracingExistingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(WithLoggingTracing(tracing.Config{TraceHeader: "X-Trace"}))

	engine.GET("/", func(c *gin.Context) {
		traceID, ok := tracing.GetTraceID(c.Request.Context())
		assert.True(t, ok)
		assert.Equal(t, "ll-existing", traceID)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace", "ll-existing")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ll-existing", w.Header().Get("X-Trace"))
}
