package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestWithTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name        string
		timeout     time.Duration
		hasDeadline bool
	}{
		{name: "bounded", timeout: time.Second, hasDeadline: true},
		{name: "disabled", timeout: 0, hasDeadline: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := gin.New()
			engine.Use(WithTimeout(tc.timeout))
			engine.GET("/", func(c *gin.Context) {
				_, ok := c.Request.Context().Deadline()
				assert.Equal(t, tc.hasDeadline, ok)
				c.Status(http.StatusNoContent)
			})

			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusNoContent, w.Code)
		})
	}
}
