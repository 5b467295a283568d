package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/looplj/lifeline/internal/log"
)

// Recovery turns a handler panic into a 500 JSON error and logs the stack.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error(c.Request.Context(), "panic recovered",
			log.String("method", c.Request.Method),
			log.String("path", c.Request.URL.Path),
			log.Any("panic", recovered),
			log.String("stack", string(debug.Stack())))

		AbortWithError(c, http.StatusInternalServerError, panicError(recovered))
	})
}

func panicError(recovered any) error {
	if err, ok := recovered.(error); ok {
		return fmt.Errorf("internal error: %w", err)
	}

	return errors.New("internal error")
}
