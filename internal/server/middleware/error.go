package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/looplj/lifeline/internal/objects"
)

// AbortWithError stops the handler chain with an error body. The error is
// recorded on the gin context so the access log reports it.
func AbortWithError(c *gin.Context, status int, err error) {
	if err != nil {
		_ = c.Error(err)
	}

	c.AbortWithStatusJSON(status, objects.NewErrorResponse(status, err))
}
