package api

import (
	"github.com/gin-gonic/gin"

	"github.com/looplj/lifeline/internal/objects"
)

// JSONError writes an error body for handlers that already decided the status,
// and records err for the access log.
func JSONError(c *gin.Context, status int, err error) {
	if err != nil {
		_ = c.Error(err)
	}

	c.JSON(status, objects.NewErrorResponse(status, err))
}
