package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/looplj/lifeline/internal/contexts"
	"github.com/looplj/lifeline/internal/log"
)

// AccessLog returns a middleware that logs failed requests.
// Requests with status < 400 and no recorded error are skipped.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		ctx := c.Request.Context()

		var errMsgs []string
		for _, e := range c.Errors {
			errMsgs = append(errMsgs, e.Error())
		}

		for _, e := range contexts.GetErrors(ctx) {
			errMsgs = append(errMsgs, e.Error())
		}

		status := c.Writer.Status()
		if status < 400 && len(errMsgs) == 0 {
			return
		}

		fields := []log.Field{
			log.Int("status", status),
			log.String("method", c.Request.Method),
			log.String("path", c.Request.URL.Path),
			log.Duration("latency", time.Since(start)),
			log.String("client_ip", c.ClientIP()),
		}

		if len(errMsgs) > 0 {
			fields = append(fields, log.Strings("errors", errMsgs))
		}

		if status >= 500 {
			log.Error(ctx, "[ACCESS]", fields...)
		} else {
			log.Warn(ctx, "[ACCESS]", fields...)
		}
	}
}
