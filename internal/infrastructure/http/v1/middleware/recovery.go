// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"okrtrack/internal/core/apperror"
	"okrtrack/pkg/logger"
)

// Recovery middleware recovers from panics and returns 500 error.
// Logs stack trace but never exposes internal details to client.
//
// A panic unwinds past ErrorHandler, so the response is written here.
// Inner middleware deferred cleanups, tenant context included, have
// already run by the time this recovers.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
				)

				appErr := apperror.NewInternal(fmt.Errorf("panic: %v", err))
				_ = c.Error(appErr)
				if !c.Writer.Written() {
					writeError(c, appErr)
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
