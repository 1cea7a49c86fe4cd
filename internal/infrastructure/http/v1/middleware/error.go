package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"okrtrack/internal/core/apperror"
	"okrtrack/pkg/logger"
)

// ErrorHandler renders the last error attached to the context. Anything that
// is not an AppError becomes a 500 without details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		writeError(c, c.Errors.Last().Err)
	}
}

func writeError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	appErr, ok := apperror.AsAppError(err)
	if !ok {
		logger.Error(ctx, "unhandled error", "error", err)
		appErr = apperror.NewInternal(err)
	}

	switch {
	case appErr.HTTPStatus >= http.StatusInternalServerError:
		logger.Error(ctx, "request failed", "code", appErr.Code, "cause", appErr.Err)
	case appErr.Err != nil:
		// Hidden rows surface here as not found; not worth more than debug.
		logger.Debug(ctx, "request rejected", "code", appErr.Code, "cause", appErr.Err)
	}

	details := make(map[string]any, len(appErr.Details)+1)
	for k, v := range appErr.Details {
		details[k] = v
	}
	if id := c.GetString("request_id"); id != "" {
		details["request_id"] = id
	}

	c.JSON(appErr.HTTPStatus, gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
		"details": details,
	})
}
