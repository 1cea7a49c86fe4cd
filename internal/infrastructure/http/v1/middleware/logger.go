package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"okrtrack/pkg/logger"
)

// Logger middleware attaches log to the request context and logs HTTP
// requests with timing and status. Paths with one of quietPrefixes are
// logged at debug level.
//
// The tenant context is cleared before this middleware regains control, so
// TenantContext copies the organization into gin keys for the log line.
func Logger(log *logger.Logger, quietPrefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), log))

		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", status,
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
			"organization_id", c.GetString(keyOrganizationID),
			"system_owner", c.GetBool(keySystemOwner),
			"error", c.Errors.ByType(gin.ErrorTypePrivate).String(),
		}

		l := log.WithContext(c.Request.Context())
		for _, p := range quietPrefixes {
			if strings.HasPrefix(path, p) {
				l.Debugw("http request", fields...)
				return
			}
		}
		l.Infow("http request", fields...)
	}
}
