package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"okrtrack/internal/core/apperror"
	appctx "okrtrack/internal/core/context"
	"okrtrack/internal/core/tenant"
)

// JWTValidator interface for token validation.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.UserContext, error)
}

// Auth middleware validates JWT tokens and populates user context.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			abortUnauthorized(c, "missing or malformed authorization header")
			return
		}

		user, err := validator.ValidateToken(token)
		if err != nil {
			_ = c.Error(apperror.NewUnauthorized("invalid token"))
			c.Abort()
			return
		}

		setUser(c, user)
		c.Next()
	}
}

// OptionalAuth validates token if present, but doesn't require it.
// An invalid token is treated as no token: the request continues
// anonymously and sees no tenant data.
func OptionalAuth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		if user, err := validator.ValidateToken(token); err == nil && user != nil {
			setUser(c, user)
		}
		c.Next()
	}
}

// RequireSystemOwner rejects requests whose tenant scope is not a system
// owner. Must run after TenantContext.
func RequireSystemOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, ok := tenant.ScopeFromContext(c.Request.Context())
		if !ok {
			abortUnauthorized(c, "authentication required")
			return
		}
		if !scope.IsSystemOwner {
			_ = c.Error(apperror.NewForbidden("system owner only"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setUser(c *gin.Context, user *appctx.UserContext) {
	c.Request = c.Request.WithContext(appctx.WithUser(c.Request.Context(), user))
	c.Set("user_id", user.UserID)
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
