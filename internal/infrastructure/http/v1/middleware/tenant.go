package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"okrtrack/internal/core/apperror"
	appctx "okrtrack/internal/core/context"
	"okrtrack/internal/core/tenant"
	"okrtrack/pkg/logger"
)

// gin keys mirroring the tenant scope for the access log.
const (
	keyOrganizationID = "organization_id"
	keySystemOwner    = "system_owner"
)

// TenantContext attaches a fresh tenant Store to every request and fills it
// from the authenticated user's record.
//
// Lookup failures never fail the request: the store is cleared and the
// request continues with no tenant context, which the database answers
// with empty results. The store is cleared when the handler chain unwinds,
// whether it returned, aborted or panicked.
//
// Requests whose path starts with one of skipPaths get no store at all.
func TenantContext(users tenant.UserDirectory, skipPaths ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, p := range skipPaths {
			if strings.HasPrefix(path, p) {
				c.Next()
				return
			}
		}

		store := tenant.NewStore()
		ctx := tenant.WithStore(c.Request.Context(), store)
		c.Request = c.Request.WithContext(ctx)

		defer func() {
			if res := store.Clear(); !res.OK() {
				logger.Warn(ctx, "tenant context cleanup failed",
					"outcome", res.Outcome.String(),
					"error", res.Err,
				)
			}
		}()

		populate(c, users, store)
		c.Next()
	}
}

func populate(c *gin.Context, users tenant.UserDirectory, store *tenant.Store) {
	ctx := c.Request.Context()

	userID, err := appctx.UserID(ctx)
	if errors.Is(err, appctx.ErrNoUser) {
		store.Clear()
		return
	}
	if err != nil {
		logger.Warn(ctx, "tenant context: bad user id", "error", err)
		store.Clear()
		return
	}

	u, err := users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, tenant.ErrUserNotFound) {
			logger.Warn(ctx, "tenant context: unknown user", "user_id", userID)
		} else {
			logger.Error(ctx, "tenant context: user lookup failed", "user_id", userID, "error", err)
		}
		store.Clear()
		return
	}

	scope, err := u.Scope()
	if err != nil {
		logger.Warn(ctx, "tenant context: user has no organization", "user_id", userID)
		store.Clear()
		return
	}

	if err := store.Set(scope); err != nil {
		logger.Error(ctx, "tenant context: set failed", "error", err)
		store.Clear()
		return
	}
	markScope(c, scope)
}

func markScope(c *gin.Context, scope tenant.Scope) {
	if scope.HasOrganization() {
		c.Set(keyOrganizationID, scope.OrganizationID.String())
	}
	c.Set(keySystemOwner, scope.IsSystemOwner)
}

// OrgScope resolves the :slug route parameter and makes the organization
// the request's tenant. Unknown slugs answer 404 before any access check.
func OrgScope(resolver *tenant.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		slug := c.Param("slug")

		org, err := resolver.Resolve(ctx, slug, tenant.StoreFromContext(ctx))
		if err != nil {
			switch {
			case tenant.IsNotFound(err):
				_ = c.Error(apperror.NewNotFound("organization", slug))
			case errors.Is(err, tenant.ErrAccessDenied):
				_ = c.Error(apperror.NewTenantAccessDenied().WithDetail("slug", slug))
			default:
				_ = c.Error(apperror.NewInternal(err).WithDetail("slug", slug))
			}
			c.Abort()
			return
		}

		c.Set("organization", org)
		if scope, ok := tenant.ScopeFromContext(ctx); ok {
			markScope(c, scope)
		}
		c.Next()
	}
}

// OrganizationFromContext returns the organization resolved by OrgScope.
func OrganizationFromContext(c *gin.Context) *tenant.Organization {
	if v, ok := c.Get("organization"); ok {
		if org, ok := v.(*tenant.Organization); ok {
			return org
		}
	}
	return nil
}
