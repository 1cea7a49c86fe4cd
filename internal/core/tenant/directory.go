package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// UserDirectory reads authoritative user records.
type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
}

// OrganizationDirectory resolves organizations by slug.
type OrganizationDirectory interface {
	// GetBySlug returns ErrOrganizationNotFound for unknown slugs.
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
}

// OrganizationCache stores slug lookups.
type OrganizationCache interface {
	Get(ctx context.Context, slug string) (*Organization, bool)
	Set(ctx context.Context, slug string, org *Organization, ttl time.Duration)
	Delete(ctx context.Context, slug string)
}

// CachedOrganizations wraps an OrganizationDirectory with a slug cache.
// Misses are never cached, so a newly created organization is visible on
// the next lookup.
type CachedOrganizations struct {
	next  OrganizationDirectory
	cache OrganizationCache
	ttl   time.Duration
}

// NewCachedOrganizations returns next decorated with cache.
func NewCachedOrganizations(next OrganizationDirectory, cache OrganizationCache, ttl time.Duration) *CachedOrganizations {
	return &CachedOrganizations{next: next, cache: cache, ttl: ttl}
}

func (c *CachedOrganizations) GetBySlug(ctx context.Context, slug string) (*Organization, error) {
	if org, ok := c.cache.Get(ctx, slug); ok {
		return org, nil
	}

	org, err := c.next.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if org == nil || org.ID == uuid.Nil {
		return nil, ErrOrganizationNotFound
	}

	c.cache.Set(ctx, slug, org, c.ttl)
	return org, nil
}

// Invalidate drops a slug from the cache.
func (c *CachedOrganizations) Invalidate(ctx context.Context, slug string) {
	c.cache.Delete(ctx, slug)
}

// IsNotFound reports whether err means the user or organization is unknown.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrOrganizationNotFound)
}
