package tenant

import (
	"context"
	"errors"
	"fmt"
)

// Resolver handles slug-addressed routes.
type Resolver struct {
	orgs  OrganizationDirectory
	users UserDirectory
}

// NewResolver creates a Resolver.
func NewResolver(orgs OrganizationDirectory, users UserDirectory) *Resolver {
	return &Resolver{orgs: orgs, users: users}
}

// Resolve maps slug to an organization and checks that the caller may act
// on it. A verified system owner has the store retargeted at the resolved
// organization and loses its bypass for the rest of the request. Everyone
// else must already belong to it; the store is never touched for a mismatch.
func (r *Resolver) Resolve(ctx context.Context, slug string, store *Store) (*Organization, error) {
	org, err := r.orgs.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if store == nil {
		return nil, ErrAccessDenied
	}
	scope, ok := store.Current()
	if !ok {
		return nil, ErrAccessDenied
	}

	if scope.IsSystemOwner || scope.ActingOwner {
		if err := r.VerifySystemOwner(ctx, scope); err != nil {
			return nil, err
		}
		if err := store.Override(org.ID); err != nil {
			return nil, fmt.Errorf("override organization: %w", err)
		}
		return org, nil
	}

	if !scope.HasOrganization() || scope.OrganizationID != org.ID {
		return nil, ErrAccessDenied
	}
	return org, nil
}

// VerifySystemOwner re-reads the user record behind scope. The flag in the
// scope alone is never enough to cross tenants.
func (r *Resolver) VerifySystemOwner(ctx context.Context, scope Scope) error {
	u, err := r.users.GetUser(ctx, scope.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrAccessDenied
		}
		return fmt.Errorf("verify system owner: %w", err)
	}
	if !u.IsSystemOwner {
		return ErrAccessDenied
	}
	return nil
}
