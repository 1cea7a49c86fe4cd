package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	"okrtrack/internal/core/tenant"
)

// Directory implements tenant.UserDirectory and tenant.OrganizationDirectory.
//
// Lookups run before a request has a tenant scope (the scope is what they
// produce), so every query runs in its own transaction as system owner.
type Directory struct {
	txm *TxManager
}

var (
	_ tenant.UserDirectory         = (*Directory)(nil)
	_ tenant.OrganizationDirectory = (*Directory)(nil)
)

// NewDirectory creates a directory over txm.
func NewDirectory(txm *TxManager) *Directory {
	return &Directory{txm: txm}
}

func (d *Directory) GetUser(ctx context.Context, id uuid.UUID) (*tenant.User, error) {
	var u tenant.User
	err := d.txm.RunAs(ctx, tenant.SystemScope(), func(ctx context.Context) error {
		return pgxscan.Get(ctx, d.txm.GetQuerier(ctx), &u, `
			SELECT id, organization_id, email, is_system_owner
			FROM users
			WHERE id = $1
		`, id)
	})
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, tenant.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", MapError(err))
	}
	return &u, nil
}

func (d *Directory) GetBySlug(ctx context.Context, slug string) (*tenant.Organization, error) {
	var org tenant.Organization
	err := d.txm.RunAs(ctx, tenant.SystemScope(), func(ctx context.Context) error {
		return pgxscan.Get(ctx, d.txm.GetQuerier(ctx), &org, `
			SELECT id, slug, name, created_at
			FROM organizations
			WHERE slug = $1
		`, slug)
	})
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, tenant.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("get organization: %w", MapError(err))
	}
	return &org, nil
}

// ListOrganizations returns every tenant ordered by slug.
func (d *Directory) ListOrganizations(ctx context.Context) ([]*tenant.Organization, error) {
	var orgs []*tenant.Organization
	err := d.txm.RunAs(ctx, tenant.SystemScope(), func(ctx context.Context) error {
		return pgxscan.Select(ctx, d.txm.GetQuerier(ctx), &orgs, `
			SELECT id, slug, name, created_at
			FROM organizations
			ORDER BY slug
		`)
	})
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", MapError(err))
	}
	return orgs, nil
}

// ErrSlugTaken is returned by CreateOrganization for a duplicate slug.
var ErrSlugTaken = errors.New("organization slug already taken")

// CreateOrganization inserts a tenant with a subscription to planID.
func (d *Directory) CreateOrganization(ctx context.Context, slug, name, planID string) (*tenant.Organization, error) {
	var org tenant.Organization
	err := d.txm.RunAs(ctx, tenant.SystemScope(), func(ctx context.Context) error {
		q := d.txm.GetQuerier(ctx)
		if err := pgxscan.Get(ctx, q, &org, `
			INSERT INTO organizations (slug, name)
			VALUES ($1, $2)
			RETURNING id, slug, name, created_at
		`, slug, name); err != nil {
			return err
		}
		_, err := q.Exec(ctx, `
			INSERT INTO subscriptions (organization_id, plan_id)
			VALUES ($1, $2)
		`, org.ID, planID)
		return err
	})
	if err != nil {
		err = MapError(err)
		if errors.Is(err, ErrUniqueViolation) {
			return nil, fmt.Errorf("%w: %s", ErrSlugTaken, slug)
		}
		return nil, fmt.Errorf("create organization: %w", err)
	}
	return &org, nil
}

// CreateUser inserts a user. orgID may be nil only for a system owner.
func (d *Directory) CreateUser(ctx context.Context, email, name string, orgID *uuid.UUID, systemOwner bool) (*tenant.User, error) {
	var u tenant.User
	err := d.txm.RunAs(ctx, tenant.SystemScope(), func(ctx context.Context) error {
		return pgxscan.Get(ctx, d.txm.GetQuerier(ctx), &u, `
			INSERT INTO users (organization_id, email, name, is_system_owner)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
			RETURNING id, organization_id, email, is_system_owner
		`, orgID, email, name, systemOwner)
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", MapError(err))
	}
	return &u, nil
}
