// Package tenant holds the per-request tenant context and the lookups that
// produce it.
//
// Isolation itself is enforced by row-level security in PostgreSQL. This
// package only decides which (user, organization, system owner) triple the
// database sees for the current unit of work.
package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Scope is the acting identity written into the database session.
type Scope struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	IsSystemOwner  bool
	// ActingOwner marks a system owner retargeted at OrganizationID. The
	// bypass is dropped, so it sees exactly what that tenant sees.
	ActingOwner bool
}

// SystemScope is used by maintenance work running outside a request
// (directory lookups, seeding, installer checks). It sees every row.
func SystemScope() Scope {
	return Scope{IsSystemOwner: true}
}

// ForOrganization is the scope of a maintenance task acting as one tenant.
func ForOrganization(orgID uuid.UUID) Scope {
	return Scope{OrganizationID: orgID}
}

// HasOrganization reports whether the scope is bound to an organization.
func (s Scope) HasOrganization() bool {
	return s.OrganizationID != uuid.Nil
}

// User is the authoritative user record.
type User struct {
	ID             uuid.UUID  `db:"id"`
	OrganizationID *uuid.UUID `db:"organization_id"`
	Email          string     `db:"email"`
	IsSystemOwner  bool       `db:"is_system_owner"`
}

// Scope builds the request scope for the user. A regular user without an
// organization has no valid scope.
func (u *User) Scope() (Scope, error) {
	s := Scope{UserID: u.ID, IsSystemOwner: u.IsSystemOwner}
	if u.OrganizationID != nil {
		s.OrganizationID = *u.OrganizationID
	}
	if !s.IsSystemOwner && !s.HasOrganization() {
		return Scope{}, ErrNoOrganization
	}
	return s, nil
}

// Organization is a tenant.
type Organization struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Slug      string    `db:"slug" json:"slug"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
