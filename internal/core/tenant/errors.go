package tenant

import "errors"

var (
	// ErrUserNotFound is returned when the user directory has no such user.
	ErrUserNotFound = errors.New("user not found")

	// ErrOrganizationNotFound is returned for unknown organization slugs.
	ErrOrganizationNotFound = errors.New("organization not found")

	// ErrNoOrganization is returned for a regular user with no organization.
	ErrNoOrganization = errors.New("user has no organization")

	// ErrAccessDenied is returned when the caller may not act on the
	// requested organization.
	ErrAccessDenied = errors.New("access to organization denied")

	// ErrContextAlreadySet is returned by Store.Set outside the Unset state.
	ErrContextAlreadySet = errors.New("tenant context already set")

	// ErrContextNotSet is returned by Store.Override outside the Set state.
	ErrContextNotSet = errors.New("tenant context not set")

	// ErrNotSystemOwner is returned by Store.Override for a regular scope.
	ErrNotSystemOwner = errors.New("scope is not a system owner")
)
