package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"okrtrack/internal/core/policy"
	"okrtrack/internal/core/tenant"
)

// Execer is the statement half of pgx shared by pools, connections and
// transactions.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// setContextSQL writes all three tenant variables in one statement. The
// final argument selects transaction-local (true) or session-level (false)
// scope.
var setContextSQL = fmt.Sprintf(
	"SELECT set_config('%s', $1, $4), set_config('%s', $2, $4), set_config('%s', $3, $4)",
	policy.SettingUserID, policy.SettingOrganizationID, policy.SettingIsSystemOwner,
)

// scopeSettings renders a scope as the string values stored in the session
// variables. No scope renders as empty strings, which the context functions
// read as NULL.
func scopeSettings(scope tenant.Scope, ok bool) (userID, orgID, owner string) {
	if !ok {
		return "", "", ""
	}
	if scope.UserID != uuid.Nil {
		userID = scope.UserID.String()
	}
	if scope.HasOrganization() {
		orgID = scope.OrganizationID.String()
	}
	if scope.IsSystemOwner {
		owner = "true"
	}
	return userID, orgID, owner
}

// applyScope writes scope into the connection behind q.
func applyScope(ctx context.Context, q Execer, scope tenant.Scope, ok, local bool) error {
	userID, orgID, owner := scopeSettings(scope, ok)
	if _, err := q.Exec(ctx, setContextSQL, userID, orgID, owner, local); err != nil {
		return fmt.Errorf("set tenant context: %w", err)
	}
	return nil
}

// clearScope resets the session-level variables to empty.
func clearScope(ctx context.Context, q Execer) error {
	if _, err := q.Exec(ctx, setContextSQL, "", "", "", false); err != nil {
		return fmt.Errorf("clear tenant context: %w", err)
	}
	return nil
}
