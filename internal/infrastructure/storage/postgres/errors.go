package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrPolicyViolation is returned when a write fails a row-level security
	// check, i.e. the row would belong to another tenant.
	ErrPolicyViolation = errors.New("row violates tenant policy")

	// ErrUniqueViolation wraps unique constraint failures.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation wraps foreign key failures.
	ErrForeignKeyViolation = errors.New("foreign key violation")

	// ErrUnavailable wraps connection and server-state failures.
	ErrUnavailable = errors.New("database unavailable")
)

// MapError classifies PostgreSQL errors into the sentinels above. Other
// errors are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.InsufficientPrivilege:
		// RLS WITH CHECK failures surface as 42501.
		return fmt.Errorf("%w: %s: %w", ErrPolicyViolation, pgErr.Message, err)

	case pgerrcode.UniqueViolation:
		return fmt.Errorf("%w: %s: %w", ErrUniqueViolation, pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %s: %w", ErrForeignKeyViolation, pgErr.ConstraintName, err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection,
		pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)

	default:
		return err
	}
}

// IsUndefinedObject reports errors raised for a missing table, function or
// policy. The installer tolerates them while resetting.
func IsUndefinedObject(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.UndefinedTable, pgerrcode.UndefinedObject, pgerrcode.UndefinedFunction:
		return true
	}
	return false
}
