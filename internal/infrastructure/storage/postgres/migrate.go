package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"okrtrack/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrMigrate wraps every migration failure.
var ErrMigrate = errors.New("failed to apply migrations")

// Migrate applies the embedded goose migrations. Run it on the admin pool.
func Migrate(ctx context.Context, pool *Pool, log *logger.Logger) error {
	db := stdlib.OpenDBFromPool(pool.Pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.Errorw("failed to close migration db handle", "error", err)
		}
	}()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{log: log.WithComponent("migrate")})

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrMigrate, err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Join(ErrMigrate, err)
	}
	return nil
}

// gooseLogger routes goose output through zap.
type gooseLogger struct {
	log *logger.Logger
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.Errorw(fmt.Sprintf(format, v...))
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Infow(fmt.Sprintf(format, v...))
}

// ErrBypassesRLS is returned when the request pool connects as a role that
// row-level security does not apply to.
var ErrBypassesRLS = errors.New("database role bypasses row-level security")

// CheckRequestRole fails when the pool's role is a superuser or holds
// BYPASSRLS. Policies would be silently ignored for such a role.
func CheckRequestRole(ctx context.Context, q Querier) error {
	var (
		role   string
		bypass bool
	)
	err := q.QueryRow(ctx, `
		SELECT rolname, rolsuper OR rolbypassrls
		FROM pg_roles
		WHERE rolname = current_user
	`).Scan(&role, &bypass)
	if err != nil {
		return fmt.Errorf("inspect database role: %w", err)
	}
	if bypass {
		return fmt.Errorf("%w: %s", ErrBypassesRLS, role)
	}
	return nil
}
