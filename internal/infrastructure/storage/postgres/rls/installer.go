// Package rls installs the tenant isolation model as PostgreSQL row-level
// security policies.
package rls

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"okrtrack/internal/core/policy"
	"okrtrack/internal/infrastructure/storage/postgres"
	"okrtrack/pkg/logger"
)

var tracer = otel.Tracer("okrtrack/rls")

var (
	// ErrInstall wraps every install failure. Callers must not serve
	// traffic after it.
	ErrInstall = errors.New("policy install failed")

	// ErrPartialReset is returned by Apply when reset could not retract
	// every table; install is not attempted on top of unknown state.
	ErrPartialReset = errors.New("policy reset incomplete, install skipped")
)

// Executor runs DDL. *pgxpool.Pool, *pgxpool.Conn and pgx.Tx all satisfy it.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Installer attaches and retracts the policies of one model.
type Installer struct {
	exec  Executor
	model policy.Model
	log   *logger.Logger
}

// NewInstaller creates an Installer. exec should come from the admin pool.
func NewInstaller(exec Executor, model policy.Model, log *logger.Logger) *Installer {
	return &Installer{exec: exec, model: model, log: log.WithComponent("rls")}
}

// Install validates the model and attaches every policy in one transaction.
// Any error leaves the database as it was and names the failing table.
func (i *Installer) Install(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "rls.install",
		trace.WithAttributes(attribute.Int("rls.tables", len(i.model.Rules))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "install failed")
		}
		span.End()
	}()

	if err := i.model.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInstall, err)
	}

	tx, err := i.exec.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrInstall, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				i.log.Errorw("install rollback failed", "error", rbErr)
			}
		}
	}()

	for _, st := range InstallStatements(i.model) {
		if _, err := tx.Exec(ctx, st.SQL); err != nil {
			if st.Table == "" {
				return fmt.Errorf("%w: context functions: %w", ErrInstall, err)
			}
			return fmt.Errorf("%w: table %s: %w", ErrInstall, st.Table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrInstall, err)
	}

	i.log.Infow("tenant policies installed",
		"tables", len(i.model.Rules), "policies", len(i.model.PolicyNames()))
	return nil
}

// ResetReport is the outcome of Reset.
type ResetReport struct {
	// Tables lists tables whose policies were retracted.
	Tables []string
	// Skipped lists tables that do not exist.
	Skipped []string
	// Failures maps table to the error that stopped its reset.
	Failures map[string]error
}

// OK reports whether every table was reset or skipped.
func (r ResetReport) OK() bool {
	return len(r.Failures) == 0
}

// FailedTables lists the tables in Failures, sorted.
func (r ResetReport) FailedTables() []string {
	tables := make([]string, 0, len(r.Failures))
	for t := range r.Failures {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// Err joins the failures into one error, nil when OK.
func (r ResetReport) Err() error {
	if r.OK() {
		return nil
	}
	tables := r.FailedTables()
	errs := make([]error, 0, len(tables))
	for _, t := range tables {
		errs = append(errs, fmt.Errorf("%s: %w", t, r.Failures[t]))
	}
	return errors.Join(errs...)
}

// Reset retracts every policy the model names and disables row-level
// security on its tables. Each table is reset in its own transaction; a
// failure is logged and recorded and the loop moves on.
func (i *Installer) Reset(ctx context.Context) ResetReport {
	report := ResetReport{Failures: map[string]error{}}

	for _, r := range i.model.Rules {
		err := i.resetTable(ctx, r)
		switch {
		case err == nil:
			report.Tables = append(report.Tables, r.Table)
		case postgres.IsUndefinedObject(err):
			report.Skipped = append(report.Skipped, r.Table)
			i.log.Warnw("policy reset skipped missing table", "table", r.Table)
		default:
			report.Failures[r.Table] = err
			i.log.Errorw("policy reset failed", "table", r.Table, "error", err)
		}
	}

	return report
}

func (i *Installer) resetTable(ctx context.Context, r policy.Rule) (err error) {
	tx, err := i.exec.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	for _, st := range ResetStatements(r) {
		if _, err := tx.Exec(ctx, st.SQL); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Apply resets then installs. A reset with failures stops here with
// ErrPartialReset: the tables that failed may still carry old policies, and
// stacking new ones on top would give them an unknown combined predicate.
func (i *Installer) Apply(ctx context.Context) error {
	report := i.Reset(ctx)
	if !report.OK() {
		return fmt.Errorf("%w: %w", ErrPartialReset, report.Err())
	}
	return i.Install(ctx)
}

// Status compares the policies attached in the database with the model.
type Status struct {
	// Missing lists expected policy names that are not attached.
	Missing []string
	// Unexpected lists attached tenant_ policies the model does not name.
	Unexpected []string
	// Unenforced lists model tables without ENABLE and FORCE row security.
	Unenforced []string
}

// OK reports whether the database matches the model.
func (s Status) OK() bool {
	return len(s.Missing) == 0 && len(s.Unexpected) == 0 && len(s.Unenforced) == 0
}

func (s Status) String() string {
	if s.OK() {
		return "ok"
	}
	var parts []string
	if len(s.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(s.Missing, ", "))
	}
	if len(s.Unexpected) > 0 {
		parts = append(parts, "unexpected: "+strings.Join(s.Unexpected, ", "))
	}
	if len(s.Unenforced) > 0 {
		parts = append(parts, "unenforced: "+strings.Join(s.Unenforced, ", "))
	}
	return strings.Join(parts, "; ")
}

// Status reads pg_policies and pg_class.
func (i *Installer) Status(ctx context.Context) (Status, error) {
	return ReadStatus(ctx, i.exec, i.model)
}

// Querier is the read half of Executor.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ReadStatus compares the database behind q with model. Any connection can
// read it, so readiness checks use the request pool.
func ReadStatus(ctx context.Context, q Querier, model policy.Model) (Status, error) {
	var st Status

	rows, err := q.Query(ctx, `
		SELECT policyname
		FROM pg_policies
		WHERE schemaname = current_schema() AND policyname LIKE 'tenant\_%'
	`)
	if err != nil {
		return st, fmt.Errorf("read pg_policies: %w", err)
	}
	attached, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return st, fmt.Errorf("read pg_policies: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT c.relname
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = current_schema()
		  AND c.relname = ANY($1)
		  AND c.relrowsecurity AND c.relforcerowsecurity
	`, model.Tables())
	if err != nil {
		return st, fmt.Errorf("read pg_class: %w", err)
	}
	enforced, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return st, fmt.Errorf("read pg_class: %w", err)
	}

	return compare(model, attached, enforced), nil
}

func compare(model policy.Model, attached, enforced []string) Status {
	var st Status

	have := make(map[string]bool, len(attached))
	for _, name := range attached {
		have[name] = true
	}
	want := make(map[string]bool)
	for _, name := range model.PolicyNames() {
		want[name] = true
		if !have[name] {
			st.Missing = append(st.Missing, name)
		}
	}
	for _, name := range attached {
		if !want[name] {
			st.Unexpected = append(st.Unexpected, name)
		}
	}

	on := make(map[string]bool, len(enforced))
	for _, t := range enforced {
		on[t] = true
	}
	for _, t := range model.Tables() {
		if !on[t] {
			st.Unenforced = append(st.Unenforced, t)
		}
	}

	sort.Strings(st.Missing)
	sort.Strings(st.Unexpected)
	sort.Strings(st.Unenforced)
	return st
}
