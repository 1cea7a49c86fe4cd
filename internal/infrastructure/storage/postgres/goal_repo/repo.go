// Package goal_repo implements goals.Repository on PostgreSQL.
//
// Queries carry no organization filter. Row-level security on the tables
// limits every statement to the tenant scope of the current transaction.
package goal_repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	"okrtrack/internal/domain/goals"
	"okrtrack/internal/infrastructure/storage/postgres"
)

var (
	objectiveCols = []string{"id", "owner_id", "title", "description", "period", "created_at"}
	keyResultCols = []string{"id", "objective_id", "title", "unit", "start_value", "target_value", "current_value", "created_at"}
	checkInCols   = []string{"id", "key_result_id", "value", "note", "created_at"}
)

// Repo implements goals.Repository.
type Repo struct {
	txm *postgres.TxManager
}

var _ goals.Repository = (*Repo)(nil)

// New creates a goals repository.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{txm: txm}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *Repo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *Repo) ListObjectives(ctx context.Context, f goals.ListFilter) ([]*goals.Objective, error) {
	var out []*goals.Objective
	if err := r.selectAll(ctx, r.listObjectivesQuery(f), &out); err != nil {
		return nil, fmt.Errorf("list objectives: %w", err)
	}
	return out, nil
}

func (r *Repo) listObjectivesQuery(f goals.ListFilter) squirrel.SelectBuilder {
	return r.Builder().
		Select(objectiveCols...).
		From("objectives").
		OrderBy("created_at DESC", "id").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset))
}

func (r *Repo) GetObjective(ctx context.Context, id uuid.UUID) (*goals.Objective, error) {
	q := r.Builder().
		Select(objectiveCols...).
		From("objectives").
		Where(squirrel.Eq{"id": id})

	var obj goals.Objective
	if err := r.getOne(ctx, q, &obj); err != nil {
		return nil, fmt.Errorf("get objective: %w", err)
	}
	return &obj, nil
}

func (r *Repo) CreateObjective(ctx context.Context, ownerID uuid.UUID, in goals.NewObjective) (*goals.Objective, error) {
	q := r.Builder().
		Insert("objectives").
		SetMap(map[string]any{
			"owner_id":    ownerID,
			"title":       in.Title,
			"description": in.Description,
			"period":      in.Period,
		}).
		Suffix("RETURNING " + joinCols(objectiveCols))

	var obj goals.Objective
	if err := r.getOne(ctx, q, &obj); err != nil {
		return nil, fmt.Errorf("insert objective: %w", err)
	}
	return &obj, nil
}

func (r *Repo) ListKeyResults(ctx context.Context, objectiveID uuid.UUID) ([]*goals.KeyResult, error) {
	q := r.Builder().
		Select(keyResultCols...).
		From("key_results").
		Where(squirrel.Eq{"objective_id": objectiveID}).
		OrderBy("created_at", "id")

	var out []*goals.KeyResult
	if err := r.selectAll(ctx, q, &out); err != nil {
		return nil, fmt.Errorf("list key results: %w", err)
	}
	return out, nil
}

func (r *Repo) CreateKeyResult(ctx context.Context, objectiveID uuid.UUID, in goals.NewKeyResult) (*goals.KeyResult, error) {
	q := r.Builder().
		Insert("key_results").
		SetMap(map[string]any{
			"objective_id":  objectiveID,
			"title":         in.Title,
			"unit":          in.Unit,
			"start_value":   in.StartValue,
			"target_value":  in.TargetValue,
			"current_value": in.StartValue,
		}).
		Suffix("RETURNING " + joinCols(keyResultCols))

	var kr goals.KeyResult
	if err := r.getOne(ctx, q, &kr); err != nil {
		return nil, fmt.Errorf("insert key result: %w", err)
	}
	return &kr, nil
}

func (r *Repo) ListCheckIns(ctx context.Context, keyResultID uuid.UUID, f goals.ListFilter) ([]*goals.CheckIn, error) {
	q := r.Builder().
		Select(checkInCols...).
		From("check_ins").
		Where(squirrel.Eq{"key_result_id": keyResultID}).
		OrderBy("created_at DESC", "id").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset))

	var out []*goals.CheckIn
	if err := r.selectAll(ctx, q, &out); err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	return out, nil
}

// CreateCheckIn inserts the check-in and moves the key result's current
// value. The update touches no row when the key result is not visible, which
// is reported as not found.
func (r *Repo) CreateCheckIn(ctx context.Context, keyResultID uuid.UUID, in goals.NewCheckIn) (*goals.CheckIn, error) {
	upd := r.Builder().
		Update("key_results").
		Set("current_value", in.Value).
		Where(squirrel.Eq{"id": keyResultID})

	sql, args, err := upd.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("update key result: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("update key result: %w", goals.ErrNotFound)
	}

	ins := r.Builder().
		Insert("check_ins").
		SetMap(map[string]any{
			"key_result_id": keyResultID,
			"value":         in.Value,
			"note":          in.Note,
		}).
		Suffix("RETURNING " + joinCols(checkInCols))

	var ci goals.CheckIn
	if err := r.getOne(ctx, ins, &ci); err != nil {
		return nil, fmt.Errorf("insert check-in: %w", err)
	}
	return &ci, nil
}

func (r *Repo) StaleKeyResults(ctx context.Context, since time.Time) ([]*goals.StaleKeyResult, error) {
	var out []*goals.StaleKeyResult
	if err := r.selectAll(ctx, r.staleQuery(since), &out); err != nil {
		return nil, fmt.Errorf("list stale key results: %w", err)
	}
	return out, nil
}

// staleQuery selects key results whose latest check-in, or creation time
// when there is none, is older than since.
func (r *Repo) staleQuery(since time.Time) squirrel.SelectBuilder {
	return r.Builder().
		Select(
			"kr.id", "kr.objective_id", "kr.title", "kr.unit", "kr.start_value",
			"kr.target_value", "kr.current_value", "kr.created_at",
			"lc.last_at AS last_check_in",
		).
		From("key_results kr").
		LeftJoin("(SELECT key_result_id, max(created_at) AS last_at FROM check_ins GROUP BY key_result_id) lc ON lc.key_result_id = kr.id").
		Where(squirrel.Expr("COALESCE(lc.last_at, kr.created_at) < ?", since)).
		OrderBy("kr.created_at", "kr.id")
}

func (r *Repo) selectAll(ctx context.Context, q squirrel.Sqlizer, dst any) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return mapError(pgxscan.Select(ctx, r.txm.GetQuerier(ctx), dst, sql, args...))
}

func (r *Repo) getOne(ctx context.Context, q squirrel.Sqlizer, dst any) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return mapError(pgxscan.Get(ctx, r.txm.GetQuerier(ctx), dst, sql, args...))
}

// mapError folds "not visible" into not found: a missing row, a write
// rejected by the tenant policy, and a reference to a row that does not
// exist all look the same to the caller.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if pgxscan.NotFound(err) {
		return goals.ErrNotFound
	}
	err = postgres.MapError(err)
	if errors.Is(err, postgres.ErrPolicyViolation) || errors.Is(err, postgres.ErrForeignKeyViolation) {
		return fmt.Errorf("%w: %w", goals.ErrNotFound, err)
	}
	return err
}

func joinCols(cols []string) string {
	return strings.Join(cols, ", ")
}
