// Package goals holds objectives, their key results and check-ins.
//
// Nothing here knows about organizations. Which rows a caller sees is decided
// by the database from the tenant scope of the surrounding transaction.
package goals

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"okrtrack/internal/core/apperror"
)

// Objective is a qualitative goal owned by a user.
type Objective struct {
	ID          uuid.UUID `db:"id" json:"id"`
	OwnerID     uuid.UUID `db:"owner_id" json:"ownerId"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Period      string    `db:"period" json:"period"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// KeyResult is a measurable outcome of an objective.
type KeyResult struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	ObjectiveID  uuid.UUID       `db:"objective_id" json:"objectiveId"`
	Title        string          `db:"title" json:"title"`
	Unit         string          `db:"unit" json:"unit"`
	StartValue   decimal.Decimal `db:"start_value" json:"startValue"`
	TargetValue  decimal.Decimal `db:"target_value" json:"targetValue"`
	CurrentValue decimal.Decimal `db:"current_value" json:"currentValue"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}

// CheckIn records a key result's value at a point in time.
type CheckIn struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	KeyResultID uuid.UUID       `db:"key_result_id" json:"keyResultId"`
	Value       decimal.Decimal `db:"value" json:"value"`
	Note        string          `db:"note" json:"note"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}

// StaleKeyResult is a key result without a recent check-in.
type StaleKeyResult struct {
	KeyResult
	LastCheckIn *time.Time `db:"last_check_in" json:"lastCheckIn,omitempty"`
}

// NewObjective is the input of CreateObjective.
type NewObjective struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Period      string `json:"period"`
}

// Validate checks required fields.
func (n *NewObjective) Validate() error {
	n.Title = strings.TrimSpace(n.Title)
	if n.Title == "" {
		return apperror.NewValidation("title is required").WithDetail("field", "title")
	}
	if len(n.Title) > 200 {
		return apperror.NewValidation("title is too long").WithDetail("field", "title")
	}
	return nil
}

// NewKeyResult is the input of CreateKeyResult.
type NewKeyResult struct {
	Title       string          `json:"title"`
	Unit        string          `json:"unit"`
	StartValue  decimal.Decimal `json:"startValue"`
	TargetValue decimal.Decimal `json:"targetValue"`
}

// Validate checks required fields.
func (n *NewKeyResult) Validate() error {
	n.Title = strings.TrimSpace(n.Title)
	if n.Title == "" {
		return apperror.NewValidation("title is required").WithDetail("field", "title")
	}
	if n.TargetValue.Equal(n.StartValue) {
		return apperror.NewValidation("target must differ from start").WithDetail("field", "targetValue")
	}
	return nil
}

// NewCheckIn is the input of CreateCheckIn.
type NewCheckIn struct {
	Value decimal.Decimal `json:"value"`
	Note  string          `json:"note"`
}

// Validate checks the note length.
func (n *NewCheckIn) Validate() error {
	if len(n.Note) > 2000 {
		return apperror.NewValidation("note is too long").WithDetail("field", "note")
	}
	return nil
}

// ListFilter pages list results.
type ListFilter struct {
	Limit  int
	Offset int
}

// DefaultLimit and MaxLimit bound list page sizes.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Normalize clamps the filter to sane bounds.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
