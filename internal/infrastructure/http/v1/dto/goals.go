package dto

import (
	"github.com/shopspring/decimal"

	"okrtrack/internal/domain/goals"
)

// CreateObjectiveRequest creates an objective owned by the caller.
type CreateObjectiveRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Period      string `json:"period"`
}

func (r CreateObjectiveRequest) ToDomain() goals.NewObjective {
	return goals.NewObjective{Title: r.Title, Description: r.Description, Period: r.Period}
}

// CreateKeyResultRequest adds a key result to an objective.
type CreateKeyResultRequest struct {
	Title       string          `json:"title" binding:"required"`
	Unit        string          `json:"unit"`
	StartValue  decimal.Decimal `json:"startValue"`
	TargetValue decimal.Decimal `json:"targetValue"`
}

func (r CreateKeyResultRequest) ToDomain() goals.NewKeyResult {
	return goals.NewKeyResult{
		Title:       r.Title,
		Unit:        r.Unit,
		StartValue:  r.StartValue,
		TargetValue: r.TargetValue,
	}
}

// CreateCheckInRequest records a key result value.
type CreateCheckInRequest struct {
	Value decimal.Decimal `json:"value"`
	Note  string          `json:"note"`
}

func (r CreateCheckInRequest) ToDomain() goals.NewCheckIn {
	return goals.NewCheckIn{Value: r.Value, Note: r.Note}
}

// ObjectiveDetail is an objective with its key results.
type ObjectiveDetail struct {
	*goals.Objective
	KeyResults []*goals.KeyResult `json:"keyResults"`
}
