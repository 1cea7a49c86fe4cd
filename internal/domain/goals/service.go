package goals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"okrtrack/internal/core/apperror"
	"okrtrack/internal/core/tenant"
	"okrtrack/internal/core/tx"
)

// Service runs goal operations inside transactions that carry the caller's
// tenant scope.
type Service struct {
	repo Repository
	txm  tx.Manager
}

// NewService creates a goals service.
func NewService(repo Repository, txm tx.Manager) *Service {
	return &Service{repo: repo, txm: txm}
}

func (s *Service) ListObjectives(ctx context.Context, f ListFilter) ([]*Objective, error) {
	var out []*Objective
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.repo.ListObjectives(ctx, f.Normalize())
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*Objective{}
	}
	return out, nil
}

func (s *Service) GetObjective(ctx context.Context, id uuid.UUID) (*Objective, error) {
	var obj *Objective
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		obj, err = s.repo.GetObjective(ctx, id)
		return err
	})
	if err != nil {
		return nil, notFound(err, "objective", id)
	}
	return obj, nil
}

// CreateObjective creates an objective owned by the acting user, who must
// belong to the organization in scope.
func (s *Service) CreateObjective(ctx context.Context, in NewObjective) (*Objective, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	scope, ok := tenant.ScopeFromContext(ctx)
	if !ok || scope.UserID == uuid.Nil {
		return nil, apperror.NewUnauthorized("authentication required")
	}
	// The objective belongs to the owner's tenant, so the owner must be a
	// member of the organization being written.
	if scope.ActingOwner || !scope.HasOrganization() {
		return nil, apperror.NewForbidden("objectives can only be created by members of the organization")
	}

	var obj *Objective
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		obj, err = s.repo.CreateObjective(ctx, scope.UserID, in)
		return err
	})
	if err != nil {
		return nil, notFound(err, "user", scope.UserID)
	}
	return obj, nil
}

// ListKeyResults lists the key results of a visible objective.
func (s *Service) ListKeyResults(ctx context.Context, objectiveID uuid.UUID) ([]*KeyResult, error) {
	var out []*KeyResult
	err := s.read(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetObjective(ctx, objectiveID); err != nil {
			return err
		}
		var err error
		out, err = s.repo.ListKeyResults(ctx, objectiveID)
		return err
	})
	if err != nil {
		return nil, notFound(err, "objective", objectiveID)
	}
	if out == nil {
		out = []*KeyResult{}
	}
	return out, nil
}

func (s *Service) CreateKeyResult(ctx context.Context, objectiveID uuid.UUID, in NewKeyResult) (*KeyResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var kr *KeyResult
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		kr, err = s.repo.CreateKeyResult(ctx, objectiveID, in)
		return err
	})
	if err != nil {
		return nil, notFound(err, "objective", objectiveID)
	}
	return kr, nil
}

func (s *Service) ListCheckIns(ctx context.Context, keyResultID uuid.UUID, f ListFilter) ([]*CheckIn, error) {
	var out []*CheckIn
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.repo.ListCheckIns(ctx, keyResultID, f.Normalize())
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*CheckIn{}
	}
	return out, nil
}

// CreateCheckIn records a value and moves the key result's current value.
func (s *Service) CreateCheckIn(ctx context.Context, keyResultID uuid.UUID, in NewCheckIn) (*CheckIn, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var ci *CheckIn
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		ci, err = s.repo.CreateCheckIn(ctx, keyResultID, in)
		return err
	})
	if err != nil {
		return nil, notFound(err, "key result", keyResultID)
	}
	return ci, nil
}

// StaleKeyResults lists key results not checked in since the given time.
func (s *Service) StaleKeyResults(ctx context.Context, since time.Time) ([]*StaleKeyResult, error) {
	var out []*StaleKeyResult
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.repo.StaleKeyResults(ctx, since)
		return err
	})
	return out, err
}

// read runs fn read-only when the manager supports it.
func (s *Service) read(ctx context.Context, fn func(ctx context.Context) error) error {
	if ro, ok := s.txm.(tx.ReadOnlyManager); ok {
		return ro.ReadOnly(ctx, fn)
	}
	return s.txm.RunInTransaction(ctx, fn)
}

func notFound(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, ErrNotFound) {
		return apperror.NewNotFound(entity, id.String()).WithCause(err)
	}
	return err
}
