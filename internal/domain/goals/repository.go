package goals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a row does not exist or is not visible to
// the current tenant scope. The two cases are indistinguishable on purpose.
var ErrNotFound = errors.New("not found")

// Repository persists goals. Implementations must not filter by
// organization.
type Repository interface {
	ListObjectives(ctx context.Context, f ListFilter) ([]*Objective, error)
	GetObjective(ctx context.Context, id uuid.UUID) (*Objective, error)
	CreateObjective(ctx context.Context, ownerID uuid.UUID, in NewObjective) (*Objective, error)

	ListKeyResults(ctx context.Context, objectiveID uuid.UUID) ([]*KeyResult, error)
	CreateKeyResult(ctx context.Context, objectiveID uuid.UUID, in NewKeyResult) (*KeyResult, error)

	ListCheckIns(ctx context.Context, keyResultID uuid.UUID, f ListFilter) ([]*CheckIn, error)
	CreateCheckIn(ctx context.Context, keyResultID uuid.UUID, in NewCheckIn) (*CheckIn, error)

	// StaleKeyResults lists key results whose latest check-in is older than
	// since, or that have none.
	StaleKeyResults(ctx context.Context, since time.Time) ([]*StaleKeyResult, error)
}
