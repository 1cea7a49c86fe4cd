package tenant

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// State is the lifecycle position of a Store.
type State int

const (
	StateUnset State = iota
	StateSet
	StateCleared
)

func (s State) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StateSet:
		return "set"
	case StateCleared:
		return "cleared"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CleanupOutcome classifies the result of clearing a context.
type CleanupOutcome int

const (
	// CleanupSucceeded means nothing of the context survives.
	CleanupSucceeded CleanupOutcome = iota

	// CleanupFailedContinue means a clear step failed but the failure is
	// contained (the connection was discarded, the request may finish).
	CleanupFailedContinue

	// CleanupFailedUnhealthy means context may have survived somewhere the
	// process cannot reach. Health checks should report it.
	CleanupFailedUnhealthy
)

func (o CleanupOutcome) String() string {
	switch o {
	case CleanupSucceeded:
		return "succeeded"
	case CleanupFailedContinue:
		return "failed_continue"
	case CleanupFailedUnhealthy:
		return "failed_unhealthy"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// CleanupResult is returned by every clear operation.
type CleanupResult struct {
	Outcome CleanupOutcome
	Err     error
}

// OK reports whether the cleanup succeeded.
func (r CleanupResult) OK() bool {
	return r.Outcome == CleanupSucceeded
}

// Worse returns whichever of r and other has the more severe outcome,
// joining both errors.
func (r CleanupResult) Worse(other CleanupResult) CleanupResult {
	out := r
	if other.Outcome > out.Outcome {
		out.Outcome = other.Outcome
	}
	out.Err = errors.Join(r.Err, other.Err)
	return out
}

// Succeeded is the zero-failure cleanup result.
func Succeeded() CleanupResult { return CleanupResult{Outcome: CleanupSucceeded} }

// FailedContinue wraps a contained cleanup failure.
func FailedContinue(err error) CleanupResult {
	return CleanupResult{Outcome: CleanupFailedContinue, Err: err}
}

// FailedUnhealthy wraps a cleanup failure that leaves the process unhealthy.
func FailedUnhealthy(err error) CleanupResult {
	return CleanupResult{Outcome: CleanupFailedUnhealthy, Err: err}
}

// Store is the request-scoped tenant context.
//
// Transitions: Unset -> Set -> Cleared, and Unset -> Cleared. Cleared is
// terminal: a Store is never reused, the next request gets a new one.
// Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	state   State
	scope   Scope
	onClear []func() CleanupResult
}

// NewStore returns a Store in the Unset state.
func NewStore() *Store {
	return &Store{}
}

// Set writes the scope. Only valid from Unset.
func (s *Store) Set(scope Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnset {
		return fmt.Errorf("%w (state %s)", ErrContextAlreadySet, s.state)
	}
	s.scope = scope
	s.state = StateSet
	return nil
}

// Override retargets a system owner's scope at orgID and drops the bypass,
// so the request acts as that tenant. The caller must have re-verified the
// owner flag against the user record first.
func (s *Store) Override(orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateSet {
		return fmt.Errorf("%w (state %s)", ErrContextNotSet, s.state)
	}
	if !s.scope.IsSystemOwner && !s.scope.ActingOwner {
		return ErrNotSystemOwner
	}
	s.scope.OrganizationID = orgID
	s.scope.IsSystemOwner = false
	s.scope.ActingOwner = true
	return nil
}

// OnClear registers fn to run when the store is cleared. Hooks run once, in
// registration order.
func (s *Store) OnClear(fn func() CleanupResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClear = append(s.onClear, fn)
}

// Clear drops the scope and runs clear hooks. Calling it again is a no-op
// that reports success.
func (s *Store) Clear() CleanupResult {
	s.mu.Lock()
	if s.state == StateCleared {
		s.mu.Unlock()
		return Succeeded()
	}
	s.state = StateCleared
	s.scope = Scope{}
	hooks := s.onClear
	s.onClear = nil
	s.mu.Unlock()

	res := Succeeded()
	for _, fn := range hooks {
		res = res.Worse(runHook(fn))
	}
	return res
}

func runHook(fn func() CleanupResult) (res CleanupResult) {
	defer func() {
		if r := recover(); r != nil {
			res = FailedUnhealthy(fmt.Errorf("clear hook panicked: %v", r))
		}
	}()
	return fn()
}

// Current returns the scope while the store is Set.
func (s *Store) Current() (Scope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateSet {
		return Scope{}, false
	}
	return s.scope, true
}

// State returns the lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
