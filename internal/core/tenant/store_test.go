package tenant

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Lifecycle(t *testing.T) {
	s := NewStore()
	assert.Equal(t, StateUnset, s.State())

	_, ok := s.Current()
	assert.False(t, ok, "unset store has no scope")

	scope := Scope{UserID: uuid.New(), OrganizationID: uuid.New()}
	require.NoError(t, s.Set(scope))
	assert.Equal(t, StateSet, s.State())

	got, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, scope, got)

	res := s.Clear()
	assert.True(t, res.OK())
	assert.Equal(t, StateCleared, s.State())

	_, ok = s.Current()
	assert.False(t, ok, "cleared store has no scope")
}

func TestStore_NoSetAfterSet(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(Scope{OrganizationID: uuid.New()}))

	err := s.Set(Scope{OrganizationID: uuid.New()})
	assert.ErrorIs(t, err, ErrContextAlreadySet)
}

func TestStore_NoSetAfterClear(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(Scope{OrganizationID: uuid.New()}))
	s.Clear()

	err := s.Set(Scope{OrganizationID: uuid.New()})
	assert.ErrorIs(t, err, ErrContextAlreadySet)
	assert.Equal(t, StateCleared, s.State())
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	s := NewStore()
	calls := 0
	s.OnClear(func() CleanupResult {
		calls++
		return Succeeded()
	})

	assert.True(t, s.Clear().OK())
	assert.True(t, s.Clear().OK())
	assert.Equal(t, 1, calls)
}

func TestStore_ClearFromUnset(t *testing.T) {
	s := NewStore()
	assert.True(t, s.Clear().OK())
	assert.Equal(t, StateCleared, s.State())
}

func TestStore_ClearReportsWorstHook(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(Scope{OrganizationID: uuid.New()}))

	errA := errors.New("reset failed")
	errB := errors.New("destroy failed")
	s.OnClear(func() CleanupResult { return FailedContinue(errA) })
	s.OnClear(func() CleanupResult { return FailedUnhealthy(errB) })
	s.OnClear(func() CleanupResult { return Succeeded() })

	res := s.Clear()
	assert.Equal(t, CleanupFailedUnhealthy, res.Outcome)
	assert.ErrorIs(t, res.Err, errA)
	assert.ErrorIs(t, res.Err, errB)
	assert.Equal(t, StateCleared, s.State(), "store is cleared even when hooks fail")
}

func TestStore_ClearHookPanic(t *testing.T) {
	s := NewStore()
	s.OnClear(func() CleanupResult { panic("boom") })

	res := s.Clear()
	assert.Equal(t, CleanupFailedUnhealthy, res.Outcome)
	assert.Error(t, res.Err)
}

func TestStore_Override(t *testing.T) {
	target := uuid.New()

	t.Run("system owner", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.Set(Scope{UserID: uuid.New(), IsSystemOwner: true}))
		require.NoError(t, s.Override(target))

		got, _ := s.Current()
		assert.Equal(t, target, got.OrganizationID)
		assert.False(t, got.IsSystemOwner, "acting as a tenant drops the bypass")
		assert.True(t, got.ActingOwner)
	})

	t.Run("retarget again", func(t *testing.T) {
		other := uuid.New()
		s := NewStore()
		require.NoError(t, s.Set(Scope{UserID: uuid.New(), IsSystemOwner: true}))
		require.NoError(t, s.Override(target))
		require.NoError(t, s.Override(other))

		got, _ := s.Current()
		assert.Equal(t, other, got.OrganizationID)
		assert.False(t, got.IsSystemOwner)
	})

	t.Run("regular user", func(t *testing.T) {
		own := uuid.New()
		s := NewStore()
		require.NoError(t, s.Set(Scope{UserID: uuid.New(), OrganizationID: own}))
		assert.ErrorIs(t, s.Override(target), ErrNotSystemOwner)

		got, _ := s.Current()
		assert.Equal(t, own, got.OrganizationID)
	})

	t.Run("not set", func(t *testing.T) {
		s := NewStore()
		assert.ErrorIs(t, s.Override(target), ErrContextNotSet)
		s.Clear()
		assert.ErrorIs(t, s.Override(target), ErrContextNotSet)
	})
}

func TestStore_Concurrent(t *testing.T) {
	s := NewStore()
	scope := Scope{UserID: uuid.New(), OrganizationID: uuid.New()}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Set(scope) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
			s.Current()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one Set wins")
}

func TestScopeFromContext(t *testing.T) {
	ctx := context.Background()
	_, ok := ScopeFromContext(ctx)
	assert.False(t, ok, "no store")

	s := NewStore()
	ctx = WithStore(ctx, s)
	assert.Same(t, s, StoreFromContext(ctx))

	_, ok = ScopeFromContext(ctx)
	assert.False(t, ok, "unset store")

	scope := Scope{UserID: uuid.New(), OrganizationID: uuid.New()}
	require.NoError(t, s.Set(scope))
	got, ok := ScopeFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, scope, got)

	s.Clear()
	_, ok = ScopeFromContext(ctx)
	assert.False(t, ok, "cleared store")
}

func TestWithScope(t *testing.T) {
	ctx := WithScope(context.Background(), SystemScope())
	got, ok := ScopeFromContext(ctx)
	require.True(t, ok)
	assert.True(t, got.IsSystemOwner)
	assert.False(t, got.HasOrganization())
}

func TestUser_Scope(t *testing.T) {
	org := uuid.New()

	u := &User{ID: uuid.New(), OrganizationID: &org}
	s, err := u.Scope()
	require.NoError(t, err)
	assert.Equal(t, Scope{UserID: u.ID, OrganizationID: org}, s)

	orphan := &User{ID: uuid.New()}
	_, err = orphan.Scope()
	assert.ErrorIs(t, err, ErrNoOrganization)

	owner := &User{ID: uuid.New(), IsSystemOwner: true}
	s, err = owner.Scope()
	require.NoError(t, err)
	assert.True(t, s.IsSystemOwner)
	assert.False(t, s.HasOrganization())
}
