package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"okrtrack/internal/core/tenant"
	"okrtrack/pkg/logger"
)

// clearTimeout bounds the clear statement so a stuck connection cannot hold
// up a request's completion.
const clearTimeout = 5 * time.Second

// Session is a dedicated pool connection carrying session-level tenant
// context. Maintenance tasks use it to act as one tenant, or as system owner,
// across several statements and transactions.
type Session struct {
	conn  *pgxpool.Conn
	guard *Guard

	mu       sync.Mutex
	released bool
}

// NewSession checks out a connection from pool.
func NewSession(ctx context.Context, pool *Pool) (*Session, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session connection: %w", err)
	}
	return &Session{conn: conn, guard: pool.guard}, nil
}

// Querier returns the session connection.
func (s *Session) Querier() Querier {
	return s.conn
}

// SetContext writes scope into the connection. The connection is marked
// first, so even a half-applied write is caught on release.
func (s *Session) SetContext(ctx context.Context, scope tenant.Scope) error {
	s.guard.Mark(s.conn.Conn())
	return applyScope(ctx, s.conn, scope, true, false)
}

// ClearContext resets the tenant variables. On failure the connection stays
// marked and is closed, so it can never be handed to another checkout.
func (s *Session) ClearContext(ctx context.Context) tenant.CleanupResult {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), clearTimeout)
	defer cancel()

	err := clearScope(ctx, s.conn)
	if err == nil {
		s.guard.Unmark(s.conn.Conn())
		return tenant.Succeeded()
	}

	s.guard.recordClearFailure()
	closeErr := s.conn.Conn().Close(ctx)
	if s.conn.Conn().IsClosed() {
		// The pool destroys closed connections without consulting the guard.
		s.guard.forget(s.conn.Conn())
		return tenant.FailedContinue(err)
	}
	s.guard.recordUnhealthy()
	return tenant.FailedUnhealthy(fmt.Errorf("%w; close connection: %v", err, closeErr))
}

// Release returns the connection to the pool. A connection still marked is
// destroyed by the pool guard. Safe to call more than once.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	s.conn.Release()
}

// WithScope runs fn on a dedicated connection acting as scope:
// acquire, set, fn, clear, release. TxManager calls made with the ctx passed
// to fn run on that same connection. Clear runs on every exit path,
// including panics. A failed clear destroys the connection and is logged;
// it does not replace fn's error.
func WithScope(ctx context.Context, pool *Pool, scope tenant.Scope, fn func(ctx context.Context, q Querier) error) error {
	sess, err := NewSession(ctx, pool)
	if err != nil {
		return err
	}
	defer sess.Release()

	store := tenant.NewStore()
	store.OnClear(func() tenant.CleanupResult {
		return sess.ClearContext(ctx)
	})
	defer func() {
		if res := store.Clear(); !res.OK() {
			logger.Error(ctx, "tenant context cleanup failed",
				"outcome", res.Outcome.String(), "error", res.Err)
		}
	}()

	if err := sess.SetContext(ctx, scope); err != nil {
		return err
	}
	if err := store.Set(scope); err != nil {
		return err
	}

	ctx = context.WithValue(tenant.WithStore(ctx, store), sessionKey{}, sess)
	return fn(ctx, sess.Querier())
}

type sessionKey struct{}

func sessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}
