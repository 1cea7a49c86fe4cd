package postgres

import (
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
)

// Guard tracks connections that carry session-level tenant context.
//
// A connection is marked before its context is written and unmarked only
// after the context has been cleared. The pool calls AfterRelease for every
// returned connection; a connection still marked there is destroyed, so a
// tenant context never reaches the next checkout.
type Guard struct {
	mu     sync.Mutex
	marked map[*pgx.Conn]struct{}

	destroyed      atomic.Int64
	clearFailures  atomic.Int64
	unhealthyCount atomic.Int64
}

// GuardStats is a snapshot for readiness and logs.
type GuardStats struct {
	// Marked is the number of checked-out connections with context set.
	Marked int
	// Destroyed counts connections dropped because they came back marked.
	Destroyed int64
	// ClearFailures counts failed context clears.
	ClearFailures int64
	// Unhealthy counts cleanups whose connection could not be dropped.
	Unhealthy int64
}

// NewGuard creates an empty Guard.
func NewGuard() *Guard {
	return &Guard{marked: make(map[*pgx.Conn]struct{})}
}

// Mark records that conn is about to carry tenant context.
func (g *Guard) Mark(conn *pgx.Conn) {
	g.mu.Lock()
	g.marked[conn] = struct{}{}
	g.mu.Unlock()
}

// Unmark records that conn's tenant context is gone.
func (g *Guard) Unmark(conn *pgx.Conn) {
	g.mu.Lock()
	delete(g.marked, conn)
	g.mu.Unlock()
}

// IsMarked reports whether conn still carries tenant context.
func (g *Guard) IsMarked(conn *pgx.Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.marked[conn]
	return ok
}

// AfterRelease is installed as pgxpool.Config.AfterRelease. Returning false
// makes the pool destroy the connection.
func (g *Guard) AfterRelease(conn *pgx.Conn) bool {
	g.mu.Lock()
	_, dirty := g.marked[conn]
	delete(g.marked, conn)
	g.mu.Unlock()

	if dirty {
		g.destroyed.Add(1)
		return false
	}
	return true
}

// forget drops a marked connection that was closed instead of released.
func (g *Guard) forget(conn *pgx.Conn) {
	g.mu.Lock()
	_, ok := g.marked[conn]
	delete(g.marked, conn)
	g.mu.Unlock()
	if ok {
		g.destroyed.Add(1)
	}
}

func (g *Guard) recordClearFailure() { g.clearFailures.Add(1) }

func (g *Guard) recordUnhealthy() { g.unhealthyCount.Add(1) }

// Stats returns a snapshot of the guard counters.
func (g *Guard) Stats() GuardStats {
	g.mu.Lock()
	marked := len(g.marked)
	g.mu.Unlock()

	return GuardStats{
		Marked:        marked,
		Destroyed:     g.destroyed.Load(),
		ClearFailures: g.clearFailures.Load(),
		Unhealthy:     g.unhealthyCount.Load(),
	}
}

// Healthy reports whether no cleanup ever left context unaccounted for.
func (s GuardStats) Healthy() bool {
	return s.Unhealthy == 0
}
