package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"okrtrack/pkg/logger"
)

// OrganizationsChannel is the NOTIFY channel fired by the organizations
// trigger. The payload is the affected slug.
const OrganizationsChannel = "organizations_changed"

// InvalidateFunc drops one slug from a cache.
type InvalidateFunc func(ctx context.Context, slug string)

// Invalidator listens for organization changes and evicts cached slugs.
// It holds one pool connection for as long as it runs.
type Invalidator struct {
	pool       *pgxpool.Pool
	invalidate InvalidateFunc

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewInvalidator creates an Invalidator. Call Start to begin listening.
func NewInvalidator(pool *pgxpool.Pool, invalidate InvalidateFunc) *Invalidator {
	return &Invalidator{pool: pool, invalidate: invalidate}
}

// Start begins listening in the background.
func (i *Invalidator) Start(ctx context.Context) {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()
	if i.started {
		return
	}
	i.ctx, i.cancel = context.WithCancel(ctx)
	i.started = true

	i.wg.Add(1)
	go i.listenLoop()
	logger.Info(i.ctx, "organization cache invalidator started")
}

// Stop cancels the listener and waits for it to exit.
func (i *Invalidator) Stop() {
	i.lifecycleMu.Lock()
	if !i.started {
		i.lifecycleMu.Unlock()
		return
	}
	cancel := i.cancel
	i.started = false
	i.cancel = nil
	i.lifecycleMu.Unlock()

	cancel()
	i.wg.Wait()
	logger.Info(context.Background(), "organization cache invalidator stopped")
}

func (i *Invalidator) listenLoop() {
	defer i.wg.Done()

	for {
		select {
		case <-i.ctx.Done():
			return
		default:
		}

		conn, err := i.pool.Acquire(i.ctx)
		if err != nil {
			if i.ctx.Err() != nil {
				return
			}
			logger.Error(i.ctx, "failed to acquire connection for LISTEN", "error", err)
			time.Sleep(time.Second)
			continue
		}

		if _, err = conn.Exec(i.ctx, "LISTEN "+OrganizationsChannel); err != nil {
			logger.Error(i.ctx, "failed to LISTEN", "error", err)
			// The connection may still be subscribed.
			conn.Conn().Close(context.Background())
			conn.Release()
			time.Sleep(time.Second)
			continue
		}

		i.waitForNotifications(conn)

		// LISTEN is session state; do not hand a subscribed connection back.
		conn.Conn().Close(context.Background())
		conn.Release()
	}
}

func (i *Invalidator) waitForNotifications(conn *pgxpool.Conn) {
	for {
		ctx, cancel := context.WithTimeout(i.ctx, 30*time.Second)
		n, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if i.ctx.Err() != nil {
				return
			}
			if conn.Conn().IsClosed() {
				logger.Warn(i.ctx, "LISTEN connection lost, reconnecting")
				return
			}
			continue
		}

		slug := strings.TrimSpace(n.Payload)
		if slug == "" {
			continue
		}
		logger.Debug(i.ctx, "organization changed", "slug", slug)
		i.invalidate(i.ctx, slug)
	}
}
