// Package cache provides organization slug caches and their invalidation.
package cache

import (
	"context"
	"sync"
	"time"

	"okrtrack/internal/core/tenant"
)

// DefaultMemorySize bounds the in-memory cache.
const DefaultMemorySize = 1000

// Memory is a TTL cache of organizations held in process memory.
type Memory struct {
	mu      sync.Mutex
	items   map[string]memoryItem
	maxSize int
	now     func() time.Time
}

type memoryItem struct {
	org       tenant.Organization
	expiresAt time.Time
}

var _ tenant.OrganizationCache = (*Memory)(nil)

// NewMemory creates an in-memory cache holding at most maxSize slugs.
func NewMemory(maxSize int) *Memory {
	if maxSize <= 0 {
		maxSize = DefaultMemorySize
	}
	return &Memory{
		items:   make(map[string]memoryItem),
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, slug string) (*tenant.Organization, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[slug]
	if !ok {
		return nil, false
	}
	if m.now().After(item.expiresAt) {
		delete(m.items, slug)
		return nil, false
	}
	org := item.org
	return &org, true
}

func (m *Memory) Set(_ context.Context, slug string, org *tenant.Organization, ttl time.Duration) {
	if org == nil || ttl <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[slug]; !exists && len(m.items) >= m.maxSize {
		m.evictLocked()
	}
	m.items[slug] = memoryItem{org: *org, expiresAt: m.now().Add(ttl)}
}

func (m *Memory) Delete(_ context.Context, slug string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, slug)
}

// Len returns the number of cached slugs, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// evictLocked drops expired entries, or the entry closest to expiry when
// nothing has expired.
func (m *Memory) evictLocked() {
	now := m.now()
	var (
		oldest    string
		oldestExp time.Time
	)
	for k, v := range m.items {
		if now.After(v.expiresAt) {
			delete(m.items, k)
			continue
		}
		if oldest == "" || v.expiresAt.Before(oldestExp) {
			oldest, oldestExp = k, v.expiresAt
		}
	}
	if len(m.items) >= m.maxSize && oldest != "" {
		delete(m.items, oldest)
	}
}
