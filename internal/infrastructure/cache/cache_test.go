package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okrtrack/internal/core/tenant"
)

func newOrg(slug string) *tenant.Organization {
	return &tenant.Organization{ID: uuid.New(), Slug: slug, Name: slug}
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	org := newOrg("acme")
	m.Set(ctx, "acme", org, time.Minute)

	got, ok := m.Get(ctx, "acme")
	require.True(t, ok)
	assert.Equal(t, org.ID, got.ID)

	now = now.Add(2 * time.Minute)
	_, ok = m.Get(ctx, "acme")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestMemory_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)
	m.Set(ctx, "acme", newOrg("acme"), time.Minute)

	got, _ := m.Get(ctx, "acme")
	got.Slug = "mutated"

	again, _ := m.Get(ctx, "acme")
	assert.Equal(t, "acme", again.Slug)
}

func TestMemory_Evicts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	m.Set(ctx, "a", newOrg("a"), time.Minute)
	m.Set(ctx, "b", newOrg("b"), 2*time.Minute)
	m.Set(ctx, "c", newOrg("c"), 3*time.Minute)

	assert.Equal(t, 2, m.Len())
	_, ok := m.Get(ctx, "a")
	assert.False(t, ok, "soonest to expire is evicted")
}

func TestMemory_DeleteAndIgnoreZeroTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	m.Set(ctx, "acme", newOrg("acme"), 0)
	assert.Zero(t, m.Len())

	m.Set(ctx, "acme", newOrg("acme"), time.Minute)
	m.Delete(ctx, "acme")
	_, ok := m.Get(ctx, "acme")
	assert.False(t, ok)
}

func newRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client), mr
}

func TestRedis_RoundTrip(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedis(t)

	org := newOrg("globex")
	r.Set(ctx, "globex", org, time.Minute)
	assert.True(t, mr.Exists(redisKeyPrefix+"globex"))

	got, ok := r.Get(ctx, "globex")
	require.True(t, ok)
	assert.Equal(t, org.ID, got.ID)
	assert.Equal(t, "globex", got.Slug)

	mr.FastForward(2 * time.Minute)
	_, ok = r.Get(ctx, "globex")
	assert.False(t, ok)
}

func TestRedis_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedis(t)

	require.NoError(t, mr.Set(redisKeyPrefix+"acme", "{not json"))
	_, ok := r.Get(ctx, "acme")
	assert.False(t, ok)
	assert.False(t, mr.Exists(redisKeyPrefix+"acme"))
}

func TestRedis_ServerDown(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedis(t)
	mr.Close()

	_, ok := r.Get(ctx, "acme")
	assert.False(t, ok)
	r.Set(ctx, "acme", newOrg("acme"), time.Minute)
	r.Delete(ctx, "acme")
}

func TestRedis_Connect(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	_, err = Connect(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestCachedOrganizations_WithMemory(t *testing.T) {
	ctx := context.Background()
	acme := newOrg("acme")
	dir := &countingDir{orgs: map[string]*tenant.Organization{"acme": acme}}
	c := tenant.NewCachedOrganizations(dir, NewMemory(10), time.Minute)

	for range 3 {
		got, err := c.GetBySlug(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, acme.ID, got.ID)
	}
	assert.Equal(t, 1, dir.calls)
}

type countingDir struct {
	orgs  map[string]*tenant.Organization
	calls int
}

func (d *countingDir) GetBySlug(_ context.Context, slug string) (*tenant.Organization, error) {
	d.calls++
	if o, ok := d.orgs[slug]; ok {
		return o, nil
	}
	return nil, tenant.ErrOrganizationNotFound
}
