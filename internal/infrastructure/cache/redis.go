package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"okrtrack/internal/core/tenant"
	"okrtrack/pkg/logger"
)

const redisKeyPrefix = "okrtrack:org:"

// Redis caches organizations in a shared Redis so every replica sees the same
// invalidations.
type Redis struct {
	client redis.UniversalClient
}

var _ tenant.OrganizationCache = (*Redis)(nil)

// NewRedis wraps a connected client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Connect parses url and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Get treats any Redis error as a miss; the directory is the source of truth.
func (r *Redis) Get(ctx context.Context, slug string) (*tenant.Organization, bool) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+slug).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn(ctx, "organization cache get failed", "slug", slug, "error", err)
		}
		return nil, false
	}

	var org tenant.Organization
	if err := json.Unmarshal(raw, &org); err != nil {
		logger.Warn(ctx, "organization cache entry corrupt", "slug", slug, "error", err)
		r.Delete(ctx, slug)
		return nil, false
	}
	return &org, true
}

func (r *Redis) Set(ctx context.Context, slug string, org *tenant.Organization, ttl time.Duration) {
	if org == nil || ttl <= 0 {
		return
	}
	raw, err := json.Marshal(org)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, redisKeyPrefix+slug, raw, ttl).Err(); err != nil {
		logger.Warn(ctx, "organization cache set failed", "slug", slug, "error", err)
	}
}

func (r *Redis) Delete(ctx context.Context, slug string) {
	if err := r.client.Del(ctx, redisKeyPrefix+slug).Err(); err != nil {
		logger.Warn(ctx, "organization cache delete failed", "slug", slug, "error", err)
	}
}
