package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_RequiresDatabaseURL(t *testing.T) {
	_, err := LoadFrom(map[string]string{})
	assert.ErrorIs(t, err, ErrParsingConfig)

	_, err = LoadFrom(map[string]string{"DATABASE_URL": ""})
	assert.ErrorIs(t, err, ErrParsingConfig)
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"DATABASE_URL": "postgres://app@db/okr"})
	require.NoError(t, err)

	assert.Equal(t, "postgres://app@db/okr", cfg.AdminDatabaseURL)
	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 5*time.Minute, cfg.OrgCacheTTL)
	assert.Equal(t, int32(20), cfg.DBMaxConns)
	assert.Equal(t, uint(5), cfg.DBConnectRetries)
	assert.False(t, cfg.AllowBypassRLS)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"DATABASE_URL":       "postgres://app@db/okr",
		"ADMIN_DATABASE_URL": "postgres://owner@db/okr",
		"APP_ENV":            "production",
		"ORG_CACHE_TTL":      "30s",
		"CORS_ORIGINS":       "https://a.example,https://b.example",
		"DB_MAX_CONNS":       "7",
	})
	require.NoError(t, err)

	assert.Equal(t, "postgres://owner@db/okr", cfg.AdminDatabaseURL)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 30*time.Second, cfg.OrgCacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, int32(7), cfg.DBMaxConns)
}

func TestLoadFrom_RejectsBadValues(t *testing.T) {
	_, err := LoadFrom(map[string]string{"DATABASE_URL": "x", "DB_MAX_CONNS": "0"})
	assert.ErrorIs(t, err, ErrParsingConfig)

	_, err = LoadFrom(map[string]string{"DATABASE_URL": "x", "ORG_CACHE_TTL": "soon"})
	assert.ErrorIs(t, err, ErrParsingConfig)
}
