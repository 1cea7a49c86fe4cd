// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrParsingConfig wraps every failure to read the environment.
var ErrParsingConfig = errors.New("failed to parse configuration")

// Config holds settings shared by the server, worker and CLI binaries.
type Config struct {
	// DatabaseURL is used for request traffic. Its role must not be a
	// superuser and must not have BYPASSRLS.
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// AdminDatabaseURL owns the schema. It runs migrations and installs
	// policies. Falls back to DatabaseURL when empty.
	AdminDatabaseURL string `env:"ADMIN_DATABASE_URL"`

	Port     string `env:"APP_PORT" envDefault:"8080"`
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"1h"`

	// RedisURL enables the shared organization cache. Empty means an
	// in-process cache.
	RedisURL    string        `env:"REDIS_URL"`
	OrgCacheTTL time.Duration `env:"ORG_CACHE_TTL" envDefault:"5m"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	DBMaxConns       int32 `env:"DB_MAX_CONNS" envDefault:"20"`
	DBConnectRetries uint  `env:"DB_CONNECT_RETRIES" envDefault:"5"`

	// AllowBypassRLS skips the startup check on the request role. Local
	// development against a superuser only.
	AllowBypassRLS bool `env:"DB_ALLOW_BYPASS_RLS" envDefault:"false"`

	StaleAfter     time.Duration `env:"WORKER_STALE_AFTER" envDefault:"168h"`
	WorkerInterval time.Duration `env:"WORKER_INTERVAL" envDefault:"1h"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()
	return parse(env.Options{})
}

// LoadFrom parses the given variables only. Used by tests and tools that
// build their environment explicitly.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}
	if cfg.AdminDatabaseURL == "" {
		cfg.AdminDatabaseURL = cfg.DatabaseURL
	}
	if cfg.DBMaxConns <= 0 {
		return nil, fmt.Errorf("%w: DB_MAX_CONNS must be positive", ErrParsingConfig)
	}
	return &cfg, nil
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
