// Package main is the entry point for the okrtrack API server.
// Tenant isolation: shared schema, row-level security per organization.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"okrtrack/internal/config"
	"okrtrack/internal/core/policy"
	"okrtrack/internal/core/tenant"
	"okrtrack/internal/domain/auth"
	"okrtrack/internal/domain/goals"
	v1 "okrtrack/internal/infrastructure/http/v1"
	"okrtrack/internal/infrastructure/cache"
	"okrtrack/internal/infrastructure/storage/postgres"
	"okrtrack/internal/infrastructure/storage/postgres/goal_repo"
	"okrtrack/internal/infrastructure/storage/postgres/rls"
	"okrtrack/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.WithLogger(context.Background(), log)
	log.Info("starting okrtrack server")

	model := policy.Default()

	// --- Schema and policies (admin role, one connection) ---
	if err := preparePolicies(ctx, cfg, model, log); err != nil {
		log.Fatalw("refusing to start without tenant isolation", "error", err)
	}

	// --- Request pool ---
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.ConnectRetries = cfg.DBConnectRetries
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	if err := postgres.CheckRequestRole(ctx, pool); err != nil {
		if !cfg.AllowBypassRLS {
			log.Fatalw("request role is not subject to row-level security", "error", err)
		}
		log.Warnw("request role bypasses row-level security, isolation is NOT enforced", "error", err)
	}
	log.Info("database connection established")

	txm := postgres.NewTxManager(pool)
	directory := postgres.NewDirectory(txm)

	// --- Organization cache ---
	orgCache, closeCache := newOrganizationCache(ctx, cfg, log)
	defer closeCache()
	orgs := tenant.NewCachedOrganizations(directory, orgCache, cfg.OrgCacheTTL)

	invalidator := cache.NewInvalidator(pool.Pool, orgs.Invalidate)
	invalidator.Start(ctx)
	defer invalidator.Stop()

	// --- Services ---
	jwtCfg := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtCfg.AccessTokenTTL = cfg.JWTTTL
	jwtService := auth.NewJWTService(jwtCfg)

	goalService := goals.NewService(goal_repo.New(txm), txm)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:        log,
		JWTValidator:  jwtService,
		Users:         directory,
		Resolver:      tenant.NewResolver(orgs, directory),
		Goals:         goalService,
		Organizations: directory,
		ErrSlugTaken:  postgres.ErrSlugTaken,
		DB:            pool,
		Guard:         pool.Guard(),
		Model:         model,
		CORSOrigins:   cfg.CORSOrigins,
		Development:   cfg.IsDevelopment(),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	postgres.LogPoolStats(ctx, pool)
	log.Info("server stopped")
}

// preparePolicies migrates the schema and installs the isolation policies
// over a dedicated admin connection. Any failure is fatal to the caller.
func preparePolicies(ctx context.Context, cfg *config.Config, model policy.Model, log *logger.Logger) error {
	admin, err := postgres.NewAdminPool(ctx, cfg.AdminDatabaseURL)
	if err != nil {
		return fmt.Errorf("connect admin: %w", err)
	}
	defer admin.Close()

	if err := postgres.Migrate(ctx, admin, log); err != nil {
		return err
	}

	if err := rls.NewInstaller(admin, model, log).Apply(ctx); err != nil {
		return err
	}

	st, err := rls.ReadStatus(ctx, admin, model)
	if err != nil {
		return fmt.Errorf("read policy status: %w", err)
	}
	if !st.OK() {
		return fmt.Errorf("policies after install: %s", st)
	}
	return nil
}

func newOrganizationCache(ctx context.Context, cfg *config.Config, log *logger.Logger) (tenant.OrganizationCache, func()) {
	if cfg.RedisURL == "" {
		log.Info("organization cache: in-process")
		return cache.NewMemory(10_000), func() {}
	}

	client, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Warnw("redis unavailable, falling back to in-process organization cache", "error", err)
		return cache.NewMemory(10_000), func() {}
	}
	log.Info("organization cache: redis")
	return cache.NewRedis(client), func() { _ = client.Close() }
}
