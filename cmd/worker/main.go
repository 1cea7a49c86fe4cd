// Package main is the entry point for the okrtrack background worker.
// Each pass visits every organization and acts as that tenant.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"okrtrack/internal/config"
	"okrtrack/internal/core/tenant"
	"okrtrack/internal/domain/goals"
	"okrtrack/internal/infrastructure/storage/postgres"
	"okrtrack/internal/infrastructure/storage/postgres/goal_repo"
	"okrtrack/pkg/logger"
)

// maxParallelTenants bounds how many dedicated connections a pass holds.
const maxParallelTenants = 4

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

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting okrtrack worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = maxParallelTenants + 1
	poolCfg.ConnectRetries = cfg.DBConnectRetries
	poolCfg.ApplicationName = "okrtrack-worker"
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	if err := postgres.CheckRequestRole(ctx, pool); err != nil && !cfg.AllowBypassRLS {
		log.Fatalw("worker role is not subject to row-level security", "error", err)
	}

	txm := postgres.NewTxManager(pool)
	worker := NewStaleWorker(
		pool,
		postgres.NewDirectory(txm),
		goals.NewService(goal_repo.New(txm), txm),
		cfg.StaleAfter,
		log,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx, cfg.WorkerInterval)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	postgres.LogPoolStats(context.Background(), pool)
	log.Info("worker stopped")
}

// OrganizationLister lists every tenant.
type OrganizationLister interface {
	ListOrganizations(ctx context.Context) ([]*tenant.Organization, error)
}

// StaleWorker reports key results that have gone without a check-in.
type StaleWorker struct {
	pool       *postgres.Pool
	orgs       OrganizationLister
	goals      *goals.Service
	staleAfter time.Duration
	log        *logger.Logger
}

func NewStaleWorker(pool *postgres.Pool, orgs OrganizationLister, svc *goals.Service, staleAfter time.Duration, log *logger.Logger) *StaleWorker {
	return &StaleWorker{
		pool:       pool,
		orgs:       orgs,
		goals:      svc,
		staleAfter: staleAfter,
		log:        log.WithComponent("stale-worker"),
	}
}

// Run makes a pass immediately and then every interval until ctx ends.
func (w *StaleWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pass(ctx)
		}
	}
}

func (w *StaleWorker) pass(ctx context.Context) {
	orgs, err := w.orgs.ListOrganizations(ctx)
	if err != nil {
		w.log.Errorw("failed to list organizations", "error", err)
		return
	}

	since := time.Now().Add(-w.staleAfter)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelTenants)

	for _, org := range orgs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			w.processOrganization(gctx, org, since)
			return nil
		})
	}
	_ = g.Wait()

	guard := w.pool.Guard().Stats()
	if !guard.Healthy() {
		w.log.Errorw("connections left with tenant context", "unhealthy", guard.Unhealthy)
	}
}

// processOrganization runs on a dedicated connection whose session carries
// only this organization. The query itself has no organization filter.
func (w *StaleWorker) processOrganization(ctx context.Context, org *tenant.Organization, since time.Time) {
	err := postgres.WithScope(ctx, w.pool, tenant.ForOrganization(org.ID), func(ctx context.Context, _ postgres.Querier) error {
		stale, err := w.goals.StaleKeyResults(ctx, since)
		if err != nil {
			return err
		}
		for _, kr := range stale {
			w.log.Infow("key result needs a check-in",
				"organization", org.Slug,
				"key_result_id", kr.ID,
				"title", kr.Title,
				"last_check_in", kr.LastCheckIn,
			)
		}
		w.log.Debugw("organization processed", "organization", org.Slug, "stale", len(stale))
		return nil
	})
	if err != nil {
		w.log.Errorw("stale check failed", "organization", org.Slug, "error", err)
	}
}
