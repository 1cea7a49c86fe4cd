// Package main seeds the database with demo tenants and goals.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"okrtrack/internal/config"
	"okrtrack/internal/core/tenant"
	"okrtrack/internal/domain/goals"
	"okrtrack/internal/infrastructure/storage/postgres"
	"okrtrack/internal/infrastructure/storage/postgres/goal_repo"
	"okrtrack/pkg/logger"
)

type orgSeed struct {
	slug, name, plan string
	member           string
	objectives       []objectiveSeed
}

type objectiveSeed struct {
	title      string
	keyResults []keyResultSeed
}

type keyResultSeed struct {
	title         string
	unit          string
	start, target int64
	checkIns      []int64
}

var demo = []orgSeed{
	{
		slug: "acme", name: "Acme Corporation", plan: "team", member: "ann@acme.test",
		objectives: []objectiveSeed{
			{"Delight enterprise customers", []keyResultSeed{
				{"Raise NPS", "points", 20, 45, []int64{24, 31}},
				{"Cut p95 ticket response", "hours", 12, 4, []int64{10}},
			}},
			{"Ship the mobile app", []keyResultSeed{
				{"Beta testers onboarded", "users", 0, 500, nil},
			}},
		},
	},
	{
		slug: "globex", name: "Globex", plan: "free", member: "gus@globex.test",
		objectives: []objectiveSeed{
			{"Expand to EMEA", []keyResultSeed{
				{"Signed EMEA accounts", "accounts", 0, 12, []int64{3}},
			}},
		},
	},
}

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}

	ctx := logger.WithLogger(context.Background(), log)

	pool, err := postgres.NewAdminPool(ctx, cfg.AdminDatabaseURL)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	txm := postgres.NewTxManager(pool)
	dir := postgres.NewDirectory(txm)
	svc := goals.NewService(goal_repo.New(txm), txm)

	ownerEmail := os.Getenv("OWNER_EMAIL")
	if ownerEmail == "" {
		ownerEmail = "root@okrtrack.test"
	}
	owner, err := dir.CreateUser(ctx, ownerEmail, "System Owner", nil, true)
	if err != nil {
		log.Fatalw("failed to seed system owner", "error", err)
	}
	log.Infow("system owner ready", "email", owner.Email, "user_id", owner.ID)

	for _, s := range demo {
		if err := seedOrganization(ctx, dir, svc, s, log); err != nil {
			log.Fatalw("failed to seed organization", "slug", s.slug, "error", err)
		}
	}

	log.Info("seeding completed successfully")
}

func seedOrganization(ctx context.Context, dir *postgres.Directory, svc *goals.Service, s orgSeed, log *logger.Logger) error {
	org, err := dir.GetBySlug(ctx, s.slug)
	if errors.Is(err, tenant.ErrOrganizationNotFound) {
		org, err = dir.CreateOrganization(ctx, s.slug, s.name, s.plan)
	}
	if err != nil {
		return err
	}

	member, err := dir.CreateUser(ctx, s.member, "", &org.ID, false)
	if err != nil {
		return err
	}

	// Goals are written as the member, through the same policies a request
	// would go through.
	scope, err := member.Scope()
	if err != nil {
		return err
	}
	ctx = tenant.WithScope(ctx, scope)

	existing, err := svc.ListObjectives(ctx, goals.ListFilter{Limit: 1})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Infow("organization already seeded", "slug", s.slug)
		return nil
	}

	for _, o := range s.objectives {
		obj, err := svc.CreateObjective(ctx, goals.NewObjective{Title: o.title, Period: "2026-Q4"})
		if err != nil {
			return fmt.Errorf("objective %q: %w", o.title, err)
		}
		for _, k := range o.keyResults {
			if err := seedKeyResult(ctx, svc, obj.ID, k); err != nil {
				return err
			}
		}
	}

	log.Infow("organization seeded", "slug", s.slug, "org_id", org.ID, "member", member.Email, "member_id", member.ID)
	return nil
}

func seedKeyResult(ctx context.Context, svc *goals.Service, objectiveID uuid.UUID, k keyResultSeed) error {
	kr, err := svc.CreateKeyResult(ctx, objectiveID, goals.NewKeyResult{
		Title:       k.title,
		Unit:        k.unit,
		StartValue:  decimal.NewFromInt(k.start),
		TargetValue: decimal.NewFromInt(k.target),
	})
	if err != nil {
		return fmt.Errorf("key result %q: %w", k.title, err)
	}
	for _, v := range k.checkIns {
		if _, err := svc.CreateCheckIn(ctx, kr.ID, goals.NewCheckIn{Value: decimal.NewFromInt(v)}); err != nil {
			return fmt.Errorf("check-in for %q: %w", k.title, err)
		}
	}
	return nil
}
