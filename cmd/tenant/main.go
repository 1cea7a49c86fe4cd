// Package main provides the tenant isolation admin CLI.
// Usage: tenant install
//
//	tenant status
//	tenant create-org --slug acme --name "ACME Corp"
//	tenant token --user <user-uuid>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"okrtrack/internal/config"
	"okrtrack/internal/core/policy"
	"okrtrack/internal/domain/auth"
	"okrtrack/internal/infrastructure/storage/postgres"
	"okrtrack/internal/infrastructure/storage/postgres/rls"
	"okrtrack/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), mustLogger())

	switch os.Args[1] {
	case "install":
		installPolicies(ctx)
	case "reset":
		resetPolicies(ctx)
	case "status":
		policyStatus(ctx)
	case "create-org":
		createOrganization(ctx)
	case "create-user":
		createUser(ctx)
	case "list":
		listOrganizations(ctx)
	case "token":
		mintToken()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`okrtrack tenant isolation CLI

Usage:
  tenant <command> [options]

Commands:
  install      Migrate, reset and install row-level security policies
  reset        Drop every tenant policy and disable row security
  status       Compare attached policies with the isolation model
  create-org   Create an organization
  create-user  Create a user in an organization, or a system owner
  list         List organizations
  token        Mint a development bearer token for a user
  help         Show this help

Environment Variables:
  ADMIN_DATABASE_URL  Schema owner connection (falls back to DATABASE_URL)
  DATABASE_URL        Request role connection (required)
  JWT_SECRET          Token signing secret

Examples:
  tenant install
  tenant create-org --slug acme --name "ACME Corporation" --plan team
  tenant create-user --org acme --email ann@acme.test
  tenant create-user --email root@okrtrack.test --system-owner
  tenant token --user <user-uuid>`)
}

func mustConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func mustLogger() *logger.Logger {
	log, err := logger.New(logger.Config{Level: "warn", Development: true})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return log
}

func getAdminPool(ctx context.Context, cfg *config.Config) *postgres.Pool {
	pool, err := postgres.NewAdminPool(ctx, cfg.AdminDatabaseURL)
	if err != nil {
		fmt.Printf("Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	return pool
}

// flags parses "--name value" pairs and bare "--switch" flags.
func flags(args []string) map[string]string {
	out := make(map[string]string)
	for i := 0; i < len(args); i++ {
		if !strings.HasPrefix(args[i], "--") {
			continue
		}
		key := strings.TrimPrefix(args[i], "--")
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			out[key] = args[i+1]
			i++
		} else {
			out[key] = "true"
		}
	}
	return out
}

func installPolicies(ctx context.Context) {
	cfg := mustConfig()
	log := logger.FromContext(ctx)
	pool := getAdminPool(ctx, cfg)
	defer pool.Close()

	fmt.Println("Applying migrations...")
	if err := postgres.Migrate(ctx, pool, log); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Installing policies...")
	inst := rls.NewInstaller(pool, policy.Default(), log)
	if err := inst.Apply(ctx); err != nil {
		fmt.Printf("✗ %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ %d tables protected\n", len(policy.Default().Rules))
}

func resetPolicies(ctx context.Context) {
	cfg := mustConfig()
	pool := getAdminPool(ctx, cfg)
	defer pool.Close()

	report := rls.NewInstaller(pool, policy.Default(), logger.FromContext(ctx)).Reset(ctx)
	printResetReport(os.Stdout, report)
	if !report.OK() {
		fmt.Println("Reset incomplete: tables above still carry policies")
		os.Exit(1)
	}
	fmt.Println("WARNING: row-level security is now off. Run 'tenant install' before serving traffic.")
}

func policyStatus(ctx context.Context) {
	cfg := mustConfig()
	pool := getAdminPool(ctx, cfg)
	defer pool.Close()

	st, err := rls.NewInstaller(pool, policy.Default(), logger.FromContext(ctx)).Status(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("policies: %s\n", st)
	if !st.OK() {
		os.Exit(1)
	}
}

func createOrganization(ctx context.Context) {
	f := flags(os.Args[2:])
	slug, name, plan := f["slug"], f["name"], f["plan"]
	if slug == "" || name == "" {
		fmt.Println("Error: --slug and --name are required")
		fmt.Println("Usage: tenant create-org --slug <slug> --name <name> [--plan free|team|enterprise]")
		os.Exit(1)
	}
	if plan == "" {
		plan = "free"
	}

	cfg := mustConfig()
	pool := getAdminPool(ctx, cfg)
	defer pool.Close()

	dir := postgres.NewDirectory(postgres.NewTxManager(pool))
	org, err := dir.CreateOrganization(ctx, slug, name, plan)
	if err != nil {
		if errors.Is(err, postgres.ErrSlugTaken) {
			fmt.Printf("Error: slug '%s' is already taken\n", slug)
		} else {
			fmt.Printf("Error creating organization: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Printf("\n✓ Organization '%s' created\n", org.Slug)
	fmt.Printf("  ID:   %s\n", org.ID)
	fmt.Printf("  Plan: %s\n", plan)
}

func createUser(ctx context.Context) {
	f := flags(os.Args[2:])
	email, slug := f["email"], f["org"]
	owner := f["system-owner"] == "true"
	if email == "" || (slug == "" && !owner) {
		fmt.Println("Error: --email and one of --org or --system-owner are required")
		os.Exit(1)
	}

	cfg := mustConfig()
	pool := getAdminPool(ctx, cfg)
	defer pool.Close()

	dir := postgres.NewDirectory(postgres.NewTxManager(pool))

	var orgID *uuid.UUID
	if slug != "" {
		org, err := dir.GetBySlug(ctx, slug)
		if err != nil {
			fmt.Printf("Error: organization '%s': %v\n", slug, err)
			os.Exit(1)
		}
		orgID = &org.ID
	}

	u, err := dir.CreateUser(ctx, email, f["name"], orgID, owner)
	if err != nil {
		fmt.Printf("Error creating user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ User %s\n  ID: %s\n  System owner: %t\n", u.Email, u.ID, u.IsSystemOwner)
}

func listOrganizations(ctx context.Context) {
	cfg := mustConfig()
	pool := getAdminPool(ctx, cfg)
	defer pool.Close()

	orgs, err := postgres.NewDirectory(postgres.NewTxManager(pool)).ListOrganizations(ctx)
	if err != nil {
		fmt.Printf("Error listing organizations: %v\n", err)
		os.Exit(1)
	}
	if len(orgs) == 0 {
		fmt.Println("No organizations found")
		return
	}

	fmt.Printf("%-36s %-20s %-30s\n", "ID", "SLUG", "NAME")
	fmt.Println(strings.Repeat("-", 88))
	for _, o := range orgs {
		fmt.Printf("%-36s %-20s %-30s\n", o.ID, truncate(o.Slug, 20), truncate(o.Name, 30))
	}
}

func mintToken() {
	f := flags(os.Args[2:])
	userID, err := uuid.Parse(f["user"])
	if err != nil {
		fmt.Println("Usage: tenant token --user <user-uuid>")
		os.Exit(1)
	}

	cfg := mustConfig()
	jwtCfg := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtCfg.AccessTokenTTL = cfg.JWTTTL

	token, exp, err := auth.NewJWTService(jwtCfg).GenerateAccessToken(userID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format("2006-01-02 15:04:05 MST"))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func printResetReport(w io.Writer, report rls.ResetReport) {
	for _, t := range report.Tables {
		fmt.Fprintf(w, "  ✓ %s\n", t)
	}
	for _, t := range report.FailedTables() {
		fmt.Fprintf(w, "  ✗ %s: %v\n", t, report.Failures[t])
	}
	for _, t := range report.Skipped {
		fmt.Fprintf(w, "  - %s (missing)\n", t)
	}
}
