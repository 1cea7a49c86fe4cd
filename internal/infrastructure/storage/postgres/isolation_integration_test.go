//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"okrtrack/internal/core/apperror"
	"okrtrack/internal/core/policy"
	"okrtrack/internal/core/tenant"
	"okrtrack/internal/domain/goals"
	"okrtrack/internal/infrastructure/storage/postgres"
	"okrtrack/internal/infrastructure/storage/postgres/goal_repo"
	"okrtrack/internal/infrastructure/storage/postgres/rls"
	"okrtrack/pkg/logger"
)

const (
	testDBUser     = "postgres"
	testDBPassword = "postgres"
	testDBName     = "okrtrack_test"
	requestRole    = "okr_request"
	requestPass    = "request"
)

type world struct {
	admin   *postgres.Pool
	request *postgres.Pool
	txm     *postgres.TxManager
	svc     *goals.Service
	log     *logger.Logger

	acme, globex *tenant.User
	root         *tenant.User
}

// setupPostgres starts a database, installs the schema and policies as the
// superuser, and connects a second pool as a plain member of okrtrack_app.
func setupPostgres(t *testing.T) (*world, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     testDBUser,
			"POSTGRES_PASSWORD": testDBPassword,
			"POSTGRES_DB":       testDBName,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := func(user, pass string) string {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port.Port(), testDBName)
	}

	log, err := logger.New(logger.Config{Level: "error", Development: true})
	require.NoError(t, err)

	admin, err := postgres.NewAdminPool(ctx, dsn(testDBUser, testDBPassword))
	require.NoError(t, err)
	require.NoError(t, postgres.Migrate(ctx, admin, log))
	require.NoError(t, rls.NewInstaller(admin, policy.Default(), log).Apply(ctx))

	_, err = admin.Exec(ctx, fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD '%s' IN ROLE okrtrack_app", requestRole, requestPass))
	require.NoError(t, err)

	cfg := postgres.DefaultPoolConfig(dsn(requestRole, requestPass))
	cfg.MaxConns = 4
	request, err := postgres.NewPool(ctx, cfg)
	require.NoError(t, err)

	txm := postgres.NewTxManager(request)
	w := &world{
		admin:   admin,
		request: request,
		txm:     txm,
		svc:     goals.NewService(goal_repo.New(txm), txm),
		log:     log,
	}

	dir := postgres.NewDirectory(postgres.NewTxManager(admin))
	acmeOrg, err := dir.CreateOrganization(ctx, "acme", "Acme", "team")
	require.NoError(t, err)
	globexOrg, err := dir.CreateOrganization(ctx, "globex", "Globex", "free")
	require.NoError(t, err)

	w.acme, err = dir.CreateUser(ctx, "ann@acme.test", "Ann", &acmeOrg.ID, false)
	require.NoError(t, err)
	w.globex, err = dir.CreateUser(ctx, "gus@globex.test", "Gus", &globexOrg.ID, false)
	require.NoError(t, err)
	w.root, err = dir.CreateUser(ctx, "root@okrtrack.test", "Root", nil, true)
	require.NoError(t, err)

	cleanup := func() {
		request.Close()
		admin.Close()
		_ = container.Terminate(ctx)
	}
	return w, cleanup
}

func (w *world) as(t *testing.T, u *tenant.User) context.Context {
	t.Helper()
	scope, err := u.Scope()
	require.NoError(t, err)
	return tenant.WithScope(context.Background(), scope)
}

func (w *world) objective(t *testing.T, u *tenant.User, title string) (*goals.Objective, *goals.KeyResult) {
	t.Helper()
	ctx := w.as(t, u)

	obj, err := w.svc.CreateObjective(ctx, goals.NewObjective{Title: title, Period: "2026-Q4"})
	require.NoError(t, err)
	kr, err := w.svc.CreateKeyResult(ctx, obj.ID, goals.NewKeyResult{
		Title:       title + " metric",
		Unit:        "%",
		StartValue:  decimal.Zero,
		TargetValue: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	_, err = w.svc.CreateCheckIn(ctx, kr.ID, goals.NewCheckIn{Value: decimal.NewFromInt(10)})
	require.NoError(t, err)
	return obj, kr
}

func titles(objs []*goals.Objective) []string {
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.Title)
	}
	return out
}

func TestIsolation_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	w, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, postgres.CheckRequestRole(ctx, w.request))
	assert.ErrorIs(t, postgres.CheckRequestRole(ctx, w.admin), postgres.ErrBypassesRLS)

	acmeObj, acmeKR := w.objective(t, w.acme, "Acme growth")
	globexObj, globexKR := w.objective(t, w.globex, "Globex growth")

	t.Run("tenants see only their rows", func(t *testing.T) {
		got, err := w.svc.ListObjectives(w.as(t, w.acme), goals.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"Acme growth"}, titles(got))

		got, err = w.svc.ListObjectives(w.as(t, w.globex), goals.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"Globex growth"}, titles(got))
	})

	t.Run("chained tables are hidden", func(t *testing.T) {
		ctx := w.as(t, w.acme)

		_, err := w.svc.GetObjective(ctx, globexObj.ID)
		assert.ErrorIs(t, err, goals.ErrNotFound)

		_, err = w.svc.ListKeyResults(ctx, globexObj.ID)
		assert.ErrorIs(t, err, goals.ErrNotFound)

		checkIns, err := w.svc.ListCheckIns(ctx, globexKR.ID, goals.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, checkIns)

		krs, err := w.svc.ListKeyResults(ctx, acmeObj.ID)
		require.NoError(t, err)
		require.Len(t, krs, 1)
		assert.Equal(t, acmeKR.ID, krs[0].ID)
		assert.True(t, krs[0].CurrentValue.Equal(decimal.NewFromInt(10)))
	})

	t.Run("cross-tenant writes look like missing rows", func(t *testing.T) {
		ctx := w.as(t, w.acme)

		_, err := w.svc.CreateKeyResult(ctx, globexObj.ID, goals.NewKeyResult{
			Title: "sneaky", StartValue: decimal.Zero, TargetValue: decimal.NewFromInt(1),
		})
		assert.ErrorIs(t, err, goals.ErrNotFound)

		_, err = w.svc.CreateCheckIn(ctx, globexKR.ID, goals.NewCheckIn{Value: decimal.NewFromInt(99)})
		assert.ErrorIs(t, err, goals.ErrNotFound)

		krs, err := w.svc.ListKeyResults(w.as(t, w.globex), globexObj.ID)
		require.NoError(t, err)
		require.Len(t, krs, 1)
		assert.True(t, krs[0].CurrentValue.Equal(decimal.NewFromInt(10)), "globex value untouched")
	})

	t.Run("no scope sees nothing", func(t *testing.T) {
		got, err := w.svc.ListObjectives(ctx, goals.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, got)

		var n int
		require.NoError(t, w.request.QueryRow(ctx, "SELECT count(*) FROM users").Scan(&n))
		assert.Zero(t, n)

		require.NoError(t, w.request.QueryRow(ctx, "SELECT count(*) FROM plans").Scan(&n))
		assert.Positive(t, n, "plans are readable without scope")
	})

	t.Run("system owner sees every tenant", func(t *testing.T) {
		got, err := w.svc.ListObjectives(w.as(t, w.root), goals.ListFilter{})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"Acme growth", "Globex growth"}, titles(got))
	})

	t.Run("system owner on an organization route acts as that tenant", func(t *testing.T) {
		scope, err := w.root.Scope()
		require.NoError(t, err)
		store := tenant.NewStore()
		require.NoError(t, store.Set(scope))
		defer store.Clear()

		dir := postgres.NewDirectory(w.txm)
		_, err = tenant.NewResolver(dir, dir).Resolve(ctx, "globex", store)
		require.NoError(t, err)
		octx := tenant.WithStore(ctx, store)

		got, err := w.svc.ListObjectives(octx, goals.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"Globex growth"}, titles(got))

		_, err = w.svc.GetObjective(octx, acmeObj.ID)
		assert.ErrorIs(t, err, goals.ErrNotFound)

		_, err = w.svc.CreateObjective(octx, goals.NewObjective{Title: "Orphan", Period: "2026-Q4"})
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.CodeForbidden, appErr.Code)

		kr, err := w.svc.CreateKeyResult(octx, globexObj.ID, goals.NewKeyResult{
			Title: "Support", StartValue: decimal.Zero, TargetValue: decimal.NewFromInt(5),
		})
		require.NoError(t, err)
		assert.Equal(t, globexObj.ID, kr.ObjectiveID)

		_, err = w.svc.CreateKeyResult(octx, acmeObj.ID, goals.NewKeyResult{
			Title: "sneaky", StartValue: decimal.Zero, TargetValue: decimal.NewFromInt(1),
		})
		assert.ErrorIs(t, err, goals.ErrNotFound)

		var orphans int
		require.NoError(t, w.admin.QueryRow(ctx,
			"SELECT count(*) FROM objectives o JOIN users u ON u.id = o.owner_id WHERE u.organization_id IS NULL").Scan(&orphans))
		assert.Zero(t, orphans)
	})

	t.Run("only the system owner writes plans", func(t *testing.T) {
		insert := func(ctx context.Context) error {
			return w.txm.RunInTransaction(ctx, func(ctx context.Context) error {
				_, err := w.txm.GetQuerier(ctx).Exec(ctx,
					"INSERT INTO plans (id, name, max_objectives) VALUES ($1, $1, 1)", "plan-"+uuid.NewString()[:8])
				return postgres.MapError(err)
			})
		}
		err := insert(w.as(t, w.acme))
		assert.ErrorIs(t, err, postgres.ErrPolicyViolation)

		assert.NoError(t, insert(w.as(t, w.root)))
	})

	t.Run("scoped session is cleared before reuse", func(t *testing.T) {
		acmeOrgID := *w.acme.OrganizationID
		err := postgres.WithScope(ctx, w.request, tenant.ForOrganization(acmeOrgID),
			func(ctx context.Context, q postgres.Querier) error {
				assert.True(t, w.request.Guard().Stats().Marked > 0)

				var org string
				if err := q.QueryRow(ctx, "SELECT current_setting('app.current_organization_id', true)").Scan(&org); err != nil {
					return err
				}
				assert.Equal(t, acmeOrgID.String(), org)

				stale, err := w.svc.StaleKeyResults(ctx, acmeKR.CreatedAt.AddDate(1, 0, 0))
				if err != nil {
					return err
				}
				require.Len(t, stale, 1)
				assert.Equal(t, acmeKR.ID, stale[0].ID)
				return nil
			})
		require.NoError(t, err)

		stats := w.request.Guard().Stats()
		assert.Zero(t, stats.Marked)
		assert.True(t, stats.Healthy())

		// Every pooled connection must come back without tenant context.
		for i := 0; i < 4; i++ {
			var org string
			require.NoError(t, w.request.QueryRow(ctx,
				"SELECT coalesce(current_setting('app.current_organization_id', true), '')").Scan(&org))
			assert.Empty(t, org)
		}
	})

	t.Run("panic inside a transaction releases the connection", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = w.txm.RunInTransaction(w.as(t, w.acme), func(ctx context.Context) error {
				if _, err := w.txm.GetQuerier(ctx).Exec(ctx, "SELECT 1"); err != nil {
					return err
				}
				panic("handler bug")
			})
		})
		assert.Zero(t, w.request.Stat().AcquiredConns())

		got, err := w.svc.ListObjectives(w.as(t, w.acme), goals.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"Acme growth"}, titles(got))
	})

	t.Run("status and reset", func(t *testing.T) {
		inst := rls.NewInstaller(w.admin, policy.Default(), w.log)

		st, err := rls.ReadStatus(ctx, w.request, policy.Default())
		require.NoError(t, err)
		assert.True(t, st.OK(), st.String())

		require.NoError(t, inst.Apply(ctx), "apply is idempotent")

		report := inst.Reset(ctx)
		require.True(t, report.OK(), report.Err())

		st, err = inst.Status(ctx)
		require.NoError(t, err)
		assert.False(t, st.OK())
		assert.ElementsMatch(t, policy.Default().PolicyNames(), st.Missing)

		require.NoError(t, inst.Apply(ctx))
		st, err = inst.Status(ctx)
		require.NoError(t, err)
		assert.True(t, st.OK(), st.String())
	})
}
