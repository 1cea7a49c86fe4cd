package rls

import (
	"fmt"

	"okrtrack/internal/core/policy"
)

// Statement is one DDL statement and the table it concerns. Table is empty
// for the shared context functions.
type Statement struct {
	Table string
	SQL   string
}

// contextFunctions read the session variables. An empty or missing setting
// reads as NULL, so a connection without context matches no tenant.
func contextFunctions() []Statement {
	return []Statement{
		{SQL: fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s() RETURNS uuid
LANGUAGE sql STABLE AS $fn$
	SELECT NULLIF(current_setting('%s', true), '')::uuid
$fn$`, policy.FuncCurrentUser, policy.SettingUserID)},
		{SQL: fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s() RETURNS uuid
LANGUAGE sql STABLE AS $fn$
	SELECT NULLIF(current_setting('%s', true), '')::uuid
$fn$`, policy.FuncCurrentOrganization, policy.SettingOrganizationID)},
		{SQL: fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s() RETURNS boolean
LANGUAGE sql STABLE AS $fn$
	SELECT COALESCE(NULLIF(current_setting('%s', true), '')::boolean, false)
$fn$`, policy.FuncIsSystemOwner, policy.SettingIsSystemOwner)},
	}
}

// InstallStatements lists, in order, every statement Install executes.
func InstallStatements(m policy.Model) []Statement {
	stmts := contextFunctions()

	for _, r := range m.Rules {
		if r.Kind != policy.Chained {
			continue
		}
		stmts = append(stmts, Statement{Table: r.Table, SQL: fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s(ref uuid) RETURNS uuid
LANGUAGE sql STABLE AS $fn$
	%s
$fn$`, r.DerivationFunction(), r.DerivationQuery())})
	}

	for _, r := range m.Rules {
		stmts = append(stmts,
			Statement{Table: r.Table, SQL: fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", r.Table)},
			Statement{Table: r.Table, SQL: fmt.Sprintf("ALTER TABLE %s FORCE ROW LEVEL SECURITY", r.Table)},
		)

		names := r.PolicyNames()
		if r.Kind == policy.Exempt {
			stmts = append(stmts,
				Statement{Table: r.Table, SQL: fmt.Sprintf(
					"CREATE POLICY %s ON %s FOR SELECT USING (%s)",
					names[0], r.Table, r.ReadPredicate())},
				Statement{Table: r.Table, SQL: fmt.Sprintf(
					"CREATE POLICY %s ON %s FOR ALL USING (%s) WITH CHECK (%s)",
					names[1], r.Table, r.WritePredicate(), r.WritePredicate())},
			)
			continue
		}

		pred := r.Predicate()
		stmts = append(stmts, Statement{Table: r.Table, SQL: fmt.Sprintf(
			"CREATE POLICY %s ON %s FOR ALL USING (%s) WITH CHECK (%s)",
			names[0], r.Table, pred, pred)})
	}

	return stmts
}

// ResetStatements lists the statements that retract one rule. Every drop is
// conditional, so running them twice is harmless.
func ResetStatements(r policy.Rule) []Statement {
	var stmts []Statement
	for _, name := range r.PolicyNames() {
		stmts = append(stmts, Statement{Table: r.Table,
			SQL: fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s", name, r.Table)})
	}
	if fn := r.DerivationFunction(); fn != "" {
		stmts = append(stmts, Statement{Table: r.Table,
			SQL: fmt.Sprintf("DROP FUNCTION IF EXISTS %s(uuid)", fn)})
	}
	stmts = append(stmts,
		Statement{Table: r.Table, SQL: fmt.Sprintf("ALTER TABLE %s NO FORCE ROW LEVEL SECURITY", r.Table)},
		Statement{Table: r.Table, SQL: fmt.Sprintf("ALTER TABLE %s DISABLE ROW LEVEL SECURITY", r.Table)},
	)
	return stmts
}
