// Package policy describes which tables are tenant-scoped and how a row's
// tenant is derived from stored data.
//
// The model is pure data. The installer in storage/postgres/rls turns it into
// row-level security policies; Derive interprets it in memory so the model can
// be tested without a database.
package policy

import (
	"errors"
	"fmt"
	"regexp"
)

// MaxChainDepth is the longest ownership chain a Chained rule may declare.
const MaxChainDepth = 3

var (
	// ErrInvalidRule is returned for a rule whose shape does not match its kind.
	ErrInvalidRule = errors.New("invalid policy rule")

	// ErrChainTooDeep is returned when an ownership chain exceeds MaxChainDepth.
	ErrChainTooDeep = errors.New("ownership chain too deep")
)

// identifiers in the model are interpolated into DDL, so they are limited
// to plain lower-case SQL names.
var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

func checkIdent(table, what, name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: %s: %s %q is not a plain identifier", ErrInvalidRule, table, what, name)
	}
	return nil
}

// Kind tells how a table's tenant is derived.
type Kind string

const (
	// Direct tables carry the organization column themselves.
	Direct Kind = "direct"

	// Chained tables reach their organization through foreign keys.
	Chained Kind = "chained"

	// Exempt tables have no owner. Anyone may read them, only a system
	// owner may write them.
	Exempt Kind = "exempt"
)

// Hop follows Column on the current table to RefTable.RefColumn.
type Hop struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Rule is the isolation rule for one table.
type Rule struct {
	Table string
	Kind  Kind

	// TenantColumn is the organization column: on Table itself for Direct
	// rules, on the last hop's RefTable for Chained rules.
	TenantColumn string

	// Chain is the ownership chain for Chained rules.
	Chain []Hop
}

// Model is the full set of isolation rules.
type Model struct {
	Rules []Rule
}

// Validate checks every rule. A model that fails validation must never be
// installed.
func (m Model) Validate() error {
	seen := make(map[string]struct{}, len(m.Rules))
	for _, r := range m.Rules {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, dup := seen[r.Table]; dup {
			return fmt.Errorf("%w: table %q declared twice", ErrInvalidRule, r.Table)
		}
		seen[r.Table] = struct{}{}
	}
	return nil
}

// Validate checks a single rule against its kind.
func (r Rule) Validate() error {
	if r.Table == "" {
		return fmt.Errorf("%w: empty table name", ErrInvalidRule)
	}
	if err := checkIdent(r.Table, "table", r.Table); err != nil {
		return err
	}
	if r.TenantColumn != "" {
		if err := checkIdent(r.Table, "tenant column", r.TenantColumn); err != nil {
			return err
		}
	}

	switch r.Kind {
	case Direct:
		if r.TenantColumn == "" {
			return fmt.Errorf("%w: %s: direct rule needs a tenant column", ErrInvalidRule, r.Table)
		}
		if len(r.Chain) > 0 {
			return fmt.Errorf("%w: %s: direct rule cannot declare a chain", ErrInvalidRule, r.Table)
		}
	case Chained:
		if r.TenantColumn == "" {
			return fmt.Errorf("%w: %s: chained rule needs a tenant column", ErrInvalidRule, r.Table)
		}
		if len(r.Chain) == 0 {
			return fmt.Errorf("%w: %s: chained rule needs at least one hop", ErrInvalidRule, r.Table)
		}
		if len(r.Chain) > MaxChainDepth {
			return fmt.Errorf("%w: %s has %d hops, max %d", ErrChainTooDeep, r.Table, len(r.Chain), MaxChainDepth)
		}
		for i, h := range r.Chain {
			if h.Column == "" || h.RefTable == "" || h.RefColumn == "" {
				return fmt.Errorf("%w: %s: hop %d is incomplete", ErrInvalidRule, r.Table, i)
			}
			for _, name := range []string{h.Column, h.RefTable, h.RefColumn} {
				if err := checkIdent(r.Table, "hop", name); err != nil {
					return err
				}
			}
			if h.RefTable == r.Table {
				return fmt.Errorf("%w: %s: hop %d points back at its own table", ErrInvalidRule, r.Table, i)
			}
		}
	case Exempt:
		if r.TenantColumn != "" || len(r.Chain) > 0 {
			return fmt.Errorf("%w: %s: exempt rule cannot derive a tenant", ErrInvalidRule, r.Table)
		}
	default:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidRule, r.Table, r.Kind)
	}
	return nil
}

// Protected reports whether rows of the table belong to an organization.
func (r Rule) Protected() bool {
	return r.Kind == Direct || r.Kind == Chained
}

// Rule returns the rule for a table.
func (m Model) Rule(table string) (Rule, bool) {
	for _, r := range m.Rules {
		if r.Table == table {
			return r, true
		}
	}
	return Rule{}, false
}

// Tables lists every table in the model, in declaration order.
func (m Model) Tables() []string {
	out := make([]string, 0, len(m.Rules))
	for _, r := range m.Rules {
		out = append(out, r.Table)
	}
	return out
}

// PolicyNames lists every policy name the installer attaches to the rule's
// table. Reset drops exactly these names.
func (r Rule) PolicyNames() []string {
	if r.Kind == Exempt {
		return []string{"tenant_public_read_" + r.Table, "tenant_owner_write_" + r.Table}
	}
	return []string{"tenant_isolation_" + r.Table}
}

// PolicyNames lists the policy names of every rule in the model.
func (m Model) PolicyNames() []string {
	var out []string
	for _, r := range m.Rules {
		out = append(out, r.PolicyNames()...)
	}
	return out
}

// DerivationFunction is the name of the SQL function that resolves a Chained
// row's tenant. Empty for other kinds.
func (r Rule) DerivationFunction() string {
	if r.Kind != Chained {
		return ""
	}
	return "tenant_of_" + r.Table
}
