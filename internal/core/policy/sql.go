package policy

import (
	"fmt"
	"strings"
)

// Names of the SQL functions that read the connection's tenant context.
const (
	FuncCurrentUser         = "app_current_user"
	FuncCurrentOrganization = "app_current_organization"
	FuncIsSystemOwner       = "app_is_system_owner"
)

// Session variables holding the tenant context.
const (
	SettingUserID         = "app.current_user_id"
	SettingOrganizationID = "app.current_organization_id"
	SettingIsSystemOwner  = "app.is_system_owner"
)

// Predicate is the USING / WITH CHECK expression for a protected table.
// Exempt tables get their own pair, see ReadPredicate and WritePredicate.
func (r Rule) Predicate() string {
	switch r.Kind {
	case Direct:
		return fmt.Sprintf("%s() OR %s = %s()", FuncIsSystemOwner, r.TenantColumn, FuncCurrentOrganization)
	case Chained:
		return fmt.Sprintf("%s() OR %s(%s) = %s()",
			FuncIsSystemOwner, r.DerivationFunction(), r.Chain[0].Column, FuncCurrentOrganization)
	default:
		return r.WritePredicate()
	}
}

// ReadPredicate is the SELECT predicate. Only exempt tables differ from
// Predicate.
func (r Rule) ReadPredicate() string {
	if r.Kind == Exempt {
		return "true"
	}
	return r.Predicate()
}

// WritePredicate guards writes to exempt tables.
func (r Rule) WritePredicate() string {
	return FuncIsSystemOwner + "()"
}

// DerivationQuery is the body of the derivation function: the tenant of the
// row referenced by $1 through the first hop.
//
//	SELECT t3.organization_id FROM key_results t1
//	JOIN objectives t2 ON t2.id = t1.objective_id
//	JOIN users t3 ON t3.id = t2.owner_id
//	WHERE t1.id = $1
func (r Rule) DerivationQuery() string {
	if r.Kind != Chained || len(r.Chain) == 0 {
		return ""
	}

	var b strings.Builder
	last := len(r.Chain)
	fmt.Fprintf(&b, "SELECT t%d.%s FROM %s t1", last, r.TenantColumn, r.Chain[0].RefTable)
	for i := 1; i < len(r.Chain); i++ {
		h := r.Chain[i]
		fmt.Fprintf(&b, " JOIN %s t%d ON t%d.%s = t%d.%s", h.RefTable, i+1, i+1, h.RefColumn, i, h.Column)
	}
	fmt.Fprintf(&b, " WHERE t1.%s = $1", r.Chain[0].RefColumn)
	return b.String()
}
