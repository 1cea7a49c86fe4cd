package policy

import (
	"errors"
	"fmt"
)

// ErrUnresolved is returned by Derive when a hop points at a missing row or a
// row has no tenant value.
var ErrUnresolved = errors.New("tenant not resolvable")

// Row is a stored row keyed by column name.
type Row map[string]any

// LookupFunc finds the row of table whose column equals value.
type LookupFunc func(table, column string, value any) (Row, bool)

// Derive walks the rule's ownership chain starting at row and returns the
// value of the tenant column it ends on. It mirrors what the derivation
// function and predicate compute inside the database.
func (r Rule) Derive(row Row, lookup LookupFunc) (any, error) {
	switch r.Kind {
	case Direct:
		v, ok := row[r.TenantColumn]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: %s.%s is empty", ErrUnresolved, r.Table, r.TenantColumn)
		}
		return v, nil
	case Chained:
		if len(r.Chain) > MaxChainDepth {
			return nil, fmt.Errorf("%w: %s", ErrChainTooDeep, r.Table)
		}
		cur := row
		for _, h := range r.Chain {
			ref, ok := cur[h.Column]
			if !ok || ref == nil {
				return nil, fmt.Errorf("%w: %s has no %s", ErrUnresolved, r.Table, h.Column)
			}
			next, found := lookup(h.RefTable, h.RefColumn, ref)
			if !found {
				return nil, fmt.Errorf("%w: %s.%s = %v not found", ErrUnresolved, h.RefTable, h.RefColumn, ref)
			}
			cur = next
		}
		v, ok := cur[r.TenantColumn]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: %s ends without %s", ErrUnresolved, r.Table, r.TenantColumn)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %s is not tenant-scoped", ErrUnresolved, r.Table)
	}
}

// Visible evaluates the predicate in memory: a system owner sees every row,
// anyone else sees rows whose derived tenant equals org. Exempt rows are
// always readable. Rows whose tenant cannot be resolved are hidden.
func (r Rule) Visible(row Row, lookup LookupFunc, org any, systemOwner bool) bool {
	if r.Kind == Exempt || systemOwner {
		return true
	}
	if org == nil {
		return false
	}
	tenant, err := r.Derive(row, lookup)
	if err != nil {
		return false
	}
	return tenant == org
}
