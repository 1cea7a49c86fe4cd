package tenant

import (
	"context"
)

type storeKey struct{}

// WithStore attaches the request's Store to ctx.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeKey{}, s)
}

// StoreFromContext returns the Store attached to ctx, or nil.
func StoreFromContext(ctx context.Context) *Store {
	s, _ := ctx.Value(storeKey{}).(*Store)
	return s
}

// ScopeFromContext returns the active scope. There is no scope when ctx has
// no Store or its Store is not Set; callers must then act as nobody.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	s := StoreFromContext(ctx)
	if s == nil {
		return Scope{}, false
	}
	return s.Current()
}

// WithScope attaches a fresh Store already set to scope. Used by code
// running outside the HTTP middleware.
func WithScope(ctx context.Context, scope Scope) context.Context {
	s := NewStore()
	_ = s.Set(scope)
	return WithStore(ctx, s)
}
