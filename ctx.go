package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

var principalCtxKey = &contextKey{"principal"}

type contextKey struct {
	name string
}

// WithPrincipal sets the Principal in the given context
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, principal)
}

// PrincipalFromContext finds the principal in the context
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	raw, ok := ctx.Value(principalCtxKey).(*Principal)
	return raw, ok && raw != nil
}

// GetRouterPrincipal extracts the principal stored in the request locals under key
func GetRouterPrincipal(c router.Context, key string) (*Principal, bool) {
	if key == "" {
		key = DefaultPrincipalKey
	}
	raw, ok := c.Locals(key).(*Principal)
	return raw, ok && raw != nil
}
