package signin

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}
var principalCtxKey = &contextKey{"principal"}

type contextKey struct {
	name string
}

// LocalsUserKey is the router locals key holding the signed in user.
const LocalsUserKey = "signin.user"

// WithUser sets the signed in user in the given context.
func WithUser[U UserIdentity](ctx context.Context, user U) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// UserFromContext finds the signed in user in the context.
func UserFromContext[U UserIdentity](ctx context.Context) (U, bool) {
	raw, ok := ctx.Value(userCtxKey).(U)
	return raw, ok
}

// WithPrincipal sets the primary session principal in the given context.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, principal)
}

// PrincipalFromContext finds the principal in the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	raw, ok := ctx.Value(principalCtxKey).(*Principal)
	return raw, ok && raw != nil
}

// GetRouterUser extracts the signed in user from the router locals.
func GetRouterUser[U UserIdentity](ctx router.Context) (U, bool) {
	var zero U
	raw := ctx.Locals(LocalsUserKey)
	if raw == nil {
		return zero, false
	}
	user, ok := raw.(U)
	return user, ok
}

// HasRole reports whether the principal in ctx carries role.
func HasRole(ctx context.Context, role string) bool {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return false
	}
	return principal.HasClaim(ClaimRole, role)
}
