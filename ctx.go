package buildtracker

import (
	"context"

	"github.com/goliatone/go-router"
)

var identityCtxKey = &contextKey{"identity"}
var accessTokenCtxKey = &contextKey{"access_token"}

type contextKey struct {
	name string
}

const (
	// IdentityLocalsKey holds the request Identity in router locals
	IdentityLocalsKey = "current_identity"
	// UserIDLocalsKey holds the identity id, the CSRF middleware binds tokens to it
	UserIDLocalsKey = "user_id"
)

// WithIdentity sets the resolved identity in the given context
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the identity resolved for this request.
// Use it for display only, mutations go through OwnershipGuard.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityCtxKey).(Identity)
	return identity, ok
}

// WithAccessToken sets the raw access token in the given context
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenCtxKey, token)
}

// AccessTokenFromContext returns the access token set by the session middleware
func AccessTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenCtxKey).(string)
	return token, ok
}

// GetRouterIdentity returns the identity stored in router locals, or
// Unauthenticated when the session middleware did not run.
func GetRouterIdentity(c router.Context) Identity {
	raw := c.Locals(IdentityLocalsKey)
	if raw == nil {
		return Unauthenticated()
	}
	switch identity := raw.(type) {
	case Identity:
		return identity
	case *Identity:
		if identity != nil {
			return *identity
		}
	}
	return Unauthenticated()
}
