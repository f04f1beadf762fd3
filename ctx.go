package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}
var claimsCtxKey = &contextKey{"claims"}
var rawTokenCtxKey = &contextKey{"raw_token"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// WithRawTokenContext attaches the presented token string to the context.
// The raw token lives only for the request; it is never persisted. Logout
// and audit logging are the intended consumers.
func WithRawTokenContext(r context.Context, token string) context.Context {
	return context.WithValue(r, rawTokenCtxKey, token)
}

// GetRawToken extracts the presented token string from the standard context
func GetRawToken(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(rawTokenCtxKey).(string)
	return raw, ok
}

// GetRouterClaims extracts the AuthClaims from the router context
func GetRouterClaims(ctx router.Context, key string) (AuthClaims, bool) {
	if key == "" {
		key = "user" // Default key used by the session middleware
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(AuthClaims)
	return claims, ok
}

// HasRole is a convenience check against the claims in the standard context
func HasRole(ctx context.Context, role UserRole) bool {
	claims, ok := GetClaims(ctx)
	if !ok {
		return false
	}
	return claims.HasRole(string(role))
}

// IsStaff reports whether the context identity carries the staff role
func IsStaff(ctx context.Context) bool {
	return HasRole(ctx, RoleStaff)
}
