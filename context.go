package lattice

import (
	"context"

	"github.com/latticehq/lattice/identity"
)

type contextKey int

const claimsKey contextKey = iota

// WithClaims returns a context carrying verified identity claims.
func WithClaims(ctx context.Context, claims *identity.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext extracts verified claims stashed by WithClaims.
func ClaimsFromContext(ctx context.Context) (*identity.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*identity.Claims)

	return claims, ok && claims != nil
}
