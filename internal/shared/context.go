package shared

import "context"

// Principal describes the authenticated actor making an admin request.
type Principal struct {
	// UserID is the opaque identity key used for authorization checks.
	UserID string
	// TokenName labels the API token that authenticated the request.
	TokenName string
	// Super marks the bootstrap credential, which bypasses permission checks.
	Super bool
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
