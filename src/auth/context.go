package auth

import (
	"context"
)

type contextKey string

const PrincipalKey contextKey = "principal"

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleWebhook  = "webhook"
)

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	Name string
	Role string
}

func GetPrincipalFromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(PrincipalKey).(*Principal)
	return principal, ok
}

func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}
