package auth

import (
	"context"
	"time"

	"marketplace-orders/internal/models"
)

// Principal is the identity derived from a verified token. It is built once
// per request and only ever passed by value.
type Principal struct {
	UserID    int64
	Email     string
	Roles     models.Roles
	TokenID   string
	ExpiresAt time.Time
}

func (p Principal) HasRole(role models.Role) bool {
	return p.Roles.Has(role)
}

func (p Principal) HasAnyRole(roles ...models.Role) bool {
	for _, role := range roles {
		if p.Roles.Has(role) {
			return true
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal stores a copy of p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	roles := make(models.Roles, len(p.Roles))
	copy(roles, p.Roles)
	p.Roles = roles
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
