package auth

import "context"

type Role string

const (
	RoleUser         Role = "USER"
	RoleCanteenOwner Role = "CANTEEN_OWNER"
	RoleAdmin        Role = "ADMIN"
)

// Identity is the authenticated caller as resolved by the upstream
// gateway. This service trusts it without re-authenticating.
type Identity struct {
	UserID string
	Name   string
	Email  string
	Phone  string
	Role   Role
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
