package auth

import "context"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is the verified actor attached to a request by the token
// middleware. A nil principal means the request is unauthenticated.
type Principal struct {
	ID       string
	Role     Role
	Username string
	FullName string
}

func (p *Principal) IsAdmin() bool { return p != nil && p.Role == RoleAdmin }

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKey{}).(*Principal)
	return p
}
