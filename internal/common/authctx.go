package common

import (
	"context"
	"strings"
)

type ctxKey string

const principalKey ctxKey = "auth/principal"

// Role names carried by access tokens.
const (
	RoleStudent = "student"
	RoleTutor   = "tutor"
	RoleAdmin   = "admin"
)

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	UserID string
	Role   string
}

// IsTutor reports whether the caller authenticated as a tutor.
func (p Principal) IsTutor() bool { return p.Role == RoleTutor }

// WithPrincipal stores the authenticated caller on the provided context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	p.UserID = strings.TrimSpace(p.UserID)
	if p.Role == "" {
		p.Role = RoleStudent
	}
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the authenticated caller from the context if present.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok || p.UserID == "" {
		return Principal{}, false
	}
	return p, true
}

// WithUserID stores a student principal with the given identifier.
func WithUserID(ctx context.Context, id string) context.Context {
	return WithPrincipal(ctx, Principal{UserID: id, Role: RoleStudent})
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return "", false
	}
	return p.UserID, true
}
