package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxIdentity ctxKey = iota
	ctxClientIP
)

// ErrNoIdentity reports a request with no authenticated principal.
var ErrNoIdentity = errors.New("auth: no identity in context")

// WithIdentity installs id as the authenticated principal of ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentity, &id)
}

// IdentityFrom returns the authenticated principal, or nil for anonymous requests.
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxIdentity).(*Identity)
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}

// WithClientIP attaches the resolved client address for audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxClientIP, ip)
}

func ClientIP(ctx context.Context) string {
	s, _ := ctx.Value(ctxClientIP).(string)
	return s
}
