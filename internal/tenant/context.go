// Package tenant binds the current tenant id to a request's context.
//
// A scope is opened once per request with Begin and released with the returned
// func, normally deferred around the whole request. Downstream code reads the
// tenant with Get without taking it as a parameter.
package tenant

import (
	"context"
	"sync"

	"maru-platform/pkg/logger"
)

type ctxKey struct{}

// holder is mutable so the id can be set after the scope's context has been
// handed to the rest of the pipeline.
type holder struct {
	mu       sync.RWMutex
	tenantID int64
	set      bool
}

// Begin opens a tenant scope on ctx. The release func clears the scope and is
// safe to call more than once.
func Begin(ctx context.Context) (context.Context, func()) {
	h := &holder{}
	ctx = context.WithValue(ctx, ctxKey{}, h)
	return ctx, func() { h.clear(ctx) }
}

// Set binds tenantID to the scope open on ctx.
// A non-positive id or a missing scope is logged and ignored.
func Set(ctx context.Context, tenantID int64) {
	if tenantID <= 0 {
		logger.From(ctx).Warn("tenant id absent, skipping tenant context")
		return
	}
	h := from(ctx)
	if h == nil {
		logger.From(ctx).Warn("no tenant scope open, skipping tenant context", "tenant_id", tenantID)
		return
	}
	h.mu.Lock()
	h.tenantID = tenantID
	h.set = true
	h.mu.Unlock()
	logger.From(ctx).Debug("tenant context set", "tenant_id", tenantID)
}

// Get returns the tenant bound to ctx, if any.
func Get(ctx context.Context) (int64, bool) {
	h := from(ctx)
	if h == nil {
		return 0, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tenantID, h.set
}

// Clear drops the tenant bound to ctx. Idempotent.
func Clear(ctx context.Context) {
	if h := from(ctx); h != nil {
		h.clear(ctx)
	}
}

func (h *holder) clear(ctx context.Context) {
	h.mu.Lock()
	prev, was := h.tenantID, h.set
	h.tenantID = 0
	h.set = false
	h.mu.Unlock()
	if was {
		logger.From(ctx).Debug("tenant context cleared", "tenant_id", prev)
	}
}

func from(ctx context.Context) *holder {
	h, _ := ctx.Value(ctxKey{}).(*holder)
	return h
}
