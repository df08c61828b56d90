package permission

import (
	"context"
	"errors"
)

// GrantWriter is the management side of a grant store.
type GrantWriter interface {
	Grant(ctx context.Context, k Key) error
	Revoke(ctx context.Context, k Key) error
}

// Manager applies grant changes and keeps the decision cache coherent.
// This service only reads grants (PostgresSource has no write side), so the
// API process does not build a Manager. It is the hook for whichever
// component owns grant writes: it must call Grant/Revoke here, or invoke
// Cache.Invalidate itself, for changes to become visible.
type Manager struct {
	store GrantWriter
	cache Cache
}

func NewManager(store GrantWriter, cache Cache) *Manager {
	return &Manager{store: store, cache: cache}
}

func (m *Manager) Grant(ctx context.Context, k Key) error {
	if err := validateKey(k); err != nil {
		return err
	}
	if err := m.store.Grant(ctx, k); err != nil {
		return err
	}
	return m.cache.Invalidate(ctx, k.UserID, k.TenantID)
}

func (m *Manager) Revoke(ctx context.Context, k Key) error {
	if err := validateKey(k); err != nil {
		return err
	}
	if err := m.store.Revoke(ctx, k); err != nil {
		return err
	}
	return m.cache.Invalidate(ctx, k.UserID, k.TenantID)
}

func validateKey(k Key) error {
	if k.UserID <= 0 || k.TenantID <= 0 || k.Resource == "" || k.Action == "" {
		return errors.New("permission: user_id, tenant_id, resource, action required")
	}
	return nil
}
