package permission

import (
	"context"
	"sync"
)

// MemorySource is an in-memory grant store useful for tests and local development.
// It is not intended for production use.
type MemorySource struct {
	mu     sync.RWMutex
	grants map[Key]struct{}
	err    error
}

func NewMemorySource() *MemorySource {
	return &MemorySource{grants: make(map[Key]struct{})}
}

func (s *MemorySource) HasPermission(ctx context.Context, k Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return false, s.err
	}
	_, ok := s.grants[k]
	return ok, nil
}

func (s *MemorySource) Grant(_ context.Context, k Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[k] = struct{}{}
	return nil
}

func (s *MemorySource) Revoke(_ context.Context, k Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, k)
	return nil
}

// SetError makes every subsequent lookup fail with err until cleared with nil.
func (s *MemorySource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
