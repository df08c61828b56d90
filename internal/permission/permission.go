// Package permission answers and memoizes resource/action authorization lookups.
package permission

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSourceUnavailable wraps any failure of the underlying grant store.
	ErrSourceUnavailable = errors.New("permission: source unavailable")
	// ErrMalformed is returned for permission strings not of the form RESOURCE:ACTION.
	ErrMalformed = errors.New("permission: malformed permission string")
)

// Key identifies a single authorization question.
type Key struct {
	UserID   int64
	TenantID int64
	Resource string
	Action   string
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d:%s:%s", k.UserID, k.TenantID, k.Resource, k.Action)
}

// Parse splits "RESOURCE:ACTION" into its two non-empty parts.
func Parse(s string) (resource, action string, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return parts[0], parts[1], nil
}

// Source is the authoritative grant store.
// Implementations return an error when the store cannot be reached; they must
// not report false in that case.
type Source interface {
	HasPermission(ctx context.Context, k Key) (bool, error)
}

// Cache memoizes Source decisions.
//
// Only positive decisions are memoized. Invalidate must be called whenever
// grants change; implementations may clear more than the given user's entries.
type Cache interface {
	HasPermission(ctx context.Context, k Key) (bool, error)
	Invalidate(ctx context.Context, userID, tenantID int64) error
}

func sourceErr(k Key, err error) error {
	if errors.Is(err, ErrSourceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, k, err)
}
