package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
	// ListByTenant returns the newest events first.
	ListByTenant(ctx context.Context, tenantID int64, limit int) ([]Event, error)
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Service records internal audit information about authorization decisions.
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID <= 0 || !e.Type.Valid() {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogDenied records a non-bypassed authorization denial.
func (s *Service) LogDenied(ctx context.Context, tenantID, userID int64, role, resource, action, ip string) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeAccessDenied,
		ActorUserID: userID,
		ActorRole:   role,
		IPAddress:   ip,
		Resource:    resource,
		Action:      action,
		Message:     "permission denied",
	})
}

// LogEvaluationFailed records an authorization check that failed closed.
func (s *Service) LogEvaluationFailed(ctx context.Context, tenantID, userID int64, role, resource, action, ip string, cause error) error {
	msg := "permission evaluation failed"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeEvaluationFailed,
		ActorUserID: userID,
		ActorRole:   role,
		IPAddress:   ip,
		Resource:    resource,
		Action:      action,
		Message:     msg,
	})
}

// List returns the most recent events of a tenant. limit is clamped to
// (0, MaxListLimit]; zero selects DefaultListLimit.
func (s *Service) List(ctx context.Context, tenantID int64, limit int) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if tenantID <= 0 {
		return nil, ErrInvalidEvent
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return s.repo.ListByTenant(ctx, tenantID, limit)
}
