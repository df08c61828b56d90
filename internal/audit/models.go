package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - tenant_id is required for tenancy isolation.
// - audit is best-effort; do not block authorization decisions on audit failures.

type Event struct {
	ID       string `json:"id" db:"id"`
	TenantID int64  `json:"tenant_id" db:"tenant_id"`

	Type EventType `json:"type" db:"type"`

	ActorUserID int64  `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress is the resolved client IP when available.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	Resource string `json:"resource,omitempty" db:"resource"`
	Action   string `json:"action,omitempty" db:"action"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeAccessDenied     EventType = "access_denied"
	EventTypeEvaluationFailed EventType = "evaluation_failed"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeAccessDenied, EventTypeEvaluationFailed:
		return true
	default:
		return false
	}
}
