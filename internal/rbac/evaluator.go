package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"maru-platform/internal/auth"
	"maru-platform/internal/permission"
	"maru-platform/pkg/metrics"
)

var (
	ErrUnauthenticated     = errors.New("rbac: unauthenticated")
	ErrAuthorizationDenied = errors.New("rbac: authorization denied")
	ErrMalformedPermission = errors.New("rbac: permission string misconfigured")
)

// DefaultAuditTimeout bounds each audit write made on the request path.
const DefaultAuditTimeout = 2 * time.Second

// AuditLogger records denials and failed evaluations. Best-effort.
type AuditLogger interface {
	LogDenied(ctx context.Context, tenantID, userID int64, role, resource, action, ip string) error
	LogEvaluationFailed(ctx context.Context, tenantID, userID int64, role, resource, action, ip string, cause error) error
}

// Evaluator decides whether an identity may perform RESOURCE:ACTION.
//
// Rules:
// - unauthenticated identities are denied
// - unrestricted roles (OWNER) are allowed without consulting the cache
// - everyone else gets exactly what the permission cache answers
// - any failure denies
type Evaluator struct {
	cache        permission.Cache
	audit        AuditLogger
	auditTimeout time.Duration
	log          *slog.Logger
	metrics      *metrics.Metrics
}

func NewEvaluator(cache permission.Cache, audit AuditLogger, log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{cache: cache, audit: audit, auditTimeout: DefaultAuditTimeout, log: log}
}

// WithAuditTimeout overrides DefaultAuditTimeout. Non-positive values are ignored.
func (e *Evaluator) WithAuditTimeout(d time.Duration) *Evaluator {
	if d > 0 {
		e.auditTimeout = d
	}
	return e
}

// WithMetrics records every decision outcome on m.
func (e *Evaluator) WithMetrics(m *metrics.Metrics) *Evaluator {
	e.metrics = m
	return e
}

// Evaluate reports whether id may perform perm. It never returns an error or panics.
func (e *Evaluator) Evaluate(ctx context.Context, id *auth.Identity, perm string) bool {
	return e.Check(ctx, id, perm) == nil
}

// Check is Evaluate with the reason for a denial.
func (e *Evaluator) Check(ctx context.Context, id *auth.Identity, perm string) (err error) {
	if id == nil || id.UserID <= 0 || id.TenantID <= 0 {
		e.log.WarnContext(ctx, "permission check without authenticated identity", "permission", perm)
		e.metrics.Decision(metrics.OutcomeDenied)
		return fmt.Errorf("%w: %w", ErrUnauthenticated, auth.ErrNoIdentity)
	}

	resource, action, perr := permission.Parse(perm)
	if perr != nil {
		e.log.ErrorContext(ctx, "permission string misconfigured",
			"permission", perm, "user_id", id.UserID, "tenant_id", id.TenantID)
		e.metrics.Decision(metrics.OutcomeMalformed)
		return fmt.Errorf("%w: %v", ErrMalformedPermission, perr)
	}

	attrs := []any{
		"user_id", id.UserID,
		"tenant_id", id.TenantID,
		"role", id.Role,
		"resource", resource,
		"action", action,
	}

	if role, ok := ParseRole(id.Role); ok && role.Unrestricted() {
		e.log.DebugContext(ctx, "unrestricted role access", attrs...)
		e.metrics.Decision(metrics.OutcomeBypass)
		return nil
	}

	defer func() {
		if p := recover(); p != nil {
			err = e.failed(ctx, id, resource, action, fmt.Errorf("panic: %v", p), attrs)
		}
	}()

	allowed, cerr := e.cache.HasPermission(ctx, permission.Key{
		UserID:   id.UserID,
		TenantID: id.TenantID,
		Resource: resource,
		Action:   action,
	})
	if cerr != nil {
		return e.failed(ctx, id, resource, action, cerr, attrs)
	}
	if !allowed {
		e.log.WarnContext(ctx, "permission denied", attrs...)
		e.metrics.Decision(metrics.OutcomeDenied)
		e.record(ctx, attrs, func(actx context.Context) error {
			return e.audit.LogDenied(actx, id.TenantID, id.UserID, id.Role, resource, action, auth.ClientIP(ctx))
		})
		return ErrAuthorizationDenied
	}
	e.metrics.Decision(metrics.OutcomeAllowed)
	return nil
}

func (e *Evaluator) failed(ctx context.Context, id *auth.Identity, resource, action string, cause error, attrs []any) error {
	e.log.ErrorContext(ctx, "permission evaluation failed", append(attrs, "err", cause)...)
	e.metrics.Decision(metrics.OutcomeError)
	e.record(ctx, attrs, func(actx context.Context) error {
		return e.audit.LogEvaluationFailed(actx, id.TenantID, id.UserID, id.Role, resource, action, auth.ClientIP(ctx), cause)
	})
	return fmt.Errorf("%w: %v", ErrAuthorizationDenied, cause)
}

// record runs one audit write detached from request cancellation and bounded
// by auditTimeout. Failures are logged and never change the decision.
func (e *Evaluator) record(ctx context.Context, attrs []any, write func(context.Context) error) {
	if e.audit == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.auditTimeout)
	defer cancel()
	if err := write(actx); err != nil {
		e.log.WarnContext(ctx, "audit write failed", append(attrs, "err", err)...)
	}
}
