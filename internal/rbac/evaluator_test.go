package rbac

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"maru-platform/internal/audit"
	"maru-platform/internal/auth"
	"maru-platform/internal/config"
	"maru-platform/internal/permission"
	"maru-platform/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spyCache struct {
	allow  bool
	err    error
	panics bool
	calls  atomic.Int64
}

func (s *spyCache) HasPermission(context.Context, permission.Key) (bool, error) {
	s.calls.Add(1)
	if s.panics {
		panic("cache exploded")
	}
	return s.allow, s.err
}

func (s *spyCache) Invalidate(context.Context, int64, int64) error { return nil }

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func staff() *auth.Identity {
	return &auth.Identity{UserID: 7, TenantID: 3, Role: string(RoleStaff)}
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("OWNER")
	require.True(t, ok)
	assert.True(t, r.Unrestricted())

	for _, s := range []string{"MANAGER", "STAFF", "INSTRUCTOR"} {
		r, ok := ParseRole(s)
		require.True(t, ok, s)
		assert.False(t, r.Unrestricted(), s)
	}

	_, ok = ParseRole("SUPERUSER")
	assert.False(t, ok)
	assert.False(t, Role("SUPERUSER").Unrestricted())
}

func TestEvaluate_OwnerBypassesCache(t *testing.T) {
	cache := &spyCache{}
	ev := NewEvaluator(cache, nil, nil)
	owner := &auth.Identity{UserID: 1, TenantID: 1, Role: "OWNER"}

	for _, perm := range []string{"PAYMENT:DELETE", "STUDENT:READ", "ANYTHING:AT_ALL"} {
		assert.True(t, ev.Evaluate(context.Background(), owner, perm), perm)
	}
	assert.Zero(t, cache.calls.Load())
}

func TestEvaluate_NonOwnerFollowsCache(t *testing.T) {
	for _, allow := range []bool{true, false} {
		cache := &spyCache{allow: allow}
		ev := NewEvaluator(cache, nil, nil)
		assert.Equal(t, allow, ev.Evaluate(context.Background(), staff(), "STUDENT:READ"))
		assert.Equal(t, int64(1), cache.calls.Load())
	}
}

func TestEvaluate_UnknownRoleHasNoBypass(t *testing.T) {
	cache := &spyCache{allow: false}
	ev := NewEvaluator(cache, nil, nil)
	id := &auth.Identity{UserID: 1, TenantID: 1, Role: "owner"}
	assert.False(t, ev.Evaluate(context.Background(), id, "STUDENT:READ"))
	assert.Equal(t, int64(1), cache.calls.Load())
}

func TestEvaluate_NilIdentityDenied(t *testing.T) {
	cache := &spyCache{allow: true}
	log, buf := bufferLogger()
	ev := NewEvaluator(cache, nil, log)

	assert.False(t, ev.Evaluate(context.Background(), nil, "STUDENT:READ"))
	assert.ErrorIs(t, ev.Check(context.Background(), nil, "STUDENT:READ"), ErrUnauthenticated)
	assert.Zero(t, cache.calls.Load())
	assert.Contains(t, buf.String(), "without authenticated identity")
}

func TestEvaluate_MalformedPermissionLogsConfigError(t *testing.T) {
	cache := &spyCache{allow: true}
	log, buf := bufferLogger()
	ev := NewEvaluator(cache, nil, log)

	assert.False(t, ev.Evaluate(context.Background(), staff(), "STUDENTREAD"))
	assert.Zero(t, cache.calls.Load())
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), "permission string misconfigured")
	assert.Contains(t, buf.String(), "STUDENTREAD")

	err := ev.Check(context.Background(), staff(), "A:B:C")
	assert.ErrorIs(t, err, ErrMalformedPermission)
}

func TestEvaluate_CacheFailureDeniesAndAudits(t *testing.T) {
	repo := audit.NewMemoryRepo()
	cache := &spyCache{err: permission.ErrSourceUnavailable}
	log, buf := bufferLogger()
	ev := NewEvaluator(cache, audit.NewService(repo), log)

	ctx := auth.WithClientIP(context.Background(), "10.0.0.9")
	err := ev.Check(ctx, staff(), "PAYMENT:READ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)

	out := buf.String()
	assert.Contains(t, out, "permission evaluation failed")
	assert.Contains(t, out, `"user_id":7`)
	assert.Contains(t, out, `"tenant_id":3`)
	assert.Contains(t, out, `"resource":"PAYMENT"`)
	assert.Contains(t, out, `"action":"READ"`)

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeEvaluationFailed, events[0].Type)
	assert.Equal(t, int64(3), events[0].TenantID)
	assert.Equal(t, "10.0.0.9", events[0].IPAddress)
}

func TestEvaluate_CachePanicDenies(t *testing.T) {
	cache := &spyCache{panics: true}
	log, buf := bufferLogger()
	ev := NewEvaluator(cache, nil, log)

	assert.NotPanics(t, func() {
		assert.False(t, ev.Evaluate(context.Background(), staff(), "PAYMENT:READ"))
	})
	assert.Contains(t, buf.String(), "cache exploded")
}

func TestEvaluate_DenialIsAudited(t *testing.T) {
	repo := audit.NewMemoryRepo()
	ev := NewEvaluator(&spyCache{allow: false}, audit.NewService(repo), nil)

	err := ev.Check(context.Background(), staff(), "PAYMENT:DELETE")
	assert.True(t, errors.Is(err, ErrAuthorizationDenied))

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeAccessDenied, events[0].Type)
	assert.Equal(t, "PAYMENT", events[0].Resource)
	assert.Equal(t, "DELETE", events[0].Action)
	assert.Equal(t, "STAFF", events[0].ActorRole)
}

func TestEvaluate_OwnerAndStaffWithIssuedTokens(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       secret,
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	src := permission.NewMemorySource()
	cache := permission.NewMemoryCache(src, permission.MemoryCacheOptions{})
	ev := NewEvaluator(cache, nil, nil)

	dojang := int64(1)
	identityFor := func(role Role) *auth.Identity {
		now := time.Now()
		tok, err := m.Issue(now, auth.TokenTypeAccess, auth.Identity{UserID: 1, TenantID: 1, DojangID: &dojang, Role: string(role)}, time.Hour)
		require.NoError(t, err)
		claims, err := m.Verify(tok, auth.TokenTypeAccess, now)
		require.NoError(t, err)
		id, err := auth.IdentityFromClaims(claims)
		require.NoError(t, err)
		return &id
	}

	assert.True(t, ev.Evaluate(context.Background(), identityFor(RoleOwner), "PAYMENT:DELETE"))
	assert.False(t, ev.Evaluate(context.Background(), identityFor(RoleStaff), "PAYMENT:DELETE"))

	require.NoError(t, src.Grant(context.Background(), permission.Key{UserID: 1, TenantID: 1, Resource: "PAYMENT", Action: "DELETE"}))
	assert.True(t, ev.Evaluate(context.Background(), identityFor(RoleStaff), "PAYMENT:DELETE"))
}

func TestEvaluate_RecordsOutcomes(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry(), "test")
	ev := NewEvaluator(&spyCache{allow: false}, nil, nil).WithMetrics(m)
	owner := &auth.Identity{UserID: 1, TenantID: 1, Role: "OWNER"}

	ev.Evaluate(context.Background(), owner, "PAYMENT:DELETE")
	ev.Evaluate(context.Background(), staff(), "PAYMENT:DELETE")
	ev.Evaluate(context.Background(), staff(), "PAYMENTDELETE")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthzDecisions.WithLabelValues(metrics.OutcomeBypass)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthzDecisions.WithLabelValues(metrics.OutcomeDenied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthzDecisions.WithLabelValues(metrics.OutcomeMalformed)))
}

// stalledAudit blocks each write until its context is done.
type stalledAudit struct {
	errs chan error
}

func (a *stalledAudit) wait(ctx context.Context) error {
	<-ctx.Done()
	a.errs <- ctx.Err()
	return ctx.Err()
}

func (a *stalledAudit) LogDenied(ctx context.Context, _, _ int64, _, _, _, _ string) error {
	return a.wait(ctx)
}

func (a *stalledAudit) LogEvaluationFailed(ctx context.Context, _, _ int64, _, _, _, _ string, _ error) error {
	return a.wait(ctx)
}

func TestEvaluate_SlowAuditIsBounded(t *testing.T) {
	log, buf := bufferLogger()
	aud := &stalledAudit{errs: make(chan error, 2)}
	ev := NewEvaluator(&spyCache{allow: false}, aud, log).WithAuditTimeout(30 * time.Millisecond)

	start := time.Now()
	err := ev.Check(context.Background(), staff(), "STUDENT:READ")
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, <-aud.errs, context.DeadlineExceeded)
	assert.Contains(t, buf.String(), "audit write failed")

	ev = NewEvaluator(&spyCache{err: errors.New("db down")}, aud, log).WithAuditTimeout(30 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ev.Check(ctx, staff(), "STUDENT:READ"), ErrAuthorizationDenied)
	assert.ErrorIs(t, <-aud.errs, context.DeadlineExceeded, "cancelled request still gets its audit attempt")
}
