package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestService_AppendRequiresTenantAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{TenantID: 1, Type: "routing_override"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent for unknown type, got %v", err)
	}
	if err := svc.Append(context.Background(), Event{Type: EventTypeAccessDenied}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected invalid event, got %v", err)
	}
	if err := svc.Append(context.Background(), Event{TenantID: 1}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected invalid event, got %v", err)
	}
}

func TestService_LogDenied(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogDenied(context.Background(), 1, 2, "STAFF", "PAYMENT", "DELETE", "1.2.3.4"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	e := evs[0]
	if e.Type != EventTypeAccessDenied || e.Resource != "PAYMENT" || e.Action != "DELETE" || e.IPAddress != "1.2.3.4" {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be filled")
	}
}

func TestService_LogEvaluationFailedKeepsCause(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	_ = svc.LogEvaluationFailed(context.Background(), 1, 2, "STAFF", "STUDENT", "READ", "", errors.New("db down"))
	evs := repo.Events()
	if len(evs) != 1 || evs[0].Message != "permission evaluation failed: db down" {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

func TestService_ListIsTenantScopedNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, tenant := range []int64{1, 2, 1, 1} {
		e := Event{TenantID: tenant, Type: EventTypeAccessDenied, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := svc.Append(context.Background(), e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	evs, err := svc.List(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if !evs[0].CreatedAt.After(evs[1].CreatedAt) {
		t.Fatalf("expected newest first: %+v", evs)
	}
	for _, e := range evs {
		if e.TenantID != 1 {
			t.Fatalf("leaked event of tenant %d", e.TenantID)
		}
	}

	if _, err := svc.List(context.Background(), 0, 10); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected invalid tenant error, got %v", err)
	}
}
