package tenant

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dgnsrekt/overlay-relay/internal/relay"
)

func newTestSQLite(t *testing.T) *SQLiteRegistry {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "tenants.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteUpsertAndResolve(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, relay.Tenant{ID: "t1", Username: "Alice", Code: "ABC", Active: true}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := s.ResolveCode(ctx, "ABC")
	if err != nil {
		t.Fatalf("ResolveCode failed: %v", err)
	}
	if got.ID != "t1" || got.Username != "Alice" || !got.Active {
		t.Errorf("unexpected tenant %+v", got)
	}

	got, err = s.ResolveTenant(ctx, "alice")
	if err != nil {
		t.Fatalf("ResolveTenant by username failed: %v", err)
	}
	if got.ID != "t1" {
		t.Errorf("expected t1, got %q", got.ID)
	}

	if err := s.Upsert(ctx, relay.Tenant{ID: "t1", Username: "Alice", Code: "DEF", Active: true}); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if _, err := s.ResolveCode(ctx, "ABC"); !errors.Is(err, relay.ErrTenantNotFound) {
		t.Errorf("old code should not resolve, got %v", err)
	}
}

func TestSQLiteResolvePrefersID(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_ = s.Upsert(ctx, relay.Tenant{ID: "x", Username: "other", Active: true})
	_ = s.Upsert(ctx, relay.Tenant{ID: "y", Username: "x", Active: true})

	got, err := s.ResolveTenant(ctx, "x")
	if err != nil {
		t.Fatalf("ResolveTenant failed: %v", err)
	}
	if got.ID != "x" {
		t.Errorf("expected id match to win, got %q", got.ID)
	}
}

func TestSQLiteSetActiveAndDelete(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_ = s.Upsert(ctx, relay.Tenant{ID: "t1", Username: "a", Code: "A", Active: true})
	if err := s.SetActive(ctx, "t1", false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	got, _ := s.ResolveTenant(ctx, "t1")
	if got.Active {
		t.Error("tenant should be inactive")
	}

	if err := s.SetActive(ctx, "missing", true); !errors.Is(err, relay.ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}

	if err := s.Delete(ctx, "t1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "t1"); !errors.Is(err, relay.ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound on second delete, got %v", err)
	}
}

func TestSQLiteList(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		if err := s.Upsert(ctx, relay.Tenant{ID: id, Username: id}); err != nil {
			t.Fatalf("Upsert %s failed: %v", id, err)
		}
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 3 || list[0].ID != "a" || list[2].ID != "c" {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestSQLiteUpsertRequiresIdentity(t *testing.T) {
	s := newTestSQLite(t)
	if err := s.Upsert(context.Background(), relay.Tenant{Code: "X"}); err == nil {
		t.Fatal("expected error for tenant without id or username")
	}
}
