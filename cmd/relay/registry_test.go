package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/dgnsrekt/overlay-relay/internal/config"
	"github.com/dgnsrekt/overlay-relay/internal/tenant"
)

func TestOpenTenantsStatic(t *testing.T) {
	source, err := openTenants(context.Background(), config.TenantsConfig{
		Source: config.TenantSourceStatic,
		Static: []config.StaticTenant{{ID: "t1", Username: "alice", Code: "ABC", Active: true}},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("openTenants failed: %v", err)
	}
	defer source.close()

	if source.reload != nil {
		t.Error("static source should not be reloadable")
	}
	got, err := source.registry.ResolveCode(context.Background(), "ABC")
	if err != nil || got.ID != "t1" {
		t.Errorf("expected t1, got %+v, %v", got, err)
	}
}

func TestOpenTenantsFileReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.jsonl")
	if err := os.WriteFile(path, []byte(`{"id":"t1","code":"ONE","active":true}`+"\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	source, err := openTenants(context.Background(), config.TenantsConfig{
		Source: config.TenantSourceFile,
		File:   path,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("openTenants failed: %v", err)
	}
	if source.reload == nil {
		t.Fatal("file source should be reloadable")
	}

	if err := os.WriteFile(path, []byte(`{"id":"t2","code":"TWO","active":true}`+"\n"), 0644); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}
	reg, err := source.reload(context.Background())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if _, err := reg.ResolveCode(context.Background(), "TWO"); err != nil {
		t.Errorf("expected reloaded code to resolve: %v", err)
	}
}

func TestOpenTenantsSQLite(t *testing.T) {
	source, err := openTenants(context.Background(), config.TenantsConfig{
		Source: config.TenantSourceSQLite,
		SQLite: filepath.Join(t.TempDir(), "tenants.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("openTenants failed: %v", err)
	}
	defer source.close()

	if _, ok := source.registry.(*tenant.SQLiteRegistry); !ok {
		t.Errorf("expected *tenant.SQLiteRegistry, got %T", source.registry)
	}
}

func TestOpenTenantsUnknownSource(t *testing.T) {
	if _, err := openTenants(context.Background(), config.TenantsConfig{Source: "ldap"}, zap.NewNop()); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestSetupLoggerLevel(t *testing.T) {
	l, err := setupLogger(false, &config.LoggingConfig{Level: "warn"})
	if err != nil {
		t.Fatalf("setupLogger failed: %v", err)
	}
	if l.Core().Enabled(zap.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !l.Core().Enabled(zap.WarnLevel) {
		t.Error("warn should be enabled")
	}
}
