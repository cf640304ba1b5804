package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pagination.Limit != 15 {
		t.Errorf("expected default limit 15, got %d", cfg.Pagination.Limit)
	}
	if cfg.Pagination.PageName != "page" {
		t.Errorf("expected default page name, got %q", cfg.Pagination.PageName)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
driver: sqlite
database: app.db
max_open_conns: 4
pagination:
  limit: 25
cache:
  prefix: users
  ttl: 2m
options:
  gorm:
    log_level: silent
`
	if err := os.WriteFile(filepath.Join(dir, "repository.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Driver != "sqlite" || cfg.Database != "app.db" || cfg.MaxOpenConns != 4 {
		t.Errorf("unexpected connection settings %+v", cfg)
	}
	if cfg.Pagination.Limit != 25 {
		t.Errorf("expected limit 25, got %d", cfg.Pagination.Limit)
	}
	if cfg.Cache.Prefix != "users" || cfg.Cache.TTL != 2*time.Minute {
		t.Errorf("unexpected cache settings %+v", cfg.Cache)
	}
	if cfg.ProviderOptions("gorm")["log_level"] != "silent" {
		t.Errorf("expected gorm options, got %v", cfg.Options)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("REPOSITORY_PAGINATION_LIMIT", "40")
	t.Setenv("REPOSITORY_DRIVER", "postgres")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pagination.Limit != 40 {
		t.Errorf("expected env limit 40, got %d", cfg.Pagination.Limit)
	}
	if cfg.Driver != "postgres" {
		t.Errorf("expected env driver, got %q", cfg.Driver)
	}
}

func TestLoadConfigRejectsNonPositiveLimit(t *testing.T) {
	t.Setenv("REPOSITORY_PAGINATION_LIMIT", "0")
	if _, err := LoadConfig(t.TempDir()); !IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestNewOptions(t *testing.T) {
	base := Options{Config: DefaultConfig()}
	o := NewOptions(base, WithPageLimit(30), WithEventHook(EventHookFunc(func(_ context.Context, _ Event) {})))

	if o.Logger == nil {
		t.Error("expected a no-op logger")
	}
	if o.Config.PageLimit() != 30 {
		t.Errorf("expected overridden limit, got %d", o.Config.PageLimit())
	}
	if base.Config.PageLimit() != 15 {
		t.Error("base options must not change")
	}
	if len(o.Hooks) != 1 || len(base.Hooks) != 0 {
		t.Error("hooks not applied independently")
	}
}
