package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultIsValid(t *testing.T) {
	if err := NewDefault().Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
}

func TestMountConfig_Invalid(t *testing.T) {
	tests := []struct {
		Name   string
		Modify func(c *MountConfig)
		Err    string
	}{
		{Name: "zero ttl", Modify: func(c *MountConfig) { c.AttrTTL = 0 }, Err: "AttrTTL"},
		{Name: "zero workers", Modify: func(c *MountConfig) { c.Workers = 0 }, Err: "Workers"},
		{Name: "too many workers", Modify: func(c *MountConfig) { c.Workers = 1000 }, Err: "Workers"},
		{Name: "negative scan limit", Modify: func(c *MountConfig) { c.ScanLimit = -1 }, Err: "ScanLimit"},
		{Name: "negative refresh", Modify: func(c *MountConfig) { c.Refresh = -time.Second }, Err: "Refresh"},
		{Name: "allow other and root", Modify: func(c *MountConfig) { c.AllowOther, c.AllowRoot = true, true }, Err: "mutually exclusive"},
	}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			cfg := NewDefault()
			test.Modify(&cfg.Mount)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), test.Err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestDBPath(t *testing.T) {
	cfg := NewDefault()

	t.Setenv(EnvDB, "")
	if act := cfg.DBPath(); act != DefaultDBPath {
		t.Errorf("DBPath() = %q, want %q", act, DefaultDBPath)
	}

	t.Setenv(EnvDB, "/from/env.db")
	if act := cfg.DBPath(); act != "/from/env.db" {
		t.Errorf("DBPath() = %q, want env value", act)
	}

	cfg.DB = "/from/flag.db"
	if act := cfg.DBPath(); act != "/from/flag.db" {
		t.Errorf("DBPath() = %q, want explicit value", act)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("NOTES_DIR", "/srv/notes")

	fn := filepath.Join(t.TempDir(), "notefs.yaml")
	err := os.WriteFile(fn, []byte(`
db: ${NOTES_DIR}/document.db
mount:
  allow_root: true
  attr_ttl: 5s
  scan_limit: 10
  workers: 4
  refresh: 1m
`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	cfg := NewDefault()
	if err := Load(fn, cfg); err != nil {
		t.Fatal(err)
	}

	exp := &Config{
		DB: "/srv/notes/document.db",
		Mount: MountConfig{
			AllowRoot: true,
			AttrTTL:   5 * time.Second,
			ScanLimit: 10,
			Workers:   4,
			Refresh:   time.Minute,
		},
	}
	if diff := cmp.Diff(exp, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_ValidationFails(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "notefs.yaml")
	if err := os.WriteFile(fn, []byte("mount:\n  workers: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefault()
	err := Load(fn, cfg)
	if err == nil || !strings.Contains(err.Error(), "config validation failed") {
		t.Errorf("Load() error = %v, want validation failure", err)
	}
}
