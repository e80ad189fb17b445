package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[autorelease]
lifetime = "30s"
interval = "500ms"

[storage]
database = "data/slots.db"

[log]
verbosity = 2
file = "jc.log"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Autorelease.Lifetime != 30*time.Second {
		t.Errorf("lifetime = %s, want 30s", c.Autorelease.Lifetime)
	}
	if c.Autorelease.Interval != 500*time.Millisecond {
		t.Errorf("interval = %s, want 500ms", c.Autorelease.Interval)
	}
	if c.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", c.Log.Verbosity)
	}

	abs, _ := filepath.Abs(dir)
	if got := c.DatabasePath(); got != filepath.Join(abs, "data", "slots.db") {
		t.Errorf("DatabasePath() = %q", got)
	}
	if got := c.LogFile(); got == nil || *got != filepath.Join(abs, "jc.log") {
		t.Errorf("LogFile() = %v", got)
	}

	opts := c.StoreOptions()
	if opts.Lifetime != 30*time.Second || opts.Interval != 500*time.Millisecond {
		t.Errorf("StoreOptions() = %+v", opts)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[log]
verbosity = 0
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	def := Default()
	if c.Autorelease != def.Autorelease {
		t.Errorf("autorelease = %+v, want %+v", c.Autorelease, def.Autorelease)
	}
	if c.Storage.Database != "saves.db" {
		t.Errorf("database = %q, want saves.db", c.Storage.Database)
	}
	if c.Log.Verbosity != 0 {
		t.Errorf("verbosity = %d, want 0", c.Log.Verbosity)
	}
	if c.LogFile() != nil {
		t.Error("LogFile() should be nil without a file")
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative lifetime", "[autorelease]\nlifetime = \"-1s\"\n"},
		{"zero interval", "[autorelease]\ninterval = \"0s\"\n"},
		{"empty database", "[storage]\ndatabase = \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			if _, err := Load(dir); !errors.Is(err, ErrInvalid) {
				t.Errorf("Load() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadConfigParseError(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[autorelease\n")
	if _, err := Load(dir); err == nil {
		t.Error("expected parse error")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[storage]\ndatabase = \"found.db\"\n")

	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if c.Storage.Database != "found.db" {
		t.Errorf("database = %q, want found.db", c.Storage.Database)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c != nil {
		t.Error("expected nil config when no file exists")
	}
}
