package nerveconfig

import (
	"os"
	"testing"
)

func TestDefaultPassesValidation(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/nerved.yaml"
	yaml := "session:\n  server_name: my-server\n  history_enabled: false\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Session.ServerName != "my-server" {
		t.Fatalf("expected server_name to be overridden, got %q", cfg.Session.ServerName)
	}
	if cfg.Session.HistoryEnabled {
		t.Fatal("expected history_enabled to be overridden to false")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := t.TempDir() + "/nerved.yaml"
	if err := os.WriteFile(path, []byte("session:\n  server_name: from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NERVE_SERVER_NAME", "from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Session.ServerName != "from-env" {
		t.Fatalf("expected env override, got %q", cfg.Session.ServerName)
	}
}

func TestValidateRejectsEmptyServerName(t *testing.T) {
	cfg := Default()
	cfg.Session.ServerName = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
