// config_test.go tests YAML loading, defaults, validation, and the
// mapping from config sections to hook classes.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opsforge/hookd/internal/hooks"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
controller_url: https://controller.cluster.local
node_token: tok-123
prolog:
  pattern: /etc/hookd/prolog.d/*.sh
  max_wait: 30
epilog:
  pattern: /etc/hookd/epilog.d/*.sh
health_check:
  pattern: /etc/hookd/health.d/*.sh
  max_wait: 60
  cron: "@every 10m"
`

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.ControllerURL != "https://controller.cluster.local" {
		t.Errorf("controller_url = %q", cfg.ControllerURL)
	}
	if cfg.Prolog.Pattern != "/etc/hookd/prolog.d/*.sh" || cfg.Prolog.MaxWait != 30 {
		t.Errorf("prolog section = %+v", cfg.Prolog)
	}
	if cfg.HealthCheck.Cron != "@every 10m" {
		t.Errorf("health_check.cron = %q", cfg.HealthCheck.Cron)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "controller_url: https://c\nnode_token: tok\n"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.PollInterval != 60 {
		t.Errorf("default poll_interval = %d, want 60", cfg.PollInterval)
	}
	if cfg.JitterSeconds != 15 {
		t.Errorf("default jitter_seconds = %d, want 15", cfg.JitterSeconds)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("default log_level = %q, want info", cfg.LogLevel)
	}
	if cfg.DataDir != "/var/lib/hookd" {
		t.Errorf("default data_dir = %q", cfg.DataDir)
	}
	if cfg.HealthCheck.Cron != "@every 5m" {
		t.Errorf("default health cron = %q", cfg.HealthCheck.Cron)
	}
	if cfg.NATSEnabled() {
		t.Error("NATS should be disabled without servers and seed")
	}
}

func TestLoad_MissingControllerURL(t *testing.T) {
	_, err := Load(writeConfig(t, "node_token: tok\n"))
	if !errors.Is(err, ErrControllerURLRequired) {
		t.Errorf("expected ErrControllerURLRequired, got %v", err)
	}
}

func TestLoad_MissingNodeToken(t *testing.T) {
	_, err := Load(writeConfig(t, "controller_url: https://c\n"))
	if !errors.Is(err, ErrNodeTokenRequired) {
		t.Errorf("expected ErrNodeTokenRequired, got %v", err)
	}
}

func TestLoad_BootstrapTokenOnly(t *testing.T) {
	cfg, err := Load(writeConfig(t, "controller_url: https://c\nbootstrap_token: boot-1\n"))
	if err != nil {
		t.Fatalf("bootstrap-only config rejected: %v", err)
	}

	if cfg.IsRegistered() {
		t.Error("node without node_token reported registered")
	}
	if !cfg.NeedsRegistration() {
		t.Error("bootstrap token present but NeedsRegistration is false")
	}
}

func TestRegistrationState(t *testing.T) {
	cfg := &Config{NodeToken: "tok", BootstrapToken: "boot-1"}
	if !cfg.IsRegistered() {
		t.Error("node with node_token reported unregistered")
	}
	if cfg.NeedsRegistration() {
		t.Error("registered node reported needing registration")
	}
}

func TestSave_OmitsEmptyBootstrapToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := &Config{
		ControllerURL: "https://c",
		NodeToken:     "tok",
	}

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "bootstrap_token") {
		t.Errorf("cleared bootstrap token persisted:\n%s", data)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestHookClasses_BudgetMapping(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatal(err)
	}

	byName := map[string]hooks.Class{}
	for _, c := range cfg.HookClasses() {
		byName[c.Name] = c
	}

	if got := byName[hooks.ClassProlog].MaxWait; got != 30 {
		t.Errorf("prolog budget = %d, want 30", got)
	}
	// Unset max_wait means unbounded, expressed as a negative budget.
	if got := byName[hooks.ClassEpilog].MaxWait; got != -1 {
		t.Errorf("epilog budget = %d, want -1", got)
	}
	if got := byName[hooks.ClassHealthCheck].MaxWait; got != 60 {
		t.Errorf("healthcheck budget = %d, want 60", got)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := &Config{
		ControllerURL: "https://c",
		NodeToken:     "tok",
		PollInterval:  30,
	}

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config saved with mode %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ControllerURL != "https://c" || loaded.PollInterval != 30 {
		t.Errorf("round-trip mismatch: %+v", loaded)
	}
}
