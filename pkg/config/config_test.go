package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFile_ReturnsDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path == "" {
		t.Fatalf("expected config path")
	}
	if got := cfg.Host(); got != DefaultHost {
		t.Fatalf("cfg.Host() = %q, want %q", got, DefaultHost)
	}
	if got := cfg.Port(); got != DefaultPort {
		t.Fatalf("cfg.Port() = %d, want %d", got, DefaultPort)
	}
	if got := cfg.ReadTimeout(); got != DefaultReadTimeout {
		t.Fatalf("cfg.ReadTimeout() = %v, want %v", got, DefaultReadTimeout)
	}
}

func TestEnsureDefaultConfig_CreatesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := EnsureDefaultConfig()
	if err != nil {
		t.Fatalf("EnsureDefaultConfig() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to exist at %s: %v", path, err)
	}

	cfg, gotPath, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if filepath.Clean(gotPath) != filepath.Clean(path) {
		t.Fatalf("Load() path = %s, want %s", gotPath, path)
	}
	if got := cfg.Host(); got != DefaultHost {
		t.Fatalf("cfg.Host() = %q, want %q", got, DefaultHost)
	}
	if got := cfg.Port(); got != DefaultPort {
		t.Fatalf("cfg.Port() = %d, want %d", got, DefaultPort)
	}
}

func TestLoad_ParsesHostAndPort(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	writeConfig(t, home, "server:\n  host: 0.0.0.0\n  port: 9090\n")

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Host(); got != "0.0.0.0" {
		t.Fatalf("cfg.Host() = %q, want %q", got, "0.0.0.0")
	}
	if got := cfg.Port(); got != 9090 {
		t.Fatalf("cfg.Port() = %d, want %d", got, 9090)
	}
}

func TestLoad_ParsesTimeoutsAndBrokerURL(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	writeConfig(t, home, "broker:\n  url: ws://example.test:9/channel\ntimeouts:\n  read: 7\n  exec: 42\n")

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.BrokerURL(); got != "ws://example.test:9/channel" {
		t.Fatalf("cfg.BrokerURL() = %q, want %q", got, "ws://example.test:9/channel")
	}
	if got := cfg.ReadTimeout(); got != 7*time.Second {
		t.Fatalf("cfg.ReadTimeout() = %v, want %v", got, 7*time.Second)
	}
	if got := cfg.ExecTimeout(); got != 42*time.Second {
		t.Fatalf("cfg.ExecTimeout() = %v, want %v", got, 42*time.Second)
	}
	// Unset timeouts keep their defaults.
	if got := cfg.ListTimeout(); got != DefaultListTimeout {
		t.Fatalf("cfg.ListTimeout() = %v, want %v", got, DefaultListTimeout)
	}
}

func TestBrokerURL_DefaultDerivedFromServer(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	writeConfig(t, home, "server:\n  host: 10.0.0.5\n  port: 9100\n")

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := cfg.BrokerURL(), "ws://10.0.0.5:9100/channel"; got != want {
		t.Fatalf("cfg.BrokerURL() = %q, want %q", got, want)
	}
}

func writeConfig(t *testing.T, home string, content string) {
	t.Helper()
	configDir := filepath.Join(home, ".faredit")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
