package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.faredit/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8099
// broker:
//   url: ws://127.0.0.1:8099/channel
// timeouts:
//   connect: 10
//   auth: 30
//   list: 15
//   read: 20
//   write: 15
//   exec: 30
//   disconnect: 5
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Port must be between 1 and 65535.
// - Timeouts are in seconds.

type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Broker   BrokerConfig   `yaml:"broker"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

type BrokerConfig struct {
	URL *string `yaml:"url"`
}

// TimeoutsConfig bounds each remote operation independently (seconds).
type TimeoutsConfig struct {
	Connect    *int `yaml:"connect"`
	Auth       *int `yaml:"auth"`
	List       *int `yaml:"list"`
	Read       *int `yaml:"read"`
	Write      *int `yaml:"write"`
	Exec       *int `yaml:"exec"`
	Disconnect *int `yaml:"disconnect"`
}

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8099

	DefaultConnectTimeout    = 10 * time.Second
	DefaultAuthTimeout       = 30 * time.Second
	DefaultListTimeout       = 15 * time.Second
	DefaultReadTimeout       = 20 * time.Second
	DefaultWriteTimeout      = 15 * time.Second
	DefaultExecTimeout       = 30 * time.Second
	DefaultDisconnectTimeout = 5 * time.Second
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".faredit")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.faredit/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}
	// Defaults are applied via the accessor helpers.

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	// Validate
	host := cfg.Host()
	if strings.TrimSpace(host) == "" {
		return nil, "", fmt.Errorf("invalid server.host (empty) in %s", configFile)
	}

	port := cfg.Port()
	if port < 1 || port > 65535 {
		return nil, "", fmt.Errorf("invalid server.port %d in %s", port, configFile)
	}

	return cfg, configFile, nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{Server: ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)}}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil {
		return DefaultHost
	}
	if c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil {
		return DefaultPort
	}
	if c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

// BrokerURL returns the websocket URL of the broker channel endpoint.
func (c *AppConfig) BrokerURL() string {
	if c != nil && c.Broker.URL != nil {
		if v := strings.TrimSpace(*c.Broker.URL); v != "" {
			return v
		}
	}
	return fmt.Sprintf("ws://%s:%d/channel", c.Host(), c.Port())
}

func (c *AppConfig) ConnectTimeout() time.Duration {
	return c.timeout(func(t TimeoutsConfig) *int { return t.Connect }, DefaultConnectTimeout)
}

func (c *AppConfig) AuthTimeout() time.Duration {
	return c.timeout(func(t TimeoutsConfig) *int { return t.Auth }, DefaultAuthTimeout)
}

func (c *AppConfig) ListTimeout() time.Duration {
	return c.timeout(func(t TimeoutsConfig) *int { return t.List }, DefaultListTimeout)
}

func (c *AppConfig) ReadTimeout() time.Duration {
	return c.timeout(func(t TimeoutsConfig) *int { return t.Read }, DefaultReadTimeout)
}

func (c *AppConfig) WriteTimeout() time.Duration {
	return c.timeout(func(t TimeoutsConfig) *int { return t.Write }, DefaultWriteTimeout)
}

func (c *AppConfig) ExecTimeout() time.Duration {
	return c.timeout(func(t TimeoutsConfig) *int { return t.Exec }, DefaultExecTimeout)
}

func (c *AppConfig) DisconnectTimeout() time.Duration {
	return c.timeout(func(t TimeoutsConfig) *int { return t.Disconnect }, DefaultDisconnectTimeout)
}

func (c *AppConfig) timeout(pick func(TimeoutsConfig) *int, def time.Duration) time.Duration {
	if c == nil {
		return def
	}
	v := pick(c.Timeouts)
	if v == nil || *v <= 0 {
		return def
	}
	return time.Duration(*v) * time.Second
}

func ptr[T any](v T) *T { return &v }
