package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blang/semver"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Scan     ScanConfig     `yaml:"scan"`
	Session  SessionConfig  `yaml:"session"`
	Firmware FirmwareConfig `yaml:"firmware"`
	LogLevel string         `yaml:"log_level"`
}

// DeviceConfig identifies the earbuds to configure.
type DeviceConfig struct {
	Address string `yaml:"address"` // used when --address is omitted
}

// ScanConfig holds discovery settings.
type ScanConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// SessionConfig holds connection settings.
type SessionConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadyTimeout   time.Duration `yaml:"ready_timeout"` // connect through first load
	SettleDelay    time.Duration `yaml:"settle_delay"`  // pause between GATT operations
}

// FirmwareConfig holds firmware compatibility settings.
type FirmwareConfig struct {
	MinVersion string `yaml:"min_version"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "budsconfig")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			Timeout: 10 * time.Second,
		},
		Session: SessionConfig{
			ConnectTimeout: 15 * time.Second,
			ReadyTimeout:   20 * time.Second,
		},
		Firmware: FirmwareConfig{
			MinVersion: "1.0.0",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to defaults when the file does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Scan.Timeout <= 0 {
		return fmt.Errorf("scan.timeout must be > 0")
	}
	if c.Session.ConnectTimeout <= 0 {
		return fmt.Errorf("session.connect_timeout must be > 0")
	}
	if c.Session.ReadyTimeout <= 0 {
		return fmt.Errorf("session.ready_timeout must be > 0")
	}
	if c.Session.SettleDelay < 0 {
		return fmt.Errorf("session.settle_delay must be >= 0")
	}
	if c.Session.SettleDelay > time.Second {
		return fmt.Errorf("session.settle_delay must be at most 1s, got %s", c.Session.SettleDelay)
	}

	if _, err := c.MinFirmware(); err != nil {
		return err
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// MinFirmware parses firmware.min_version.
func (c *Config) MinFirmware() (semver.Version, error) {
	v, err := semver.Parse(c.Firmware.MinVersion)
	if err != nil {
		return semver.Version{}, fmt.Errorf("firmware.min_version %q is not a semantic version: %w", c.Firmware.MinVersion, err)
	}
	return v, nil
}

const defaultHeader = `# budsconfig configuration
#
# device.address        earbuds to use when --address is omitted
# scan.timeout          how long "budsconfig scan" listens for advertisements
# session.settle_delay  extra pause between GATT operations (try 100ms on flaky stacks)
# firmware.min_version  warn when the earbuds report an older firmware
`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the path written, or "" when a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	body, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), body...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}
