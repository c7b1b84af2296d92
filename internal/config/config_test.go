package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blang/semver"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Device.Address != "" {
		t.Errorf("Device.Address = %q, want empty", cfg.Device.Address)
	}
	if cfg.Scan.Timeout != 10*time.Second {
		t.Errorf("Scan.Timeout = %v, want 10s", cfg.Scan.Timeout)
	}
	if cfg.Session.ConnectTimeout != 15*time.Second {
		t.Errorf("Session.ConnectTimeout = %v, want 15s", cfg.Session.ConnectTimeout)
	}
	if cfg.Session.ReadyTimeout != 20*time.Second {
		t.Errorf("Session.ReadyTimeout = %v, want 20s", cfg.Session.ReadyTimeout)
	}
	if cfg.Session.SettleDelay != 0 {
		t.Errorf("Session.SettleDelay = %v, want 0", cfg.Session.SettleDelay)
	}
	if cfg.Firmware.MinVersion != "1.0.0" {
		t.Errorf("Firmware.MinVersion = %q, want %q", cfg.Firmware.MinVersion, "1.0.0")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
device:
  address: "AA:BB:CC:DD:EE:FF"
scan:
  timeout: 5s
session:
  connect_timeout: 30s
  settle_delay: 100ms
firmware:
  min_version: 1.2.0
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Device.Address = %q, want %q", cfg.Device.Address, "AA:BB:CC:DD:EE:FF")
	}
	if cfg.Scan.Timeout != 5*time.Second {
		t.Errorf("Scan.Timeout = %v, want 5s", cfg.Scan.Timeout)
	}
	if cfg.Session.ConnectTimeout != 30*time.Second {
		t.Errorf("Session.ConnectTimeout = %v, want 30s", cfg.Session.ConnectTimeout)
	}
	if cfg.Session.ReadyTimeout != 20*time.Second {
		t.Errorf("Session.ReadyTimeout = %v, want default 20s", cfg.Session.ReadyTimeout)
	}
	if cfg.Session.SettleDelay != 100*time.Millisecond {
		t.Errorf("Session.SettleDelay = %v, want 100ms", cfg.Session.SettleDelay)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}

	v, err := cfg.MinFirmware()
	if err != nil {
		t.Fatalf("MinFirmware() error = %v", err)
	}
	if !v.Equals(semver.Version{Major: 1, Minor: 2}) {
		t.Errorf("MinFirmware() = %v, want 1.2.0", v)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Scan.Timeout != Default().Scan.Timeout {
		t.Errorf("Scan.Timeout = %v, want default", cfg.Scan.Timeout)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("scan:\n  timeout: soon\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := LoadOrDefault(cfgPath); err == nil {
		t.Error("LoadOrDefault() should fail on an unparseable duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero scan timeout",
			modify:  func(c *Config) { c.Scan.Timeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero connect timeout",
			modify:  func(c *Config) { c.Session.ConnectTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero ready timeout",
			modify:  func(c *Config) { c.Session.ReadyTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "negative settle delay",
			modify:  func(c *Config) { c.Session.SettleDelay = -time.Millisecond },
			wantErr: true,
		},
		{
			name:    "settle delay too long",
			modify:  func(c *Config) { c.Session.SettleDelay = 2 * time.Second },
			wantErr: true,
		},
		{
			name:    "android pacing",
			modify:  func(c *Config) { c.Session.SettleDelay = 100 * time.Millisecond },
			wantErr: false,
		},
		{
			name:    "min version not semver",
			modify:  func(c *Config) { c.Firmware.MinVersion = "v1" },
			wantErr: true,
		},
		{
			name:    "empty min version",
			modify:  func(c *Config) { c.Firmware.MinVersion = "" },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "budsconfig", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# budsconfig") {
		t.Error("written config should start with header comment")
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Scan.Timeout != 10*time.Second {
		t.Errorf("written Scan.Timeout = %v, want 10s", cfg.Scan.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written config does not validate: %v", err)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "budsconfig")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("device:\n  address: AA:BB:CC:DD:EE:FF\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestWriteDefault_StatError(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	// ~/.config is a regular file, so the config path cannot be inspected.
	if err := os.WriteFile(filepath.Join(tmpHome, ".config"), []byte("not a dir"), 0644); err != nil {
		t.Fatalf("failed to write blocking file: %v", err)
	}

	path, err := WriteDefault()
	if err == nil {
		t.Fatalf("WriteDefault() = %q, want error", path)
	}
	if errors.Is(err, os.ErrNotExist) {
		t.Errorf("WriteDefault() error = %v, should not be treated as a missing file", err)
	}
	if !strings.Contains(err.Error(), "checking config file") {
		t.Errorf("WriteDefault() error = %v, want the stat failure reported", err)
	}
}
