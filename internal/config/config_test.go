// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-authenticator.
//
// go-authenticator is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}
	return configPath
}

// TestLoad_Success tests successful loading of a valid config file
func TestLoad_Success(t *testing.T) {
	configPath := writeConfig(t, `
device:
  name: "test-key"
  vendor_id: 0x1209
  product_id: 0x5257
  version_major: 1
  version_minor: 2
  version_build: 3
  aaguid: "5ca1ab1e-0000-4000-8000-00000000c0de"
  wink_duration_ms: 5000
  message_timeout_ms: 3000

transport:
  backend: "pipe"

clock:
  frequency_hz: 32768

presence:
  mode: "auto"
  auto_confirm_delay_ms: 250
  total_timeout_ms: 30000
  keepalive_delay_ms: 100

legacy:
  enabled: true

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
  port: 9090

storage:
  backend: "file"
  path: "/data/authenticator"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.Device.Name != "test-key" {
		t.Errorf("Device.Name = %v, want test-key", cfg.Device.Name)
	}
	if cfg.Device.VendorID != 0x1209 {
		t.Errorf("Device.VendorID = %#x, want 0x1209", cfg.Device.VendorID)
	}
	if cfg.Device.VersionMinor != 2 {
		t.Errorf("Device.VersionMinor = %v, want 2", cfg.Device.VersionMinor)
	}
	if cfg.Device.AAGUID != "5ca1ab1e-0000-4000-8000-00000000c0de" {
		t.Errorf("Device.AAGUID = %v", cfg.Device.AAGUID)
	}

	if cfg.Transport.Backend != "pipe" {
		t.Errorf("Transport.Backend = %v, want pipe", cfg.Transport.Backend)
	}

	if cfg.Presence.AutoConfirmDelayMS != 250 {
		t.Errorf("Presence.AutoConfirmDelayMS = %v, want 250", cfg.Presence.AutoConfirmDelayMS)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %v, want json", cfg.Logging.Format)
	}

	if cfg.Storage.Backend != "file" {
		t.Errorf("Storage.Backend = %v, want file", cfg.Storage.Backend)
	}
	if cfg.Storage.Path != "/data/authenticator" {
		t.Errorf("Storage.Path = %v, want /data/authenticator", cfg.Storage.Path)
	}
}

// TestLoad_PartialFile tests that fields absent from the file keep their
// defaults
func TestLoad_PartialFile(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "warn"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %v, want warn", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %v, want default text", cfg.Logging.Format)
	}
	if cfg.Transport.Backend != "uhid" {
		t.Errorf("Transport.Backend = %v, want default uhid", cfg.Transport.Backend)
	}
	if cfg.Presence.TotalTimeoutMS != 30000 {
		t.Errorf("Presence.TotalTimeoutMS = %v, want default 30000", cfg.Presence.TotalTimeoutMS)
	}
	if cfg.Device.WinkDurationMS != 5000 {
		t.Errorf("Device.WinkDurationMS = %v, want default 5000", cfg.Device.WinkDurationMS)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() error = nil, want read failure")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "device: [not a mapping")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error = nil, want parse failure")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "info"
`)

	t.Setenv("AUTHENTICATOR_DEVICE_NAME", "env-key")
	t.Setenv("AUTHENTICATOR_TRANSPORT", "pipe")
	t.Setenv("AUTHENTICATOR_PRESENCE_MODE", "deny")
	t.Setenv("AUTHENTICATOR_LEGACY_ENABLED", "false")
	t.Setenv("AUTHENTICATOR_LOG_LEVEL", "debug")
	t.Setenv("AUTHENTICATOR_LOG_FORMAT", "json")
	t.Setenv("AUTHENTICATOR_METRICS_PORT", "9191")
	t.Setenv("AUTHENTICATOR_STORAGE_BACKEND", "file")
	t.Setenv("AUTHENTICATOR_DATA_DIR", "/tmp/authenticator-test")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.Device.Name != "env-key" {
		t.Errorf("Device.Name = %v, want env-key", cfg.Device.Name)
	}
	if cfg.Transport.Backend != "pipe" {
		t.Errorf("Transport.Backend = %v, want pipe", cfg.Transport.Backend)
	}
	if cfg.Presence.Mode != "deny" {
		t.Errorf("Presence.Mode = %v, want deny", cfg.Presence.Mode)
	}
	if cfg.Legacy.Enabled {
		t.Error("Legacy.Enabled = true, want false")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
	if cfg.Metrics.Port != 9191 {
		t.Errorf("Metrics.Port = %v, want 9191", cfg.Metrics.Port)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("Storage.Backend = %v, want file", cfg.Storage.Backend)
	}
	if cfg.Storage.Path != "/tmp/authenticator-test" {
		t.Errorf("Storage.Path = %v, want /tmp/authenticator-test", cfg.Storage.Path)
	}
}

func TestLoad_EnvOverrideInvalidValuesKeepDefaults(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "info"
`)

	t.Setenv("AUTHENTICATOR_METRICS_PORT", "not-a-port")
	t.Setenv("AUTHENTICATOR_LEGACY_ENABLED", "maybe")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.Metrics.Port != 9090 {
		t.Errorf("Metrics.Port = %v, want default 9090", cfg.Metrics.Port)
	}
	if !cfg.Legacy.Enabled {
		t.Error("Legacy.Enabled = false, want default true")
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v, want nil", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad transport backend",
			mutate:  func(c *Config) { c.Transport.Backend = "usbip" },
			wantErr: "invalid transport backend",
		},
		{
			name:    "bad presence mode",
			mutate:  func(c *Config) { c.Presence.Mode = "ask" },
			wantErr: "invalid presence mode",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "invalid log format",
		},
		{
			name:    "negative wink duration",
			mutate:  func(c *Config) { c.Device.WinkDurationMS = -1 },
			wantErr: "must not be negative",
		},
		{
			name: "timer beyond the wrap-safe window",
			mutate: func(c *Config) {
				// At 32768 Hz anything past ~256 s would make the
				// 24-bit comparison ambiguous.
				c.Device.WinkDurationMS = 300000
			},
			wantErr: "must stay at or below",
		},
		{
			name: "keepalive exceeds total timeout",
			mutate: func(c *Config) {
				c.Presence.KeepaliveDelayMS = 500
				c.Presence.TotalTimeoutMS = 100
			},
			wantErr: "exceeds presence.total_timeout_ms",
		},
		{
			name:    "metrics port out of range",
			mutate:  func(c *Config) { c.Metrics.Port = 0 },
			wantErr: "invalid metrics port",
		},
		{
			name: "file storage without path",
			mutate: func(c *Config) {
				c.Storage.Backend = "file"
				c.Storage.Path = ""
			},
			wantErr: "storage path is required",
		},
		{
			name:    "unknown storage backend",
			mutate:  func(c *Config) { c.Storage.Backend = "etcd" },
			wantErr: "invalid storage backend",
		},
		{
			name:    "malformed aaguid",
			mutate:  func(c *Config) { c.Device.AAGUID = "not-a-uuid" },
			wantErr: "invalid device aaguid",
		},
		{
			name:    "version byte out of range",
			mutate:  func(c *Config) { c.Device.VersionMajor = 256 },
			wantErr: "0-255",
		},
		{
			name:    "clock frequency too low",
			mutate:  func(c *Config) { c.Clock.FrequencyHz = 1 },
			wantErr: "invalid clock frequency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
