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
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-authenticator/pkg/clock"
)

// Config represents the complete device configuration. Durations are
// millisecond integers, the protocol's natural unit.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Transport TransportConfig `yaml:"transport"`
	Clock     ClockConfig     `yaml:"clock"`
	Presence  PresenceConfig  `yaml:"presence"`
	Legacy    LegacyConfig    `yaml:"legacy"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Storage   StorageConfig   `yaml:"storage"`
}

// DeviceConfig identifies the device to hosts
type DeviceConfig struct {
	Name      string `yaml:"name"`
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`

	// Version bytes advertised in INIT responses
	VersionMajor int `yaml:"version_major"`
	VersionMinor int `yaml:"version_minor"`
	VersionBuild int `yaml:"version_build"`

	// AAGUID pins the device identity. Empty lets the device mint and
	// persist one on first boot.
	AAGUID string `yaml:"aaguid,omitempty"`

	WinkDurationMS   int `yaml:"wink_duration_ms"`
	MessageTimeoutMS int `yaml:"message_timeout_ms"`
}

// TransportConfig selects how report packets reach the host
type TransportConfig struct {
	Backend  string `yaml:"backend"` // uhid, pipe
	UHIDPath string `yaml:"uhid_path"`
}

// ClockConfig controls the tick source
type ClockConfig struct {
	FrequencyHz uint32 `yaml:"frequency_hz"` // 0 selects 32768
}

// PresenceConfig controls the user presence wait
type PresenceConfig struct {
	Mode               string `yaml:"mode"` // auto, deny
	AutoConfirmDelayMS int    `yaml:"auto_confirm_delay_ms"`
	TotalTimeoutMS     int    `yaml:"total_timeout_ms"`
	KeepaliveDelayMS   int    `yaml:"keepalive_delay_ms"`
}

// LegacyConfig toggles the legacy MSG bridge
type LegacyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Port    int    `yaml:"port"`
}

// StorageConfig controls the persistent store
type StorageConfig struct {
	Backend string `yaml:"backend"` // memory, file
	Path    string `yaml:"path"`
}

// Default returns the configuration the device runs with when no config
// file is given.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:             "go-authenticator",
			VendorID:         0x1209,
			ProductID:        0x5257,
			VersionMajor:     1,
			WinkDurationMS:   5000,
			MessageTimeoutMS: 3000,
		},
		Transport: TransportConfig{
			Backend:  "uhid",
			UHIDPath: "/dev/uhid",
		},
		Clock: ClockConfig{
			FrequencyHz: clock.DefaultFrequency,
		},
		Presence: PresenceConfig{
			Mode:               "auto",
			AutoConfirmDelayMS: 1000,
			TotalTimeoutMS:     30000,
			KeepaliveDelayMS:   100,
		},
		Legacy: LegacyConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
	}
}

// Load reads configuration from a YAML file and applies environment
// variable overrides. Fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if name := os.Getenv("AUTHENTICATOR_DEVICE_NAME"); name != "" {
		cfg.Device.Name = name
	}

	// Transport
	if backend := os.Getenv("AUTHENTICATOR_TRANSPORT"); backend != "" {
		cfg.Transport.Backend = backend
	}
	if path := os.Getenv("AUTHENTICATOR_UHID_PATH"); path != "" {
		cfg.Transport.UHIDPath = path
	}

	// Presence
	if mode := os.Getenv("AUTHENTICATOR_PRESENCE_MODE"); mode != "" {
		cfg.Presence.Mode = mode
	}

	// Legacy bridge
	if legacy := os.Getenv("AUTHENTICATOR_LEGACY_ENABLED"); legacy != "" {
		enabled, err := strconv.ParseBool(legacy)
		if err != nil {
			log.Printf("Warning: invalid AUTHENTICATOR_LEGACY_ENABLED value %q, using default %t: %v",
				legacy, cfg.Legacy.Enabled, err)
		} else {
			cfg.Legacy.Enabled = enabled
		}
	}

	// Logging
	if level := os.Getenv("AUTHENTICATOR_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("AUTHENTICATOR_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Metrics
	if metricsPort := os.Getenv("AUTHENTICATOR_METRICS_PORT"); metricsPort != "" {
		port, err := strconv.Atoi(metricsPort)
		if err != nil {
			log.Printf("Warning: invalid AUTHENTICATOR_METRICS_PORT value %q, using default %d: %v",
				metricsPort, cfg.Metrics.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid AUTHENTICATOR_METRICS_PORT value %q (out of range 1-65535), using default %d",
				metricsPort, cfg.Metrics.Port)
		} else {
			cfg.Metrics.Port = port
		}
	}

	// Storage
	if backend := os.Getenv("AUTHENTICATOR_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if dataDir := os.Getenv("AUTHENTICATOR_DATA_DIR"); dataDir != "" {
		cfg.Storage.Path = dataDir
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate device identity
	if c.Device.VersionMajor < 0 || c.Device.VersionMajor > 255 ||
		c.Device.VersionMinor < 0 || c.Device.VersionMinor > 255 ||
		c.Device.VersionBuild < 0 || c.Device.VersionBuild > 255 {
		return fmt.Errorf("device version bytes must be in range 0-255")
	}
	if c.Device.AAGUID != "" {
		if _, err := uuid.Parse(c.Device.AAGUID); err != nil {
			return fmt.Errorf("invalid device aaguid: %w", err)
		}
	}

	// Validate transport
	switch c.Transport.Backend {
	case "uhid", "pipe":
	default:
		return fmt.Errorf("invalid transport backend: %s (must be uhid or pipe)", c.Transport.Backend)
	}

	// Validate clock. A frequency below 2 Hz makes every tick delta zero.
	if c.Clock.FrequencyHz != 0 && c.Clock.FrequencyHz < 2 {
		return fmt.Errorf("invalid clock frequency: %d Hz", c.Clock.FrequencyHz)
	}

	// Validate durations. Anything armed as a one-shot timer must stay
	// inside the wrap-safe half of the tick range at the configured
	// frequency.
	maxMS := clock.MaxDelay(c.Clock.FrequencyHz).Milliseconds()
	timers := []struct {
		name string
		ms   int
	}{
		{"device.wink_duration_ms", c.Device.WinkDurationMS},
		{"device.message_timeout_ms", c.Device.MessageTimeoutMS},
		{"presence.keepalive_delay_ms", c.Presence.KeepaliveDelayMS},
		{"presence.auto_confirm_delay_ms", c.Presence.AutoConfirmDelayMS},
	}
	for _, timer := range timers {
		if timer.ms < 0 {
			return fmt.Errorf("%s must not be negative", timer.name)
		}
		if int64(timer.ms) > maxMS {
			return fmt.Errorf("%s is %d ms; timers at %d Hz must stay at or below %d ms",
				timer.name, timer.ms, c.clockFrequency(), maxMS)
		}
	}

	// Validate presence loop bounds
	if c.Presence.TotalTimeoutMS < 0 {
		return fmt.Errorf("presence.total_timeout_ms must not be negative")
	}
	if c.Presence.TotalTimeoutMS != 0 && c.Presence.KeepaliveDelayMS > c.Presence.TotalTimeoutMS {
		return fmt.Errorf("presence.keepalive_delay_ms (%d) exceeds presence.total_timeout_ms (%d)",
			c.Presence.KeepaliveDelayMS, c.Presence.TotalTimeoutMS)
	}
	switch c.Presence.Mode {
	case "auto", "deny":
	default:
		return fmt.Errorf("invalid presence mode: %s (must be auto or deny)", c.Presence.Mode)
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, error, or fatal)", c.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json, text, or console)", c.Logging.Format)
	}

	// Validate metrics endpoint
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}

	// Validate storage
	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the file backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory or file)", c.Storage.Backend)
	}

	return nil
}

func (c *Config) clockFrequency() uint32 {
	if c.Clock.FrequencyHz == 0 {
		return clock.DefaultFrequency
	}
	return c.Clock.FrequencyHz
}
