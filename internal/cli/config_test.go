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

package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.OutputFormat != "text" {
		t.Errorf("OutputFormat = %v, want text", cfg.OutputFormat)
	}
	if cfg.Verbose {
		t.Error("Verbose should be false by default")
	}
	if cfg.ConfigFile != "" {
		t.Errorf("ConfigFile should be empty by default, got %v", cfg.ConfigFile)
	}
}

func TestLoadDeviceConfig_Defaults(t *testing.T) {
	t.Setenv("AUTHENTICATOR_CONFIG", "")
	restore := globalConfig.ConfigFile
	globalConfig.ConfigFile = ""
	defer func() { globalConfig.ConfigFile = restore }()

	cfg, err := loadDeviceConfig()
	if err != nil {
		t.Fatalf("loadDeviceConfig() error = %v", err)
	}
	if cfg.Device.Name != "go-authenticator" {
		t.Errorf("Device.Name = %v, want go-authenticator", cfg.Device.Name)
	}
}

func TestLoadDeviceConfig_FromFlag(t *testing.T) {
	t.Setenv("AUTHENTICATOR_CONFIG", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("device:\n  name: flag-device\n"), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	restore := globalConfig.ConfigFile
	globalConfig.ConfigFile = path
	defer func() { globalConfig.ConfigFile = restore }()

	cfg, err := loadDeviceConfig()
	if err != nil {
		t.Fatalf("loadDeviceConfig() error = %v", err)
	}
	if cfg.Device.Name != "flag-device" {
		t.Errorf("Device.Name = %v, want flag-device", cfg.Device.Name)
	}
}

func TestLoadDeviceConfig_FromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("device:\n  name: env-device\n"), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("AUTHENTICATOR_CONFIG", path)

	restore := globalConfig.ConfigFile
	globalConfig.ConfigFile = ""
	defer func() { globalConfig.ConfigFile = restore }()

	cfg, err := loadDeviceConfig()
	if err != nil {
		t.Fatalf("loadDeviceConfig() error = %v", err)
	}
	if cfg.Device.Name != "env-device" {
		t.Errorf("Device.Name = %v, want env-device", cfg.Device.Name)
	}
}
