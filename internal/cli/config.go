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

	"github.com/jeremyhahn/go-authenticator/internal/config"
)

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the device configuration file
	ConfigFile string

	// OutputFormat controls output formatting (text, json)
	OutputFormat string

	// Verbose enables verbose logging
	Verbose bool
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: "text",
		Verbose:      false,
	}
}

// loadDeviceConfig resolves the device configuration for this invocation:
// the --config file when given, then the AUTHENTICATOR_CONFIG environment
// variable, then built-in defaults.
func loadDeviceConfig() (*config.Config, error) {
	path := globalConfig.ConfigFile
	if path == "" {
		path = os.Getenv("AUTHENTICATOR_CONFIG")
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
