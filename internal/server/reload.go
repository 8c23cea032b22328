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

package server

import (
	"fmt"

	"github.com/jeremyhahn/go-authenticator/internal/config"
)

// Reload applies configuration that can change without restarting the
// device. Currently that is logging only; transport, storage, and device
// identity changes require a restart.
func (s *Server) Reload(cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Reloading server configuration...")

	if err := s.reloadLogging(cfg); err != nil {
		return fmt.Errorf("failed to reload logging configuration: %w", err)
	}

	// Store new configuration
	s.config = cfg

	s.logger.Info("Server configuration reloaded successfully")

	return nil
}

// reloadLogging swaps the server logger when level or format changed.
// The protocol stack keeps the logger it was assembled with; only
// server-level logging picks up the change.
func (s *Server) reloadLogging(cfg *config.Config) error {
	if cfg.Logging.Level != s.config.Logging.Level ||
		cfg.Logging.Format != s.config.Logging.Format {

		s.logger.Info("Updating logging configuration",
			"old_level", s.config.Logging.Level,
			"new_level", cfg.Logging.Level,
			"old_format", s.config.Logging.Format,
			"new_format", cfg.Logging.Format)

		s.logger = setupLogger(cfg.Logging)

		s.logger.Info("Logging configuration updated",
			"level", cfg.Logging.Level,
			"format", cfg.Logging.Format)
	}

	return nil
}
