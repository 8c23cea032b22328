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

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeremyhahn/go-authenticator/internal/config"
	"github.com/jeremyhahn/go-authenticator/internal/server"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (empty runs built-in defaults)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("go-authenticator daemon\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	// Check for config file override via environment
	if envConfig := os.Getenv("AUTHENTICATOR_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	slog.Info("Starting authenticator",
		"config", *configPath,
		"version", version)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("Configuration loaded successfully",
		"device", cfg.Device.Name,
		"transport", cfg.Transport.Backend,
		"storage", cfg.Storage.Backend)

	srv, err := server.New(cfg)
	if err != nil {
		slog.Error("Failed to create server", slog.Any("error", err))
		os.Exit(1)
	}

	// Setup signal handler for graceful shutdown
	shutdownCtx := server.SetupSignalHandler()

	if err := srv.Start(); err != nil {
		slog.Error("Failed to start server", slog.Any("error", err))
		os.Exit(1)
	}

	go reloadOnSIGHUP(srv, *configPath)

	// Wait for shutdown signal
	<-shutdownCtx.Done()

	if err := srv.Shutdown(); err != nil {
		slog.Error("Error during shutdown", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("Authenticator stopped successfully")
}

// loadConfig reads the configuration file, or falls back to the built-in
// defaults when no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// reloadOnSIGHUP re-reads the configuration file on SIGHUP and applies
// what can change at runtime.
func reloadOnSIGHUP(srv *server.Server, path string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	for range hup {
		if path == "" {
			slog.Warn("SIGHUP received but no configuration file to reload")
			continue
		}
		cfg, err := config.Load(path)
		if err != nil {
			slog.Error("Failed to reload configuration", slog.Any("error", err))
			continue
		}
		if err := srv.Reload(cfg); err != nil {
			slog.Error("Failed to apply reloaded configuration", slog.Any("error", err))
		}
	}
}
