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
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-authenticator/internal/server"
)

// runCmd serves the device until interrupted
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the authenticator device",
	Long: `Assemble the authenticator and serve it on the configured transport
until interrupted. With the default uhid transport the device registers
with the kernel and appears to the host as USB security key hardware.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadDeviceConfig()
		if err != nil {
			handleError(err)
			return
		}
		if globalConfig.Verbose {
			cfg.Logging.Level = "debug"
		}

		printVerbose("Starting device on %s transport", cfg.Transport.Backend)

		srv, err := server.New(cfg)
		if err != nil {
			handleError(err)
			return
		}

		shutdownCtx := server.SetupSignalHandler()

		if err := srv.Start(); err != nil {
			handleError(err)
			return
		}

		<-shutdownCtx.Done()

		if err := srv.Shutdown(); err != nil {
			handleError(err)
		}
	},
}
