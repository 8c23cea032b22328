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

	"github.com/spf13/cobra"
)

// winkCmd asks the device for its attention signal
var winkCmd = &cobra.Command{
	Use:   "wink",
	Short: "Ask the device for its attention signal",
	Long: `Send a WINK to an in-process device. The device acknowledges and
holds its attention indicator for the configured wink duration.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		deviceCfg, err := loadDeviceConfig()
		if err != nil {
			handleError(err)
			return
		}

		sess, err := openSession(deviceCfg)
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = sess.Close() }()

		if err := sess.wink(); err != nil {
			handleError(err)
			return
		}

		if err := printer.PrintMessage("Device winked"); err != nil {
			handleError(err)
		}
	},
}
