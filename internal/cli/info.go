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

// infoCmd queries the device identity
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show device identity and capabilities",
	Long: `Enumerate an in-process device the way a host does: perform the INIT
handshake, then decode the GetInfo response. With file storage configured
this shows the persisted device identity.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		deviceCfg, err := loadDeviceConfig()
		if err != nil {
			handleError(err)
			return
		}

		printVerbose("Opening in-process device...")

		sess, err := openSession(deviceCfg)
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = sess.Close() }()

		info, err := sess.getInfo()
		if err != nil {
			handleError(err)
			return
		}

		if err := printer.PrintDeviceInfo(info); err != nil {
			handleError(err)
		}
	},
}
