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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-authenticator/pkg/hid"
)

var (
	pingSize  int
	pingCount int
)

// pingCmd measures round trips through the protocol stack
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round-trip time through the device",
	Long: `Echo random payloads off an in-process device and report the round
trip time. Payloads larger than 57 bytes exercise packet fragmentation
and reassembly on both sides.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		if pingSize < 0 || pingSize > hid.MaxPayloadSize {
			handleError(fmt.Errorf("size must be between 0 and %d", hid.MaxPayloadSize))
			return
		}
		if pingCount < 1 {
			handleError(fmt.Errorf("count must be at least 1"))
			return
		}

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

		for seq := 0; seq < pingCount; seq++ {
			rtt, err := sess.ping(pingSize)
			if err != nil {
				handleError(err)
				return
			}
			if err := printer.PrintPingResult(seq, pingSize, rtt); err != nil {
				handleError(err)
				return
			}
		}
	},
}

func init() {
	pingCmd.Flags().IntVar(&pingSize, "size", 64, "payload bytes per ping")
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 1, "number of pings to send")
}
