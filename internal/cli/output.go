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
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jeremyhahn/go-authenticator/pkg/hid"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintMessage prints a plain status message
func (p *Printer) PrintMessage(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"message": message,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintDeviceInfo prints the identity and capabilities a host discovers
// during enumeration.
func (p *Printer) PrintDeviceInfo(info *DeviceInfo) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"aaguid":           info.AAGUID,
			"versions":         info.Versions,
			"protocol_version": info.Protocol,
			"device_version":   info.DeviceVersion(),
			"capabilities":     capabilityNames(info.Capabilities),
			"max_msg_size":     info.MaxMsgSize,
			"options":          info.Options,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, "Device Information:")
		fmt.Fprintf(p.writer, "  AAGUID:           %s\n", info.AAGUID)
		fmt.Fprintf(p.writer, "  Versions:         %s\n", strings.Join(info.Versions, ", "))
		fmt.Fprintf(p.writer, "  Protocol:         %d\n", info.Protocol)
		fmt.Fprintf(p.writer, "  Device Version:   %s\n", info.DeviceVersion())
		fmt.Fprintf(p.writer, "  Capabilities:     %s\n", strings.Join(capabilityNames(info.Capabilities), " "))
		fmt.Fprintf(p.writer, "  Max Message Size: %d bytes\n", info.MaxMsgSize)
		fmt.Fprintln(p.writer, "  Options:")
		for _, name := range sortedKeys(info.Options) {
			fmt.Fprintf(p.writer, "    %s: %t\n", name, info.Options[name])
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintPingResult prints one ping round trip
func (p *Printer) PrintPingResult(seq, size int, rtt time.Duration) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"seq":    seq,
			"bytes":  size,
			"rtt_ms": float64(rtt.Microseconds()) / 1000.0,
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "%d bytes echoed: seq=%d time=%s\n", size, seq, rtt.Round(time.Microsecond))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// capabilityNames expands the INIT capability bitmask
func capabilityNames(caps hid.Capability) []string {
	var names []string
	if caps&hid.CapWink != 0 {
		names = append(names, "WINK")
	}
	if caps&hid.CapCBOR != 0 {
		names = append(names, "CBOR")
	}
	if caps&hid.CapNMsg != 0 {
		names = append(names, "NMSG")
	}
	return names
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
