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

// Package uhid exposes the authenticator as a virtual HID device through
// the Linux /dev/uhid interface. The kernel probes it like real hardware,
// so any FIDO-aware host software on the machine can talk to it without
// changes. Output reports from the host become packets, packets become
// input reports.
package uhid

import (
	"errors"

	"github.com/jeremyhahn/go-authenticator/pkg/logging"
)

// ErrUnsupported is returned by Open on platforms without /dev/uhid.
var ErrUnsupported = errors.New("uhid: not supported on this platform")

// Config describes the virtual device to register.
type Config struct {
	// Path is the uhid character device node.
	Path string

	// Name is the HID device name shown to the host.
	Name string

	// VendorID and ProductID identify the virtual device.
	VendorID  uint32
	ProductID uint32

	// Logger receives debug output for ignored kernel events.
	Logger *logging.Logger
}

// DefaultConfig returns the stock virtual device identity.
func DefaultConfig() Config {
	return Config{
		Path:      "/dev/uhid",
		Name:      "go-authenticator",
		VendorID:  0x1209,
		ProductID: 0x5257,
	}
}

// reportDescriptor is the standard FIDO HID report descriptor: one usage
// page, 64-byte input reports, 64-byte output reports, no report IDs.
var reportDescriptor = []byte{
	0x06, 0xd0, 0xf1, // Usage Page (FIDO Alliance)
	0x09, 0x01, // Usage (CTAPHID Authenticator Device)
	0xa1, 0x01, // Collection (Application)
	0x09, 0x20, //   Usage (Input Report Data)
	0x15, 0x00, //   Logical Minimum (0)
	0x26, 0xff, 0x00, //   Logical Maximum (255)
	0x75, 0x08, //   Report Size (8)
	0x95, 0x40, //   Report Count (64)
	0x81, 0x02, //   Input (Data, Var, Abs)
	0x09, 0x21, //   Usage (Output Report Data)
	0x15, 0x00, //   Logical Minimum (0)
	0x26, 0xff, 0x00, //   Logical Maximum (255)
	0x75, 0x08, //   Report Size (8)
	0x95, 0x40, //   Report Count (64)
	0x91, 0x02, //   Output (Data, Var, Abs)
	0xc0, // End Collection
}
