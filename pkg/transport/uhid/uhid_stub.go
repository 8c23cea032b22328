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

//go:build !linux

package uhid

import (
	"time"

	"github.com/jeremyhahn/go-authenticator/pkg/hid"
	"github.com/jeremyhahn/go-authenticator/pkg/transport"
)

// Device is only functional on Linux. This stub keeps callers compiling
// elsewhere; Open never hands one out.
type Device struct{}

var _ transport.Connection = (*Device)(nil)

// Open fails on platforms without /dev/uhid.
func Open(cfg Config) (*Device, error) {
	return nil, ErrUnsupported
}

func (d *Device) Recv(timeout time.Duration) (*hid.Packet, error) {
	return nil, ErrUnsupported
}

func (d *Device) Send(pkt *hid.Packet, timeout time.Duration) error {
	return ErrUnsupported
}

func (d *Device) SendOrRecv(pkt *hid.Packet, timeout time.Duration) (transport.Status, *hid.Packet, error) {
	return transport.TimedOut, nil, ErrUnsupported
}

func (d *Device) Close() error {
	return ErrUnsupported
}
