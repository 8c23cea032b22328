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

// Package transport carries 64-byte packets between the device core and
// whatever plays the host: a kernel-backed virtual HID device or an
// in-memory pipe.
package transport

import (
	"errors"
	"time"

	"github.com/jeremyhahn/go-authenticator/pkg/hid"
)

var (
	// ErrTimeout is returned when an operation's deadline passes with
	// nothing sent or received.
	ErrTimeout = errors.New("transport: timeout")

	// ErrClosed is returned when the connection has been closed.
	ErrClosed = errors.New("transport: closed")
)

// Status reports which half of a SendOrRecv took effect.
type Status int

const (
	// Sent means the outbound packet was delivered.
	Sent Status = iota

	// Received means an inbound packet arrived before the send and was
	// returned instead; the outbound packet was not delivered.
	Received

	// TimedOut means the deadline passed with neither.
	TimedOut
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Sent:
		return "sent"
	case Received:
		return "received"
	case TimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// Connection is a bidirectional packet stream. A negative timeout blocks
// indefinitely, zero polls, positive bounds the wait.
type Connection interface {
	// Recv returns the next inbound packet, or ErrTimeout if none
	// arrives within the timeout.
	Recv(timeout time.Duration) (*hid.Packet, error)

	// Send delivers one outbound packet, or returns ErrTimeout if the
	// peer does not take it within the timeout.
	Send(pkt *hid.Packet, timeout time.Duration) error

	// SendOrRecv delivers the packet unless an inbound packet is
	// already waiting, in which case that packet is returned instead
	// and the send is abandoned. At most one inbound packet is observed.
	// This is the window in which a busy operation can see a CANCEL.
	SendOrRecv(pkt *hid.Packet, timeout time.Duration) (Status, *hid.Packet, error)

	// Close tears the connection down. Blocked and future operations
	// return ErrClosed.
	Close() error
}
