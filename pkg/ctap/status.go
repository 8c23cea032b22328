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

package ctap

import "fmt"

// Status is the first byte of every native-protocol response. Anything
// but StatusOK ends the response; success may carry CBOR after it.
type Status byte

const (
	StatusOK                Status = 0x00
	StatusInvalidCommand    Status = 0x01
	StatusInvalidLength     Status = 0x03
	StatusInvalidCBOR       Status = 0x12
	StatusKeepaliveCancel   Status = 0x2d
	StatusUserActionTimeout Status = 0x2f
	StatusNotAllowed        Status = 0x30
	StatusOther             Status = 0x7f
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidCommand:
		return "invalid command"
	case StatusInvalidLength:
		return "invalid length"
	case StatusInvalidCBOR:
		return "invalid cbor"
	case StatusKeepaliveCancel:
		return "keepalive cancel"
	case StatusUserActionTimeout:
		return "user action timeout"
	case StatusNotAllowed:
		return "not allowed"
	case StatusOther:
		return "unspecified error"
	default:
		return fmt.Sprintf("status 0x%02x", byte(s))
	}
}
