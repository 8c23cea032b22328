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

// Package u2f answers legacy CTAP1 traffic. Hosts that predate CTAP2
// probe authenticators with U2F APDUs; the bridge keeps them satisfied
// with version information while registration and assertion stay with
// the native protocol.
package u2f

import (
	"fmt"

	"github.com/jeremyhahn/go-authenticator/pkg/hid"
)

// StatusWord is an ISO 7816 response status. Failed requests travel back
// to the host as the bare 2-byte word, so StatusWord doubles as the error
// type for the bridge.
type StatusWord uint16

const (
	// SWNoError is appended to every successful response.
	SWNoError StatusWord = 0x9000

	// SWConditionsNotSatisfied asks the host to retry with user presence.
	SWConditionsNotSatisfied StatusWord = 0x6985

	// SWWrongData rejects an unparseable or unknown request body.
	SWWrongData StatusWord = 0x6a80

	// SWWrongLength rejects a request whose framing lengths disagree.
	SWWrongLength StatusWord = 0x6700

	// SWClaNotSupported rejects a nonzero instruction class.
	SWClaNotSupported StatusWord = 0x6e00

	// SWInsNotSupported rejects an instruction this bridge does not carry.
	SWInsNotSupported StatusWord = 0x6d00
)

// Error implements the error interface.
func (sw StatusWord) Error() string {
	return fmt.Sprintf("u2f: status word 0x%04x", uint16(sw))
}

// Bridge processes legacy messages addressed to a channel. A nil error
// means the response bytes get the no-error trailer; a StatusWord error
// becomes the entire response.
type Bridge interface {
	// Enabled reports whether legacy traffic is accepted at all. A
	// disabled bridge never sees Process.
	Enabled() bool

	// Process handles one request and returns the response body.
	Process(cid hid.ChannelID, request []byte) ([]byte, error)
}

// U2F instruction bytes.
const (
	insRegister     = 0x01
	insAuthenticate = 0x02
	insVersion      = 0x03
)

// versionString is the protocol revision advertised by U2F_VERSION.
const versionString = "U2F_V2"

type versionBridge struct{}

// NewBridge returns the standard bridge: it answers U2F_VERSION and
// refuses register and authenticate, steering hosts to the native
// protocol for anything that touches credentials.
func NewBridge() Bridge {
	return versionBridge{}
}

func (versionBridge) Enabled() bool { return true }

func (versionBridge) Process(cid hid.ChannelID, request []byte) ([]byte, error) {
	apdu, err := parseAPDU(request)
	if err != nil {
		return nil, err
	}
	if apdu.CLA != 0 {
		return nil, SWClaNotSupported
	}

	switch apdu.INS {
	case insVersion:
		if len(apdu.Data) != 0 {
			return nil, SWWrongLength
		}
		return []byte(versionString), nil
	case insRegister, insAuthenticate:
		return nil, SWInsNotSupported
	default:
		return nil, SWInsNotSupported
	}
}

type disabledBridge struct{}

// Disabled returns the bridge used when legacy support is switched off.
// The dispatcher answers for it, so Process never runs.
func Disabled() Bridge {
	return disabledBridge{}
}

func (disabledBridge) Enabled() bool { return false }

func (disabledBridge) Process(cid hid.ChannelID, request []byte) ([]byte, error) {
	return nil, SWInsNotSupported
}
