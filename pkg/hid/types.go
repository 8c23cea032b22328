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

// Package hid implements the device side of the CTAPHID transport: 64-byte
// packet framing, per-channel message reassembly, and the transport-level
// commands (INIT, PING, CANCEL, LOCK) that are resolved before a message
// ever reaches the command dispatcher.
package hid

import "errors"

// Protocol-level errors
var (
	ErrMessageTooLarge = errors.New("hid: message payload exceeds maximum size")
	ErrShortPacket     = errors.New("hid: packet shorter than 64 bytes")
)

// Packet and payload sizes
const (
	// PacketSize is the fixed size of every packet on the wire.
	PacketSize = 64

	// InitPayloadSize is the payload capacity of an initialization packet
	// (64 bytes minus channel, command, and length header).
	InitPayloadSize = PacketSize - 7

	// ContPayloadSize is the payload capacity of a continuation packet
	// (64 bytes minus channel and sequence header).
	ContPayloadSize = PacketSize - 5

	// MaxPayloadSize is the largest logical message: one initialization
	// packet plus 128 continuations (sequence numbers are 7-bit).
	MaxPayloadSize = InitPayloadSize + 128*ContPayloadSize

	// NonceSize is the nonce length of the INIT handshake.
	NonceSize = 8

	// InitResponseSize is the payload length of an INIT response.
	InitResponseSize = NonceSize + 4 + 1 + 3 + 1

	// ProtocolVersion is the transport protocol version advertised in the
	// INIT response.
	ProtocolVersion = 2
)

// ChannelID identifies one logical conversation. Channels are allocated
// sequentially from 1 by the INIT handshake.
type ChannelID uint32

const (
	// ChannelReserved is never valid on the wire.
	ChannelReserved ChannelID = 0x00000000

	// ChannelBroadcast carries only channel-allocation INIT requests.
	ChannelBroadcast ChannelID = 0xffffffff
)

// Command is the 7-bit opcode carried by an initialization packet. On the
// wire it is OR-ed with the initialization marker bit.
type Command byte

// Transport commands
const (
	CmdPing      Command = 0x01
	CmdMsg       Command = 0x03
	CmdLock      Command = 0x04
	CmdInit      Command = 0x06
	CmdWink      Command = 0x08
	CmdCBOR      Command = 0x10
	CmdCancel    Command = 0x11
	CmdKeepalive Command = 0x3b
	CmdError     Command = 0x3f

	// CmdVendorFirst through CmdVendorLast is the vendor-reserved range.
	CmdVendorFirst Command = 0x40
	CmdVendorLast  Command = 0x7f
)

// initMarker is the top bit of byte 4, distinguishing initialization
// packets from continuations.
const initMarker byte = 0x80

// Capability flags advertised in the INIT response.
type Capability byte

const (
	// CapWink indicates the device answers WINK.
	CapWink Capability = 0x01

	// CapCBOR indicates the device accepts native CBOR commands.
	CapCBOR Capability = 0x04

	// CapNMsg indicates the device does not accept legacy MSG commands.
	CapNMsg Capability = 0x08
)

// KeepaliveStatus is the single-byte payload of a keepalive notification.
type KeepaliveStatus byte

const (
	// StatusProcessing reports that a request is still being worked on.
	StatusProcessing KeepaliveStatus = 0x01

	// StatusUpNeeded reports that the device is waiting for user presence.
	StatusUpNeeded KeepaliveStatus = 0x02
)

// ErrorCode is the single-byte payload of an error response.
type ErrorCode byte

const (
	ErrInvalidCmd     ErrorCode = 0x01
	ErrInvalidPar     ErrorCode = 0x02
	ErrInvalidLen     ErrorCode = 0x03
	ErrInvalidSeq     ErrorCode = 0x04
	ErrMsgTimeout     ErrorCode = 0x05
	ErrChannelBusy    ErrorCode = 0x06
	ErrLockRequired   ErrorCode = 0x0a
	ErrInvalidChannel ErrorCode = 0x0b
	ErrOther          ErrorCode = 0x7f
)

// String returns a short name for logs and metrics labels.
func (e ErrorCode) String() string {
	switch e {
	case ErrInvalidCmd:
		return "invalid_cmd"
	case ErrInvalidPar:
		return "invalid_par"
	case ErrInvalidLen:
		return "invalid_len"
	case ErrInvalidSeq:
		return "invalid_seq"
	case ErrMsgTimeout:
		return "msg_timeout"
	case ErrChannelBusy:
		return "channel_busy"
	case ErrLockRequired:
		return "lock_required"
	case ErrInvalidChannel:
		return "invalid_channel"
	case ErrOther:
		return "other"
	default:
		return "unknown"
	}
}

// String returns a short name for logs and metrics labels.
func (c Command) String() string {
	switch c {
	case CmdPing:
		return "ping"
	case CmdMsg:
		return "msg"
	case CmdLock:
		return "lock"
	case CmdInit:
		return "init"
	case CmdWink:
		return "wink"
	case CmdCBOR:
		return "cbor"
	case CmdCancel:
		return "cancel"
	case CmdKeepalive:
		return "keepalive"
	case CmdError:
		return "error"
	default:
		if c >= CmdVendorFirst && c <= CmdVendorLast {
			return "vendor"
		}
		return "unknown"
	}
}

// DeviceVersion is the device release advertised in the INIT response.
type DeviceVersion struct {
	Major byte
	Minor byte
	Build byte
}
