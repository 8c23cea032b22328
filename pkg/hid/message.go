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

package hid

// Message is one logical request or response: a command addressed to a
// channel, carrying a bounded payload.
type Message struct {
	CID     ChannelID
	Command Command
	Payload []byte
}

// SplitMessage serializes a message into one initialization packet
// followed by as many continuation packets as needed, zero-padding the
// final packet. It fails only when the payload exceeds MaxPayloadSize.
func SplitMessage(m Message) ([]Packet, error) {
	if len(m.Payload) > MaxPayloadSize {
		return nil, ErrMessageTooLarge
	}

	first := m.Payload
	if len(first) > InitPayloadSize {
		first = first[:InitPayloadSize]
	}
	packets := []Packet{initPacket(m.CID, m.Command, len(m.Payload), first)}

	rest := m.Payload[len(first):]
	for seq := byte(0); len(rest) > 0; seq++ {
		chunk := rest
		if len(chunk) > ContPayloadSize {
			chunk = chunk[:ContPayloadSize]
		}
		packets = append(packets, contPacket(m.CID, seq, chunk))
		rest = rest[len(chunk):]
	}
	return packets, nil
}

// ErrorMessage builds the single-byte error response for a channel.
func ErrorMessage(cid ChannelID, code ErrorCode) Message {
	return Message{CID: cid, Command: CmdError, Payload: []byte{byte(code)}}
}

// KeepaliveMessage builds the status notification sent while a request
// is pending on a channel.
func KeepaliveMessage(cid ChannelID, status KeepaliveStatus) Message {
	return Message{CID: cid, Command: CmdKeepalive, Payload: []byte{byte(status)}}
}
