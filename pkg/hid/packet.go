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

import "encoding/binary"

// Packet is one 64-byte unit on the wire. Bytes 0-3 carry the channel ID
// big-endian; byte 4 is either the initialization marker OR-ed with a
// command opcode, or a continuation sequence number with the top bit
// clear. Unused trailing bytes are zero.
type Packet [PacketSize]byte

// ParsePacket copies a raw report into a Packet. Short reports are
// rejected; longer ones are truncated to the packet size.
func ParsePacket(raw []byte) (*Packet, error) {
	if len(raw) < PacketSize {
		return nil, ErrShortPacket
	}
	var p Packet
	copy(p[:], raw[:PacketSize])
	return &p, nil
}

// ChannelID returns the channel the packet is addressed to.
func (p *Packet) ChannelID() ChannelID {
	return ChannelID(binary.BigEndian.Uint32(p[0:4]))
}

// IsInit reports whether the packet starts a message.
func (p *Packet) IsInit() bool {
	return p[4]&initMarker != 0
}

// Command returns the opcode of an initialization packet.
func (p *Packet) Command() Command {
	return Command(p[4] &^ initMarker)
}

// Seq returns the sequence number of a continuation packet.
func (p *Packet) Seq() byte {
	return p[4]
}

// declaredLen returns the total payload length announced by an
// initialization packet.
func (p *Packet) declaredLen() int {
	return int(binary.BigEndian.Uint16(p[5:7]))
}

// initPayload returns the payload bytes of an initialization packet,
// clipped to the declared length. The slice aliases the packet.
func (p *Packet) initPayload() []byte {
	n := p.declaredLen()
	if n > InitPayloadSize {
		n = InitPayloadSize
	}
	return p[7 : 7+n]
}

// contPayload returns up to remaining payload bytes of a continuation
// packet. The slice aliases the packet.
func (p *Packet) contPayload(remaining int) []byte {
	if remaining > ContPayloadSize {
		remaining = ContPayloadSize
	}
	return p[5 : 5+remaining]
}

// initPacket builds the packet that starts a message. totalLen is the
// declared length of the whole payload; chunk is the slice carried by
// this packet.
func initPacket(cid ChannelID, cmd Command, totalLen int, chunk []byte) Packet {
	var p Packet
	binary.BigEndian.PutUint32(p[0:4], uint32(cid))
	p[4] = initMarker | byte(cmd)
	binary.BigEndian.PutUint16(p[5:7], uint16(totalLen))
	copy(p[7:], chunk)
	return p
}

// contPacket builds the sequenced packet that continues a message.
func contPacket(cid ChannelID, seq byte, chunk []byte) Packet {
	var p Packet
	binary.BigEndian.PutUint32(p[0:4], uint32(cid))
	p[4] = seq
	copy(p[5:], chunk)
	return p
}
