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

import (
	"encoding/binary"
	"time"

	"github.com/jeremyhahn/go-authenticator/pkg/clock"
	"github.com/jeremyhahn/go-authenticator/pkg/logging"
)

// DefaultMessageTimeout bounds the gap between consecutive packets of one
// message before the transaction is abandoned.
const DefaultMessageTimeout = 3000 * time.Millisecond

// maxLockSeconds bounds the LOCK command argument.
const maxLockSeconds = 10

// ProtocolConfig configures a Protocol. Zero values select defaults.
type ProtocolConfig struct {
	// Clock drives reassembly and lock timeouts.
	Clock clock.Clock

	// Version is advertised in INIT responses.
	Version DeviceVersion

	// Capabilities is advertised in INIT responses. Zero selects
	// CapWink|CapCBOR.
	Capabilities Capability

	// MessageTimeout overrides DefaultMessageTimeout.
	MessageTimeout time.Duration

	// Logger receives debug output for silently dropped packets.
	Logger *logging.Logger
}

// assembly is the single Receiving slot: one in-flight multi-packet
// message, bound to its channel.
type assembly struct {
	cid      ChannelID
	cmd      Command
	payload  []byte
	total    int
	seq      byte
	deadline clock.Timer
}

// channelLock is an armed LOCK grant.
type channelLock struct {
	cid   ChannelID
	timer clock.Timer
}

// Protocol reassembles packets into messages, enforces the per-channel
// exclusivity rules, and resolves transport-level commands (INIT, PING,
// CANCEL, LOCK) before the dispatcher sees them. It is confined to the
// device loop and is not safe for concurrent use.
type Protocol struct {
	clock   clock.Clock
	log     *logging.Logger
	version DeviceVersion
	caps    Capability
	timeout time.Duration

	recv      *assembly
	lock      *channelLock
	allocated uint32
}

// NewProtocol creates a Protocol with the given configuration.
func NewProtocol(cfg ProtocolConfig) *Protocol {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSys(0)
	}
	if cfg.Capabilities == 0 {
		cfg.Capabilities = CapWink | CapCBOR
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = DefaultMessageTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.DefaultLogger()
	}
	return &Protocol{
		clock:   cfg.Clock,
		log:     cfg.Logger,
		version: cfg.Version,
		caps:    cfg.Capabilities,
		timeout: cfg.MessageTimeout,
	}
}

// Capabilities returns the advertised capability flags.
func (p *Protocol) Capabilities() Capability { return p.caps }

// Allocated returns how many channels have been handed out since boot.
func (p *Protocol) Allocated() uint32 { return p.allocated }

// Receiving reports whether a multi-packet reassembly is in progress.
func (p *Protocol) Receiving() bool { return p.recv != nil }

// ParsePacket consumes one packet and returns a completed message when a
// full logical message has arrived for its channel, an error message the
// packet provoked, or nil when the packet only advanced internal state or
// was malformed beyond attribution.
func (p *Protocol) ParsePacket(pkt *Packet) *Message {
	// Timeouts are detected on the next arrival; there is no background
	// task. The stale channel is told, the arriving packet is dropped and
	// its channel retries.
	if p.recv != nil && p.clock.Elapsed(p.recv.deadline) {
		stale := p.recv.cid
		p.recv = nil
		p.log.Debugf("hid: reassembly on channel 0x%08x timed out", uint32(stale))
		m := ErrorMessage(stale, ErrMsgTimeout)
		return &m
	}
	if p.lock != nil && p.clock.Elapsed(p.lock.timer) {
		p.lock = nil
	}

	cid := pkt.ChannelID()
	if cid == ChannelReserved {
		// A response would be addressed to the reserved channel.
		p.log.Debug("hid: packet on reserved channel dropped")
		return nil
	}

	// One receiving channel system-wide; everyone else is turned away.
	if p.recv != nil && cid != p.recv.cid {
		m := ErrorMessage(cid, ErrChannelBusy)
		return &m
	}

	// An armed lock excludes every other channel, idle or not.
	if p.lock != nil && cid != p.lock.cid {
		if pkt.IsInit() {
			m := ErrorMessage(cid, ErrChannelBusy)
			return &m
		}
		p.log.Debugf("hid: continuation on channel 0x%08x dropped while locked", uint32(cid))
		return nil
	}

	if cid == ChannelBroadcast {
		return p.parseBroadcast(pkt)
	}

	if uint32(cid) > p.allocated {
		m := ErrorMessage(cid, ErrInvalidChannel)
		return &m
	}

	if pkt.IsInit() {
		return p.parseInit(cid, pkt)
	}
	return p.parseCont(cid, pkt)
}

// parseBroadcast handles the broadcast channel, which only carries
// channel-allocation requests.
func (p *Protocol) parseBroadcast(pkt *Packet) *Message {
	if !pkt.IsInit() {
		p.log.Debug("hid: continuation on broadcast channel dropped")
		return nil
	}
	if pkt.Command() != CmdInit {
		m := ErrorMessage(ChannelBroadcast, ErrInvalidChannel)
		return &m
	}
	return p.handleInit(ChannelBroadcast, pkt)
}

// parseInit handles an initialization packet on an allocated channel. Any
// reception in progress is known to belong to this channel.
func (p *Protocol) parseInit(cid ChannelID, pkt *Packet) *Message {
	switch pkt.Command() {
	case CmdCancel:
		// Cancels an in-flight reception; never answered at this layer.
		p.recv = nil
		return nil
	case CmdInit:
		// Resynchronization: abort any reception and re-advertise.
		p.recv = nil
		return p.handleInit(cid, pkt)
	}

	if p.recv != nil {
		// A fresh initialization mid-reception is a sequencing violation.
		p.recv = nil
		m := ErrorMessage(cid, ErrInvalidSeq)
		return &m
	}

	total := pkt.declaredLen()
	if total > MaxPayloadSize {
		m := ErrorMessage(cid, ErrInvalidLen)
		return &m
	}
	if total <= InitPayloadSize {
		msg := &Message{
			CID:     cid,
			Command: pkt.Command(),
			Payload: append([]byte(nil), pkt.initPayload()...),
		}
		return p.resolve(msg)
	}

	payload := make([]byte, 0, total)
	payload = append(payload, pkt.initPayload()...)
	p.recv = &assembly{
		cid:      cid,
		cmd:      pkt.Command(),
		payload:  payload,
		total:    total,
		deadline: p.clock.MakeTimer(p.timeout),
	}
	return nil
}

// parseCont handles a continuation packet on an allocated channel.
func (p *Protocol) parseCont(cid ChannelID, pkt *Packet) *Message {
	if p.recv == nil {
		p.log.Debugf("hid: continuation without reception on channel 0x%08x", uint32(cid))
		return nil
	}
	if pkt.Seq() != p.recv.seq {
		p.recv = nil
		m := ErrorMessage(cid, ErrInvalidSeq)
		return &m
	}
	p.recv.seq++

	remaining := p.recv.total - len(p.recv.payload)
	p.recv.payload = append(p.recv.payload, pkt.contPayload(remaining)...)
	if len(p.recv.payload) < p.recv.total {
		p.recv.deadline = p.clock.MakeTimer(p.timeout)
		return nil
	}

	msg := &Message{CID: cid, Command: p.recv.cmd, Payload: p.recv.payload}
	p.recv = nil
	return p.resolve(msg)
}

// handleInit answers a channel-allocation or resynchronization request.
// The response always travels on the channel the request arrived on; a
// newly allocated channel is carried inside the payload.
func (p *Protocol) handleInit(cid ChannelID, pkt *Packet) *Message {
	if pkt.declaredLen() != NonceSize {
		m := ErrorMessage(cid, ErrInvalidLen)
		return &m
	}

	advertised := cid
	if cid == ChannelBroadcast {
		if p.allocated >= uint32(ChannelBroadcast)-1 {
			// Channel space exhausted; wrapping into live channels would
			// be worse than refusing.
			m := ErrorMessage(cid, ErrOther)
			return &m
		}
		p.allocated++
		advertised = ChannelID(p.allocated)
	}

	payload := make([]byte, InitResponseSize)
	copy(payload[0:NonceSize], pkt.initPayload())
	binary.BigEndian.PutUint32(payload[8:12], uint32(advertised))
	payload[12] = ProtocolVersion
	payload[13] = p.version.Major
	payload[14] = p.version.Minor
	payload[15] = p.version.Build
	payload[16] = byte(p.caps)
	return &Message{CID: cid, Command: CmdInit, Payload: payload}
}

// resolve applies transport-level semantics to a completed message. Only
// LOCK carries state at this layer; everything else passes through to the
// dispatcher untouched.
func (p *Protocol) resolve(m *Message) *Message {
	if m.Command != CmdLock {
		return m
	}
	if len(m.Payload) != 1 {
		e := ErrorMessage(m.CID, ErrInvalidLen)
		return &e
	}
	secs := m.Payload[0]
	if secs > maxLockSeconds {
		e := ErrorMessage(m.CID, ErrInvalidPar)
		return &e
	}
	if secs == 0 {
		p.lock = nil
	} else {
		p.lock = &channelLock{
			cid:   m.CID,
			timer: p.clock.MakeTimer(time.Duration(secs) * time.Second),
		}
	}
	ack := Message{CID: m.CID, Command: CmdLock}
	return &ack
}
