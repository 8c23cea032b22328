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

// Package authenticator dispatches reassembled messages to the legacy
// bridge, the native command processor, or the wink handling, and owns
// the timed wink permission. It sits between the framing layer and the
// command engines: packets in, packets out.
package authenticator

import (
	"context"
	"errors"
	"time"

	"github.com/jeremyhahn/go-authenticator/pkg/clock"
	"github.com/jeremyhahn/go-authenticator/pkg/ctap"
	"github.com/jeremyhahn/go-authenticator/pkg/hid"
	"github.com/jeremyhahn/go-authenticator/pkg/logging"
	"github.com/jeremyhahn/go-authenticator/pkg/metrics"
	"github.com/jeremyhahn/go-authenticator/pkg/u2f"
)

// DefaultWinkDuration is how long a wink grant stays in force.
const DefaultWinkDuration = 5000 * time.Millisecond

// ErrNoProcessor is returned by NewHandler when no command processor is
// wired in.
var ErrNoProcessor = errors.New("authenticator: command processor is required")

// Config configures a Handler. Zero values select defaults.
type Config struct {
	// Clock drives framing timeouts and the wink grant.
	Clock clock.Clock

	// Bridge handles legacy MSG traffic. Nil selects the disabled
	// bridge, which also advertises the NMSG capability.
	Bridge u2f.Bridge

	// Processor handles native CBOR commands. Required.
	Processor ctap.Processor

	// Version is advertised in INIT responses.
	Version hid.DeviceVersion

	// MessageTimeout overrides the framing layer's reassembly timeout.
	MessageTimeout time.Duration

	// WinkDuration overrides DefaultWinkDuration.
	WinkDuration time.Duration

	// Logger receives dispatch debug output.
	Logger *logging.Logger
}

// Handler owns the protocol state machine and routes completed messages
// by opcode. Like the framing layer it is confined to the device loop and
// is not safe for concurrent use.
type Handler struct {
	proto     *hid.Protocol
	bridge    u2f.Bridge
	processor ctap.Processor
	wink      *TimedPermission
	winkFor   time.Duration
	log       *logging.Logger
}

// NewHandler creates a Handler with the given configuration.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Processor == nil {
		return nil, ErrNoProcessor
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSys(0)
	}
	if cfg.Bridge == nil {
		cfg.Bridge = u2f.Disabled()
	}
	if cfg.WinkDuration <= 0 {
		cfg.WinkDuration = DefaultWinkDuration
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.DefaultLogger()
	}

	caps := hid.CapWink | hid.CapCBOR
	if !cfg.Bridge.Enabled() {
		caps |= hid.CapNMsg
	}

	return &Handler{
		proto: hid.NewProtocol(hid.ProtocolConfig{
			Clock:          cfg.Clock,
			Version:        cfg.Version,
			Capabilities:   caps,
			MessageTimeout: cfg.MessageTimeout,
			Logger:         cfg.Logger,
		}),
		bridge:    cfg.Bridge,
		processor: cfg.Processor,
		wink:      NewTimedPermission(cfg.Clock),
		winkFor:   cfg.WinkDuration,
		log:       cfg.Logger,
	}, nil
}

// Capabilities returns the capability flags advertised in INIT responses.
func (h *Handler) Capabilities() hid.Capability {
	return h.proto.Capabilities()
}

// ProcessPacket runs one inbound report through the framing layer and,
// when that yields a complete message, through dispatch. The returned
// packets are ready to write back to the host; nil means the report was
// consumed silently.
func (h *Handler) ProcessPacket(ctx context.Context, pkt *hid.Packet) ([]hid.Packet, error) {
	msg := h.proto.ParsePacket(pkt)
	metrics.SetChannelsAllocated(float64(h.proto.Allocated()))
	if msg == nil {
		return nil, nil
	}

	start := time.Now()
	out := h.ProcessMessage(ctx, *msg)

	status := metrics.StatusSuccess
	if out.Command == hid.CmdError {
		status = metrics.StatusError
		if len(out.Payload) == 1 {
			metrics.RecordProtocolError(hid.ErrorCode(out.Payload[0]).String())
		}
	}
	metrics.RecordMessage(msg.Command.String(), status, time.Since(start).Seconds())

	return hid.SplitMessage(out)
}

// ProcessMessage dispatches one message and always produces exactly one
// response message, unlike packet parsing, which may stay silent. Every
// message except a fresh wink grant revokes the wink permission, so only
// the most recent user-visible action may wink.
func (h *Handler) ProcessMessage(ctx context.Context, msg hid.Message) hid.Message {
	h.wink.Revoke()

	switch msg.Command {
	case hid.CmdMsg:
		return h.processLegacy(msg)

	case hid.CmdCBOR:
		// Synchronous and atomic with respect to packet handling. The
		// processor may consult the user; cancellation is observed only
		// inside that wait.
		response := h.processor.ProcessCommand(ctx, msg.CID, msg.Payload)
		return hid.Message{CID: msg.CID, Command: hid.CmdCBOR, Payload: response}

	case hid.CmdWink:
		if len(msg.Payload) != 0 {
			return hid.ErrorMessage(msg.CID, hid.ErrInvalidLen)
		}
		h.wink.Start(h.winkFor)
		metrics.RecordWink()
		return msg

	case hid.CmdPing, hid.CmdInit, hid.CmdCancel, hid.CmdLock, hid.CmdKeepalive, hid.CmdError:
		// Already resolved by the framing layer.
		return msg

	default:
		h.log.Debugf("authenticator: rejecting unsupported command 0x%02x", byte(msg.Command))
		return hid.ErrorMessage(msg.CID, hid.ErrInvalidCmd)
	}
}

// processLegacy hands a MSG request to the bridge. Responses carry the
// status word convention of the legacy protocol: success appends the
// no-error trailer, failure returns the status word as the whole payload.
func (h *Handler) processLegacy(msg hid.Message) hid.Message {
	if !h.bridge.Enabled() {
		return hid.ErrorMessage(msg.CID, hid.ErrInvalidCmd)
	}

	response, err := h.bridge.Process(msg.CID, msg.Payload)
	if err != nil {
		var sw u2f.StatusWord
		if !errors.As(err, &sw) {
			sw = u2f.SWWrongData
		}
		return hid.Message{CID: msg.CID, Command: hid.CmdMsg, Payload: statusWordBytes(sw)}
	}

	out := make([]byte, 0, len(response)+2)
	out = append(out, response...)
	out = append(out, statusWordBytes(u2f.SWNoError)...)
	return hid.Message{CID: msg.CID, Command: hid.CmdMsg, Payload: out}
}

// ShouldWink reports whether a wink grant is currently in force. The
// device loop polls it to drive the indicator.
func (h *Handler) ShouldWink() bool {
	return h.wink.IsGranted()
}

// NoteUserAction re-grants the wink permission for the configured
// duration. The surrounding system calls it when it independently
// detects a wink-worthy event.
func (h *Handler) NoteUserAction() {
	h.wink.Start(h.winkFor)
}

func statusWordBytes(sw u2f.StatusWord) []byte {
	return []byte{byte(sw >> 8), byte(sw)}
}
