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

// Package ctap implements the native command protocol. Requests arrive
// as one command byte plus CBOR parameters; responses leave as one status
// byte plus CTAP2-canonical CBOR. Status bytes live entirely inside this
// layer and are never surfaced as packet-level errors.
package ctap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-authenticator/pkg/clock"
	"github.com/jeremyhahn/go-authenticator/pkg/hid"
	"github.com/jeremyhahn/go-authenticator/pkg/logging"
	"github.com/jeremyhahn/go-authenticator/pkg/presence"
	"github.com/jeremyhahn/go-authenticator/pkg/storage"
)

// CTAP command bytes.
const (
	CmdMakeCredential   byte = 0x01
	CmdGetAssertion     byte = 0x02
	CmdGetInfo          byte = 0x04
	CmdClientPIN        byte = 0x06
	CmdReset            byte = 0x07
	CmdGetNextAssertion byte = 0x08
	CmdSelection        byte = 0x0b
)

// DefaultResetWindow is how long after boot a factory reset is honored.
const DefaultResetWindow = 10 * time.Second

// aaguidKey is where the device identity lives in storage.
const aaguidKey = "aaguid"

// Processor handles one native-protocol request addressed to a channel
// and returns the complete response. It never returns packet-level
// errors; every failure is a status byte.
type Processor interface {
	ProcessCommand(ctx context.Context, cid hid.ChannelID, request []byte) []byte
}

// Presence runs a user-presence check for a channel. It is satisfied by
// *presence.Coordinator.
type Presence interface {
	Await(ctx context.Context, cid hid.ChannelID) error
}

// ctap2Enc produces CTAP2-canonical CBOR, which hosts require of
// authenticator responses.
var ctap2Enc = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CTAP2EncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// Config configures an Engine.
type Config struct {
	// Store holds the device identity and everything Reset wipes.
	Store storage.Backend

	// Presence is consulted by Reset and Selection.
	Presence Presence

	// Clock bounds the reset window.
	Clock clock.Clock

	// LegacyEnabled adds the legacy protocol revision to GetInfo.
	LegacyEnabled bool

	// AAGUID pins the device identity. Zero lets the engine load the
	// stored identity or mint one on first boot.
	AAGUID uuid.UUID

	// ResetWindow overrides DefaultResetWindow.
	ResetWindow time.Duration

	Logger *logging.Logger
}

// Engine is the built-in processor: device information, factory reset and
// selection. Credential commands answer invalid-command until a
// credential engine takes them over.
type Engine struct {
	store    storage.Backend
	presence Presence
	clock    clock.Clock
	log      *logging.Logger
	legacy   bool

	// Reset is only allowed while this timer is live.
	bootWindow clock.Timer

	aaguid uuid.UUID
}

var _ Processor = (*Engine)(nil)

// NewEngine loads or creates the device identity and arms the reset
// window.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("ctap: store is required")
	}
	if cfg.Presence == nil {
		return nil, fmt.Errorf("ctap: presence is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSys(0)
	}
	if cfg.ResetWindow <= 0 {
		cfg.ResetWindow = DefaultResetWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.DefaultLogger()
	}

	e := &Engine{
		store:      cfg.Store,
		presence:   cfg.Presence,
		clock:      cfg.Clock,
		log:        cfg.Logger,
		legacy:     cfg.LegacyEnabled,
		bootWindow: cfg.Clock.MakeTimer(cfg.ResetWindow),
	}
	if cfg.AAGUID != uuid.Nil {
		e.aaguid = cfg.AAGUID
		if err := e.store.Put(aaguidKey, e.aaguid[:]); err != nil {
			return nil, fmt.Errorf("ctap: persist aaguid: %w", err)
		}
	} else if err := e.loadAAGUID(); err != nil {
		return nil, err
	}
	return e, nil
}

// AAGUID returns the persistent device identity.
func (e *Engine) AAGUID() uuid.UUID { return e.aaguid }

// loadAAGUID reads the device identity, minting and persisting one on
// first boot or when the stored value is unusable.
func (e *Engine) loadAAGUID() error {
	raw, err := e.store.Get(aaguidKey)
	if err == nil {
		id, err := uuid.FromBytes(raw)
		if err == nil {
			e.aaguid = id
			return nil
		}
		e.log.Warnf("ctap: stored aaguid unusable, minting a new one: %v", err)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("ctap: load aaguid: %w", err)
	}

	e.aaguid = uuid.New()
	if err := e.store.Put(aaguidKey, e.aaguid[:]); err != nil {
		return fmt.Errorf("ctap: persist aaguid: %w", err)
	}
	return nil
}

// ProcessCommand implements Processor.
func (e *Engine) ProcessCommand(ctx context.Context, cid hid.ChannelID, request []byte) []byte {
	if len(request) == 0 {
		return statusOnly(StatusInvalidLength)
	}
	cmd, body := request[0], request[1:]

	switch cmd {
	case CmdGetInfo:
		return e.getInfo(body)
	case CmdReset:
		return e.reset(ctx, cid)
	case CmdSelection:
		return e.selection(ctx, cid)
	default:
		return statusOnly(StatusInvalidCommand)
	}
}

// getInfo answers authenticatorGetInfo. Parameters are ignored; the
// command takes none.
func (e *Engine) getInfo(body []byte) []byte {
	versions := []string{"FIDO_2_0"}
	if e.legacy {
		versions = append(versions, "U2F_V2")
	}

	info := map[int]interface{}{
		// 0x01: versions
		0x01: versions,
		// 0x03: AAGUID
		0x03: e.aaguid[:],
		// 0x04: options
		0x04: map[string]bool{
			"rk": false,
			"up": true,
		},
		// 0x05: maxMsgSize
		0x05: uint(hid.MaxPayloadSize),
	}

	enc, err := ctap2Enc.Marshal(info)
	if err != nil {
		e.log.Errorf("ctap: encoding device info: %v", err)
		return statusOnly(StatusOther)
	}
	return append([]byte{byte(StatusOK)}, enc...)
}

// reset restores factory state. It is a boot-time operation: past the
// window it is refused outright, before any presence prompt.
func (e *Engine) reset(ctx context.Context, cid hid.ChannelID) []byte {
	if e.clock.Elapsed(e.bootWindow) {
		return statusOnly(StatusNotAllowed)
	}
	if err := e.presence.Await(ctx, cid); err != nil {
		return statusOnly(presenceStatus(err))
	}
	if err := storage.Wipe(e.store); err != nil {
		e.log.Errorf("ctap: reset wipe: %v", err)
		return statusOnly(StatusOther)
	}
	// The device identity survives a factory reset.
	if err := e.store.Put(aaguidKey, e.aaguid[:]); err != nil {
		e.log.Errorf("ctap: reset persist aaguid: %v", err)
		return statusOnly(StatusOther)
	}
	e.log.Info("ctap: factory reset complete")
	return statusOnly(StatusOK)
}

// selection lets the user pick this authenticator among several. The
// touch is the whole operation.
func (e *Engine) selection(ctx context.Context, cid hid.ChannelID) []byte {
	if err := e.presence.Await(ctx, cid); err != nil {
		return statusOnly(presenceStatus(err))
	}
	return statusOnly(StatusOK)
}

// presenceStatus maps a failed presence check to its wire status.
func presenceStatus(err error) Status {
	if errors.Is(err, presence.ErrCancelled) {
		return StatusKeepaliveCancel
	}
	return StatusUserActionTimeout
}

func statusOnly(s Status) []byte {
	return []byte{byte(s)}
}
