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

package cli

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-authenticator/internal/config"
	"github.com/jeremyhahn/go-authenticator/internal/server"
	"github.com/jeremyhahn/go-authenticator/pkg/ctap"
	"github.com/jeremyhahn/go-authenticator/pkg/hid"
	"github.com/jeremyhahn/go-authenticator/pkg/transport"
)

// ioTimeout bounds each packet exchange with the device. Long waits are
// punctuated by keepalives well inside this window.
const ioTimeout = 2 * time.Second

// DeviceInfo is what a host learns about the device from the INIT
// handshake and a GetInfo query.
type DeviceInfo struct {
	AAGUID       string
	Versions     []string
	Options      map[string]bool
	MaxMsgSize   uint64
	Protocol     byte
	Major        byte
	Minor        byte
	Build        byte
	Capabilities hid.Capability
}

// DeviceVersion formats the version bytes advertised during INIT.
func (i *DeviceInfo) DeviceVersion() string {
	return fmt.Sprintf("%d.%d.%d", i.Major, i.Minor, i.Build)
}

// getInfoPayload mirrors the GetInfo response map.
type getInfoPayload struct {
	Versions   []string        `cbor:"1,keyasint"`
	AAGUID     []byte          `cbor:"3,keyasint"`
	Options    map[string]bool `cbor:"4,keyasint"`
	MaxMsgSize uint64          `cbor:"5,keyasint"`
}

// session is an in-process host attached to a full device over the pipe
// transport. Commands built on it exercise the same stack the daemon
// serves to the kernel.
type session struct {
	srv  *server.Server
	conn transport.Connection
	cid  hid.ChannelID

	// From the INIT handshake.
	protocol     byte
	version      [3]byte
	capabilities hid.Capability
}

// openSession assembles the device from cfg and performs the INIT
// handshake. The transport is forced to the in-memory pipe; everything
// else (storage, identity, presence, legacy bridge) follows cfg.
func openSession(cfg *config.Config) (*session, error) {
	cfg.Transport.Backend = "pipe"
	cfg.Metrics.Enabled = false
	if !globalConfig.Verbose {
		cfg.Logging.Level = "error"
	}

	srv, err := server.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(); err != nil {
		_ = srv.Shutdown()
		return nil, err
	}

	s := &session{srv: srv, conn: srv.HostConn()}
	if err := s.handshake(); err != nil {
		_ = srv.Shutdown()
		return nil, err
	}
	return s, nil
}

// Close shuts the in-process device down.
func (s *session) Close() error {
	return s.srv.Shutdown()
}

func (s *session) handshake() error {
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("authctl: generating nonce: %w", err)
	}

	resp, err := s.roundTrip(hid.Message{
		CID:     hid.ChannelBroadcast,
		Command: hid.CmdInit,
		Payload: nonce,
	})
	if err != nil {
		return err
	}
	if resp.Command != hid.CmdInit || len(resp.Payload) < 17 {
		return errors.New("authctl: malformed INIT response")
	}
	if !bytes.Equal(resp.Payload[:8], nonce) {
		return errors.New("authctl: INIT nonce mismatch")
	}

	s.cid = hid.ChannelID(binary.BigEndian.Uint32(resp.Payload[8:12]))
	s.protocol = resp.Payload[12]
	copy(s.version[:], resp.Payload[13:16])
	s.capabilities = hid.Capability(resp.Payload[16])
	return nil
}

// roundTrip sends one message and reassembles the response.
func (s *session) roundTrip(msg hid.Message) (*hid.Message, error) {
	packets, err := hid.SplitMessage(msg)
	if err != nil {
		return nil, err
	}
	for i := range packets {
		if err := s.conn.Send(&packets[i], ioTimeout); err != nil {
			return nil, fmt.Errorf("authctl: sending to device: %w", err)
		}
	}
	return s.readMessage()
}

// readMessage collects one response message from the device, verifying
// the continuation sequence and skipping keepalive reports.
func (s *session) readMessage() (*hid.Message, error) {
	for {
		first, err := s.conn.Recv(ioTimeout)
		if err != nil {
			return nil, fmt.Errorf("authctl: receiving from device: %w", err)
		}
		if first[4]&0x80 == 0 {
			return nil, errors.New("authctl: continuation packet without initialization")
		}

		cid := binary.BigEndian.Uint32(first[0:4])
		cmd := hid.Command(first[4] &^ 0x80)
		total := int(binary.BigEndian.Uint16(first[5:7]))
		if total > hid.MaxPayloadSize {
			return nil, fmt.Errorf("authctl: device announced %d byte response", total)
		}

		payload := make([]byte, 0, total)
		payload = append(payload, first[7:min(7+total, hid.PacketSize)]...)

		for seq := byte(0); len(payload) < total; seq++ {
			pkt, err := s.conn.Recv(ioTimeout)
			if err != nil {
				return nil, fmt.Errorf("authctl: receiving from device: %w", err)
			}
			if binary.BigEndian.Uint32(pkt[0:4]) != cid || pkt[4] != seq {
				return nil, errors.New("authctl: response sequence broken")
			}
			payload = append(payload, pkt[5:min(5+total-len(payload), hid.PacketSize)]...)
		}

		if cmd == hid.CmdKeepalive {
			continue
		}
		return &hid.Message{
			CID:     hid.ChannelID(cid),
			Command: cmd,
			Payload: payload,
		}, nil
	}
}

// errorFrom renders a device error response.
func errorFrom(msg *hid.Message) error {
	if len(msg.Payload) == 1 {
		return fmt.Errorf("authctl: device error: %s", hid.ErrorCode(msg.Payload[0]))
	}
	return errors.New("authctl: device error")
}

// ping echoes size random bytes off the device and reports the round
// trip time.
func (s *session) ping(size int) (time.Duration, error) {
	payload := make([]byte, size)
	if _, err := rand.Read(payload); err != nil {
		return 0, fmt.Errorf("authctl: generating payload: %w", err)
	}

	start := time.Now()
	resp, err := s.roundTrip(hid.Message{CID: s.cid, Command: hid.CmdPing, Payload: payload})
	if err != nil {
		return 0, err
	}
	rtt := time.Since(start)

	if resp.Command == hid.CmdError {
		return 0, errorFrom(resp)
	}
	if resp.Command != hid.CmdPing || !bytes.Equal(resp.Payload, payload) {
		return 0, errors.New("authctl: ping echo mismatch")
	}
	return rtt, nil
}

// wink asks the device for its attention signal.
func (s *session) wink() error {
	resp, err := s.roundTrip(hid.Message{CID: s.cid, Command: hid.CmdWink})
	if err != nil {
		return err
	}
	if resp.Command == hid.CmdError {
		return errorFrom(resp)
	}
	if resp.Command != hid.CmdWink {
		return errors.New("authctl: unexpected wink response")
	}
	return nil
}

// getInfo combines the INIT handshake fields with a GetInfo query.
func (s *session) getInfo() (*DeviceInfo, error) {
	resp, err := s.roundTrip(hid.Message{
		CID:     s.cid,
		Command: hid.CmdCBOR,
		Payload: []byte{ctap.CmdGetInfo},
	})
	if err != nil {
		return nil, err
	}
	if resp.Command == hid.CmdError {
		return nil, errorFrom(resp)
	}
	if resp.Command != hid.CmdCBOR || len(resp.Payload) == 0 {
		return nil, errors.New("authctl: malformed GetInfo response")
	}
	if resp.Payload[0] != byte(ctap.StatusOK) {
		return nil, fmt.Errorf("authctl: GetInfo failed with status 0x%02x", resp.Payload[0])
	}

	var payload getInfoPayload
	if err := cbor.Unmarshal(resp.Payload[1:], &payload); err != nil {
		return nil, fmt.Errorf("authctl: decoding GetInfo: %w", err)
	}

	id, err := uuid.FromBytes(payload.AAGUID)
	if err != nil {
		return nil, fmt.Errorf("authctl: decoding aaguid: %w", err)
	}

	return &DeviceInfo{
		AAGUID:       id.String(),
		Versions:     payload.Versions,
		Options:      payload.Options,
		MaxMsgSize:   payload.MaxMsgSize,
		Protocol:     s.protocol,
		Major:        s.version[0],
		Minor:        s.version[1],
		Build:        s.version[2],
		Capabilities: s.capabilities,
	}, nil
}
