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

//go:build integration

package device

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-authenticator/internal/config"
	"github.com/jeremyhahn/go-authenticator/internal/server"
	"github.com/jeremyhahn/go-authenticator/pkg/ctap"
	"github.com/jeremyhahn/go-authenticator/pkg/hid"
	"github.com/jeremyhahn/go-authenticator/pkg/transport"
	"github.com/jeremyhahn/go-authenticator/pkg/u2f"
)

const ioTimeout = 2 * time.Second

// startDevice runs the full daemon stack over the pipe transport and
// hands back the host end.
func startDevice(t *testing.T, mutate func(*config.Config)) transport.Connection {
	t.Helper()

	cfg := config.Default()
	cfg.Transport.Backend = "pipe"
	cfg.Metrics.Enabled = false
	cfg.Logging.Level = "error"
	cfg.Presence.AutoConfirmDelayMS = 1
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := server.New(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Shutdown() })

	return srv.HostConn()
}

func sendMessage(t *testing.T, host transport.Connection, msg hid.Message) {
	t.Helper()

	packets, err := hid.SplitMessage(msg)
	require.NoError(t, err)
	for i := range packets {
		require.NoError(t, host.Send(&packets[i], ioTimeout))
	}
}

// recvMessage reassembles one message from the device, keepalives
// included.
func recvMessage(t *testing.T, host transport.Connection) hid.Message {
	t.Helper()

	first, err := host.Recv(ioTimeout)
	require.NoError(t, err)
	require.NotZero(t, first[4]&0x80, "expected an initialization packet")

	cid := binary.BigEndian.Uint32(first[0:4])
	cmd := hid.Command(first[4] &^ 0x80)
	total := int(binary.BigEndian.Uint16(first[5:7]))

	payload := make([]byte, 0, total)
	end := 7 + total
	if end > hid.PacketSize {
		end = hid.PacketSize
	}
	payload = append(payload, first[7:end]...)

	for seq := byte(0); len(payload) < total; seq++ {
		pkt, err := host.Recv(ioTimeout)
		require.NoError(t, err)
		require.Equal(t, cid, binary.BigEndian.Uint32(pkt[0:4]))
		require.Equal(t, seq, pkt[4])

		end := 5 + total - len(payload)
		if end > hid.PacketSize {
			end = hid.PacketSize
		}
		payload = append(payload, pkt[5:end]...)
	}

	return hid.Message{CID: hid.ChannelID(cid), Command: cmd, Payload: payload}
}

// recvResponse skips keepalive notifications and returns the next real
// response.
func recvResponse(t *testing.T, host transport.Connection) hid.Message {
	t.Helper()

	for {
		msg := recvMessage(t, host)
		if msg.Command == hid.CmdKeepalive {
			continue
		}
		return msg
	}
}

func initChannel(t *testing.T, host transport.Connection) hid.ChannelID {
	t.Helper()

	nonce := make([]byte, 8)
	_, err := rand.Read(nonce)
	require.NoError(t, err)

	sendMessage(t, host, hid.Message{
		CID:     hid.ChannelBroadcast,
		Command: hid.CmdInit,
		Payload: nonce,
	})
	resp := recvResponse(t, host)
	require.Equal(t, hid.CmdInit, resp.Command)
	require.Equal(t, nonce, resp.Payload[:8])

	return hid.ChannelID(binary.BigEndian.Uint32(resp.Payload[8:12]))
}

// TestDeviceLifecycleIntegration drives a complete host conversation:
// enumeration, transport echo, wink, the legacy bridge, native GetInfo,
// and a factory reset inside the boot window.
func TestDeviceLifecycleIntegration(t *testing.T) {
	host := startDevice(t, nil)
	cid := initChannel(t, host)

	// Fragmented echo across both directions.
	payload := make([]byte, 2000)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	sendMessage(t, host, hid.Message{CID: cid, Command: hid.CmdPing, Payload: payload})
	resp := recvResponse(t, host)
	require.Equal(t, hid.CmdPing, resp.Command)
	assert.True(t, bytes.Equal(payload, resp.Payload))

	// Wink acknowledges with an empty echo.
	sendMessage(t, host, hid.Message{CID: cid, Command: hid.CmdWink})
	resp = recvResponse(t, host)
	require.Equal(t, hid.CmdWink, resp.Command)
	assert.Empty(t, resp.Payload)

	// The legacy bridge answers U2F_VERSION with a status word trailer.
	sendMessage(t, host, hid.Message{
		CID:     cid,
		Command: hid.CmdMsg,
		Payload: []byte{0x00, 0x03, 0x00, 0x00},
	})
	resp = recvResponse(t, host)
	require.Equal(t, hid.CmdMsg, resp.Command)
	assert.Equal(t, []byte("U2F_V2"), resp.Payload[:len(resp.Payload)-2])
	trailer := binary.BigEndian.Uint16(resp.Payload[len(resp.Payload)-2:])
	assert.Equal(t, uint16(u2f.SWNoError), trailer)

	// Native GetInfo decodes canonically.
	sendMessage(t, host, hid.Message{CID: cid, Command: hid.CmdCBOR, Payload: []byte{ctap.CmdGetInfo}})
	resp = recvResponse(t, host)
	require.Equal(t, hid.CmdCBOR, resp.Command)
	require.Equal(t, byte(ctap.StatusOK), resp.Payload[0])

	var info struct {
		Versions []string `cbor:"1,keyasint"`
		AAGUID   []byte   `cbor:"3,keyasint"`
	}
	require.NoError(t, cbor.Unmarshal(resp.Payload[1:], &info))
	assert.Contains(t, info.Versions, "FIDO_2_0")
	require.Len(t, info.AAGUID, 16)

	// Reset inside the boot window: presence auto-confirms, identity
	// survives the wipe.
	sendMessage(t, host, hid.Message{CID: cid, Command: hid.CmdCBOR, Payload: []byte{ctap.CmdReset}})
	resp = recvResponse(t, host)
	require.Equal(t, hid.CmdCBOR, resp.Command)
	assert.Equal(t, []byte{byte(ctap.StatusOK)}, resp.Payload)

	sendMessage(t, host, hid.Message{CID: cid, Command: hid.CmdCBOR, Payload: []byte{ctap.CmdGetInfo}})
	resp = recvResponse(t, host)
	require.Equal(t, byte(ctap.StatusOK), resp.Payload[0])

	var after struct {
		AAGUID []byte `cbor:"3,keyasint"`
	}
	require.NoError(t, cbor.Unmarshal(resp.Payload[1:], &after))
	assert.Equal(t, info.AAGUID, after.AAGUID)
}

// TestChannelBusyIntegration checks that a second channel is refused
// while the first holds a partially assembled message.
func TestChannelBusyIntegration(t *testing.T) {
	host := startDevice(t, nil)
	first := initChannel(t, host)
	second := initChannel(t, host)

	payload := make([]byte, 100)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	packets, err := hid.SplitMessage(hid.Message{CID: first, Command: hid.CmdPing, Payload: payload})
	require.NoError(t, err)
	require.Len(t, packets, 2)

	// Open a message on the first channel, then barge in on the second.
	require.NoError(t, host.Send(&packets[0], ioTimeout))

	intruder, err := hid.SplitMessage(hid.Message{CID: second, Command: hid.CmdPing, Payload: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, host.Send(&intruder[0], ioTimeout))

	busy := recvResponse(t, host)
	assert.Equal(t, second, busy.CID)
	assert.Equal(t, hid.CmdError, busy.Command)
	assert.Equal(t, []byte{byte(hid.ErrChannelBusy)}, busy.Payload)

	// The first channel finishes undisturbed.
	require.NoError(t, host.Send(&packets[1], ioTimeout))
	echo := recvResponse(t, host)
	assert.Equal(t, first, echo.CID)
	require.Equal(t, hid.CmdPing, echo.Command)
	assert.True(t, bytes.Equal(payload, echo.Payload))
}

// TestPresenceDenyIntegration checks that a denied presence wait emits
// keepalives and ends in a user action timeout.
func TestPresenceDenyIntegration(t *testing.T) {
	host := startDevice(t, func(cfg *config.Config) {
		cfg.Presence.Mode = "deny"
		cfg.Presence.TotalTimeoutMS = 300
		cfg.Presence.KeepaliveDelayMS = 50
	})
	cid := initChannel(t, host)

	sendMessage(t, host, hid.Message{CID: cid, Command: hid.CmdCBOR, Payload: []byte{ctap.CmdReset}})

	keepalives := 0
	for {
		msg := recvMessage(t, host)
		if msg.Command == hid.CmdKeepalive {
			keepalives++
			assert.Equal(t, []byte{byte(hid.StatusUpNeeded)}, msg.Payload)
			continue
		}
		require.Equal(t, hid.CmdCBOR, msg.Command)
		assert.Equal(t, []byte{byte(ctap.StatusUserActionTimeout)}, msg.Payload)
		break
	}
	assert.Greater(t, keepalives, 0)
}
