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

package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-authenticator/pkg/hid"
)

func testPacket(fill byte) *hid.Packet {
	var pkt hid.Packet
	for i := range pkt {
		pkt[i] = fill
	}
	return &pkt
}

func TestPipe_SendRecv(t *testing.T) {
	host, device := Pipe()
	defer host.Close()

	pkt := testPacket(0xAA)
	require.NoError(t, host.Send(pkt, time.Second))

	got, err := device.Recv(time.Second)
	require.NoError(t, err)
	assert.Equal(t, pkt, got)
}

func TestPipe_RecvTimeout(t *testing.T) {
	_, device := Pipe()

	_, err := device.Recv(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPipe_RecvZeroPolls(t *testing.T) {
	host, device := Pipe()
	defer host.Close()

	_, err := device.Recv(0)
	assert.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, host.Send(testPacket(1), 0))
	got, err := device.Recv(0)
	require.NoError(t, err)
	assert.Equal(t, testPacket(1), got)
}

func TestPipe_SendOrRecv_Quiet(t *testing.T) {
	host, device := Pipe()
	defer host.Close()

	status, in, err := device.SendOrRecv(testPacket(2), time.Second)
	require.NoError(t, err)
	assert.Equal(t, Sent, status)
	assert.Nil(t, in)

	got, err := host.Recv(0)
	require.NoError(t, err)
	assert.Equal(t, testPacket(2), got)
}

func TestPipe_SendOrRecv_QueuedInboundWins(t *testing.T) {
	host, device := Pipe()
	defer host.Close()

	cancel := testPacket(3)
	require.NoError(t, host.Send(cancel, 0))

	status, in, err := device.SendOrRecv(testPacket(4), time.Second)
	require.NoError(t, err)
	assert.Equal(t, Received, status)
	assert.Equal(t, cancel, in)

	// The outbound packet was abandoned, not delivered.
	_, err = host.Recv(0)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPipe_HoldsOneFullMessage(t *testing.T) {
	host, device := Pipe()
	defer host.Close()

	payload := make([]byte, hid.MaxPayloadSize)
	packets, err := hid.SplitMessage(hid.Message{CID: 1, Command: hid.CmdCBOR, Payload: payload})
	require.NoError(t, err)

	// The whole burst fits without a reader draining the other end.
	for i := range packets {
		require.NoError(t, host.Send(&packets[i], 0))
	}
	for range packets {
		_, err := device.Recv(0)
		require.NoError(t, err)
	}
}

func TestPipe_Close(t *testing.T) {
	host, device := Pipe()

	require.NoError(t, host.Close())

	_, err := device.Recv(time.Second)
	assert.ErrorIs(t, err, ErrClosed)

	err = device.Send(testPacket(5), time.Second)
	assert.ErrorIs(t, err, ErrClosed)

	// Closing the other end after the fact is fine.
	assert.NoError(t, device.Close())
	assert.NoError(t, host.Close())
}

func TestPipe_CloseUnblocksRecv(t *testing.T) {
	host, device := Pipe()

	errs := make(chan error, 1)
	go func() {
		_, err := device.Recv(-1)
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, host.Close())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock on Close")
	}
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "sent", Sent.String())
	assert.Equal(t, "received", Received.String())
	assert.Equal(t, "timed out", TimedOut.String())
	assert.Equal(t, "unknown", Status(99).String())
}
