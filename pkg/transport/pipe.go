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
	"sync"
	"time"

	"github.com/jeremyhahn/go-authenticator/pkg/hid"
)

// pipeDepth is sized to hold the longest single message a host can split,
// so a test may enqueue one whole message without a pump goroutine.
const pipeDepth = 129

// pipeShared is the state common to both ends. Closing either end closes
// the pair.
type pipeShared struct {
	once sync.Once
	done chan struct{}
}

// PipeConn is one end of an in-memory connection pair.
type PipeConn struct {
	out    chan<- hid.Packet
	in     <-chan hid.Packet
	shared *pipeShared
}

// Pipe returns two connected ends. What one sends the other receives.
func Pipe() (*PipeConn, *PipeConn) {
	ab := make(chan hid.Packet, pipeDepth)
	ba := make(chan hid.Packet, pipeDepth)
	shared := &pipeShared{done: make(chan struct{})}
	a := &PipeConn{out: ab, in: ba, shared: shared}
	b := &PipeConn{out: ba, in: ab, shared: shared}
	return a, b
}

// Recv returns the next inbound packet.
func (c *PipeConn) Recv(timeout time.Duration) (*hid.Packet, error) {
	select {
	case pkt := <-c.in:
		return &pkt, nil
	case <-c.shared.done:
		return nil, ErrClosed
	default:
	}
	if timeout == 0 {
		return nil, ErrTimeout
	}

	var expire <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}
	select {
	case pkt := <-c.in:
		return &pkt, nil
	case <-expire:
		return nil, ErrTimeout
	case <-c.shared.done:
		return nil, ErrClosed
	}
}

// Send delivers one packet to the peer.
func (c *PipeConn) Send(pkt *hid.Packet, timeout time.Duration) error {
	select {
	case c.out <- *pkt:
		return nil
	case <-c.shared.done:
		return ErrClosed
	default:
	}
	if timeout == 0 {
		return ErrTimeout
	}

	var expire <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}
	select {
	case c.out <- *pkt:
		return nil
	case <-expire:
		return ErrTimeout
	case <-c.shared.done:
		return ErrClosed
	}
}

// SendOrRecv delivers the packet unless an inbound packet beats it.
// An already-queued inbound packet always wins, which keeps cancellation
// detection deterministic.
func (c *PipeConn) SendOrRecv(pkt *hid.Packet, timeout time.Duration) (Status, *hid.Packet, error) {
	select {
	case in := <-c.in:
		return Received, &in, nil
	case <-c.shared.done:
		return TimedOut, nil, ErrClosed
	default:
	}

	if timeout == 0 {
		select {
		case c.out <- *pkt:
			return Sent, nil, nil
		default:
			return TimedOut, nil, ErrTimeout
		}
	}

	var expire <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}
	select {
	case c.out <- *pkt:
		return Sent, nil, nil
	case in := <-c.in:
		return Received, &in, nil
	case <-expire:
		return TimedOut, nil, ErrTimeout
	case <-c.shared.done:
		return TimedOut, nil, ErrClosed
	}
}

// Close closes both ends of the pair.
func (c *PipeConn) Close() error {
	c.shared.once.Do(func() { close(c.shared.done) })
	return nil
}
