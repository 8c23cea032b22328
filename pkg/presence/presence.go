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

// Package presence waits for the user. While an operation needs a touch,
// the host is kept on the line with periodic keepalive reports, and a
// CANCEL from the host is honored mid-wait.
package presence

import (
	"context"
	"errors"
	"time"

	"github.com/jeremyhahn/go-authenticator/pkg/clock"
	"github.com/jeremyhahn/go-authenticator/pkg/hid"
	"github.com/jeremyhahn/go-authenticator/pkg/logging"
	"github.com/jeremyhahn/go-authenticator/pkg/metrics"
	"github.com/jeremyhahn/go-authenticator/pkg/transport"
)

var (
	// ErrTimeout means the user never confirmed presence.
	ErrTimeout = errors.New("presence: user action timed out")

	// ErrCancelled means the host cancelled the operation mid-wait.
	ErrCancelled = errors.New("presence: cancelled by host")
)

// Defaults for the wait loop.
const (
	DefaultTotalTimeout   = 30 * time.Second
	DefaultKeepaliveDelay = 100 * time.Millisecond
)

// UserInterface is the human side of a presence check.
type UserInterface interface {
	// Begin starts indicating that a touch is wanted and returns the
	// channel that fires when the user provides one.
	Begin() <-chan struct{}

	// Pulse is called once per wait iteration so an indicator can
	// animate. The step counter starts at zero.
	Pulse(step int)

	// End stops indicating. Called exactly once per Begin, on every
	// outcome.
	End()
}

// Config configures a Coordinator. Zero values select defaults.
type Config struct {
	Clock clock.Clock
	Conn  transport.Connection
	UI    UserInterface

	// TotalTimeout bounds the whole wait; KeepaliveDelay spaces the
	// keepalive reports inside it.
	TotalTimeout   time.Duration
	KeepaliveDelay time.Duration

	Logger *logging.Logger
}

// Coordinator runs presence checks on behalf of command processing. It is
// confined to the device loop; the transport connection is shared with it
// deliberately, since a host cancellation arrives as ordinary traffic.
type Coordinator struct {
	clock clock.Clock
	conn  transport.Connection
	ui    UserInterface
	log   *logging.Logger

	total time.Duration
	delay time.Duration
}

// NewCoordinator creates a Coordinator with the given configuration.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSys(0)
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = DefaultTotalTimeout
	}
	if cfg.KeepaliveDelay <= 0 {
		cfg.KeepaliveDelay = DefaultKeepaliveDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.DefaultLogger()
	}
	return &Coordinator{
		clock: cfg.Clock,
		conn:  cfg.Conn,
		ui:    cfg.UI,
		log:   cfg.Logger,
		total: cfg.TotalTimeout,
		delay: cfg.KeepaliveDelay,
	}
}

// Await blocks until the user confirms presence on the given channel.
// It returns nil on touch, ErrTimeout when the user never showed up or
// the context ended the wait, and ErrCancelled when the host cancelled
// the operation.
func (c *Coordinator) Await(ctx context.Context, cid hid.ChannelID) error {
	err := c.await(ctx, cid)
	switch {
	case err == nil:
		metrics.RecordPresence(metrics.OutcomeConfirmed)
	case errors.Is(err, ErrCancelled):
		metrics.RecordPresence(metrics.OutcomeCancelled)
	case errors.Is(err, ErrTimeout):
		metrics.RecordPresence(metrics.OutcomeTimeout)
	}
	return err
}

func (c *Coordinator) await(ctx context.Context, cid hid.ChannelID) error {
	// The host learns immediately that a user is being consulted.
	if err := c.sendKeepalive(cid); err != nil {
		return err
	}

	touch := c.ui.Begin()
	defer c.ui.End()

	iterations := int(c.total / c.delay)
	for i := 0; i < iterations; i++ {
		c.ui.Pulse(i)

		timer := c.clock.MakeTimer(c.delay)
		select {
		case <-touch:
			return nil
		case <-ctx.Done():
			return ErrTimeout
		case <-c.clock.Elapse(timer):
			if err := c.sendKeepalive(cid); err != nil {
				return err
			}
		}
	}
	return ErrTimeout
}

// sendKeepalive transmits one up-needed keepalive packet. The send doubles
// as the cancellation window: if an inbound packet is waiting it is taken
// instead, and a CANCEL for this channel ends the wait. Anything else on
// the bus during the wait is dropped; hosts resend.
func (c *Coordinator) sendKeepalive(cid hid.ChannelID) error {
	packets, err := hid.SplitMessage(hid.KeepaliveMessage(cid, hid.StatusUpNeeded))
	if err != nil {
		return err
	}

	status, in, err := c.conn.SendOrRecv(&packets[0], c.delay)
	if err != nil && !errors.Is(err, transport.ErrTimeout) {
		return err
	}
	switch status {
	case transport.Sent:
		return nil
	case transport.Received:
		if in.ChannelID() == cid && in.IsInit() && in.Command() == hid.CmdCancel {
			return ErrCancelled
		}
		c.log.Debugf("presence: dropping packet on channel 0x%08x during wait", uint32(in.ChannelID()))
		return nil
	default:
		// The host is not reading; keep waiting for the user anyway.
		c.log.Debug("presence: keepalive send timed out")
		return nil
	}
}
