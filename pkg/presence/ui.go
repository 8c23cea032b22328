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

package presence

import (
	"time"

	"github.com/jeremyhahn/go-authenticator/pkg/clock"
)

type autoConfirm struct {
	clk   clock.Clock
	delay time.Duration
}

// AutoConfirm returns a UserInterface that grants presence a fixed delay
// after each request, as if a very prompt user were at the keyboard.
// A software device has no sensor to read, so this is the daemon's stand-in
// when it runs unattended.
func AutoConfirm(clk clock.Clock, delay time.Duration) UserInterface {
	return autoConfirm{clk: clk, delay: delay}
}

func (u autoConfirm) Begin() <-chan struct{} {
	return u.clk.Elapse(u.clk.MakeTimer(u.delay))
}

func (u autoConfirm) Pulse(step int) {}

func (u autoConfirm) End() {}

type deny struct{}

// Deny returns a UserInterface where the user never shows up. Every
// presence check runs its full course and times out.
func Deny() UserInterface {
	return deny{}
}

// Begin returns a nil channel, which blocks forever in the wait select.
func (deny) Begin() <-chan struct{} { return nil }

func (deny) Pulse(step int) {}

func (deny) End() {}
