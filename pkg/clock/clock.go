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

// Package clock provides wrap-safe timers over a narrow wrapping tick
// counter, modeled on the coarse hardware counters of embedded security
// keys. Ticks live in a 24-bit space; elapsed/not-elapsed is decided with
// a half-range comparison, which stays correct across wraparound as long
// as no timer spans half the counter range or more.
package clock

import "time"

const (
	// TickBits is the width of the tick counter.
	TickBits = 24

	// TickMask masks a value into the counter space.
	TickMask = 1<<TickBits - 1

	// halfRange is the longest unambiguous tick distance. Any timer delay
	// must stay strictly below it.
	halfRange = 1 << (TickBits - 1)

	// DefaultFrequency is the tick rate used when none is configured,
	// matching the low-power oscillators these counters are derived from.
	DefaultFrequency uint32 = 32768
)

// Ticks is a point in the wrapping 24-bit counter space.
type Ticks uint32

// Timer marks the tick at which a delay ends.
type Timer struct {
	end Ticks
}

// End returns the tick at which the timer elapses.
func (t Timer) End() Ticks { return t.end }

// Clock is the time source for the protocol core. Implementations must
// honor the half-range contract: MakeTimer panics when asked for a delay
// of 2^23 ticks or more, because such a timer could not be compared
// unambiguously after wraparound.
type Clock interface {
	// Now returns the current tick, masked to the counter width.
	Now() Ticks

	// MakeTimer returns a timer that elapses d from now.
	MakeTimer(d time.Duration) Timer

	// Elapsed reports whether t's end tick has passed.
	Elapsed(t Timer) bool

	// Elapse returns a channel that is closed once t elapses. The channel
	// is the suspension point for select-based waits.
	Elapse(t Timer) <-chan struct{}
}

// wrapSub returns (a - b) in counter space.
func wrapSub(a, b Ticks) Ticks {
	return (a - b) & TickMask
}

// wrapAdd returns (a + b) in counter space.
func wrapAdd(a, b Ticks) Ticks {
	return (a + b) & TickMask
}

// elapsed applies the single comparison rule: the timer has not elapsed
// while its end tick is still within the half-range window ahead of now.
func elapsed(now, end Ticks) bool {
	return wrapSub(end, now) >= halfRange
}

// delayTicks converts a duration to ticks at the given frequency. The
// (frequency/2)/500 form keeps the intermediate product small enough for
// the word sizes this arithmetic originated on; it is preserved so tick
// counts match across implementations.
func delayTicks(d time.Duration, frequency uint32) Ticks {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	ticks := uint64(frequency/2) * uint64(ms) / 500
	if ticks >= halfRange {
		panic("clock: timer delay spans half the tick range")
	}
	return Ticks(ticks)
}

// MaxDelay returns the longest delay MakeTimer accepts at the given
// frequency. Configuration validation uses it to reject timeouts that
// would trip the half-range contract at runtime.
func MaxDelay(frequency uint32) time.Duration {
	if frequency == 0 {
		frequency = DefaultFrequency
	}
	ms := (uint64(halfRange-1) * 500) / uint64(frequency/2)
	return time.Duration(ms) * time.Millisecond
}
