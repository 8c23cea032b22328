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

package clock

import "time"

// SysClock derives ticks from the monotonic wall clock, scaled to a
// configured frequency. The tick value wraps every 2^24/frequency seconds
// (512 s at the default 32768 Hz), exercising the same arithmetic a
// hardware counter would.
type SysClock struct {
	frequency uint32
	epoch     time.Time
}

// NewSys returns a system-backed clock ticking at frequency Hz. A zero
// frequency selects DefaultFrequency.
func NewSys(frequency uint32) *SysClock {
	if frequency == 0 {
		frequency = DefaultFrequency
	}
	return &SysClock{
		frequency: frequency,
		epoch:     time.Now(),
	}
}

// Frequency returns the configured tick rate in Hz.
func (c *SysClock) Frequency() uint32 { return c.frequency }

// Now returns the current tick. Whole seconds and the sub-second remainder
// are scaled separately so the conversion cannot overflow however long the
// process runs.
func (c *SysClock) Now() Ticks {
	ns := time.Since(c.epoch)
	sec := uint64(ns / time.Second)
	rem := uint64(ns % time.Second)
	total := sec*uint64(c.frequency) + rem*uint64(c.frequency)/uint64(time.Second)
	return Ticks(total & TickMask)
}

// MakeTimer returns a timer elapsing d from now. It panics if d spans
// half the counter range or more.
func (c *SysClock) MakeTimer(d time.Duration) Timer {
	return Timer{end: wrapAdd(c.Now(), delayTicks(d, c.frequency))}
}

// Elapsed reports whether t's end tick has passed.
func (c *SysClock) Elapsed(t Timer) bool {
	return elapsed(c.Now(), t.end)
}

// Elapse returns a channel closed once t elapses, scheduling the close on
// the wall clock for the remaining tick distance.
func (c *SysClock) Elapse(t Timer) <-chan struct{} {
	ch := make(chan struct{})
	if c.Elapsed(t) {
		close(ch)
		return ch
	}
	remaining := wrapSub(t.end, c.Now())
	d := time.Duration(uint64(remaining)) * time.Second / time.Duration(c.frequency)
	if d <= 0 {
		d = time.Millisecond
	}
	time.AfterFunc(d, func() { close(ch) })
	return ch
}
