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

import (
	"sync"
	"time"
)

// Manual is a clock whose tick only moves when told to. Tests use it to
// walk timers across wraparound deterministically.
type Manual struct {
	mu        sync.Mutex
	frequency uint32
	now       Ticks
	waiters   []manualWaiter
}

type manualWaiter struct {
	timer Timer
	ch    chan struct{}
}

// NewManual returns a manual clock starting at tick 0. A zero frequency
// selects DefaultFrequency.
func NewManual(frequency uint32) *Manual {
	if frequency == 0 {
		frequency = DefaultFrequency
	}
	return &Manual{frequency: frequency}
}

// Now returns the current tick.
func (m *Manual) Now() Ticks {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to an absolute tick, waking any waiters whose
// timers elapse at the new position.
func (m *Manual) Set(t Ticks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t & TickMask
	m.wake()
}

// AdvanceTicks moves the clock forward by n ticks.
func (m *Manual) AdvanceTicks(n Ticks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = wrapAdd(m.now, n)
	m.wake()
}

// Advance moves the clock forward by the tick equivalent of d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = wrapAdd(m.now, delayTicks(d, m.frequency))
	m.wake()
}

// MakeTimer returns a timer elapsing d from now. It panics if d spans
// half the counter range or more.
func (m *Manual) MakeTimer(d time.Duration) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Timer{end: wrapAdd(m.now, delayTicks(d, m.frequency))}
}

// Elapsed reports whether t's end tick has passed.
func (m *Manual) Elapsed(t Timer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return elapsed(m.now, t.end)
}

// Elapse returns a channel closed once t elapses. The close happens on
// the Advance/Set call that moves the clock past the timer.
func (m *Manual) Elapse(t Timer) <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{})
	if elapsed(m.now, t.end) {
		close(ch)
		return ch
	}
	m.waiters = append(m.waiters, manualWaiter{timer: t, ch: ch})
	return ch
}

// wake closes elapsed waiters. Callers hold m.mu.
func (m *Manual) wake() {
	remaining := m.waiters[:0]
	for _, w := range m.waiters {
		if elapsed(m.now, w.timer.end) {
			close(w.ch)
		} else {
			remaining = append(remaining, w)
		}
	}
	m.waiters = remaining
}
