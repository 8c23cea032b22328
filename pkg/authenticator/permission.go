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

package authenticator

import (
	"time"

	"github.com/jeremyhahn/go-authenticator/pkg/clock"
)

// TimedPermission is a grant that expires on its own. It has exactly two
// states, waiting and granted-until, and moves between them explicitly:
// Start replaces any prior grant, Revoke forces it back to waiting.
//
// Grant durations are bounded by the clock's half-range contract; Start
// panics through the clock when asked for more. That bound is a
// configuration error, not a runtime condition.
type TimedPermission struct {
	clock   clock.Clock
	granted bool
	expiry  clock.Timer
}

// NewTimedPermission creates a permission in the waiting state.
func NewTimedPermission(clk clock.Clock) *TimedPermission {
	return &TimedPermission{clock: clk}
}

// Start grants the permission for d from now, replacing any prior grant.
func (p *TimedPermission) Start(d time.Duration) {
	p.expiry = p.clock.MakeTimer(d)
	p.granted = true
}

// IsGranted reports whether a grant exists and has not yet expired.
func (p *TimedPermission) IsGranted() bool {
	return p.granted && !p.clock.Elapsed(p.expiry)
}

// Revoke returns the permission to the waiting state.
func (p *TimedPermission) Revoke() {
	p.granted = false
}
