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

package metrics

import (
	"context"
	"runtime"
	"time"
)

// ResourceCollector periodically refreshes the resource gauges with goroutine
// counts, memory usage, GC statistics, and uptime.
type ResourceCollector struct {
	ctx       context.Context
	cancel    context.CancelFunc
	interval  time.Duration
	startedAt time.Time
}

// NewResourceCollector creates a resource collector that updates the gauges
// at the given interval. Intervals of 10 to 60 seconds are reasonable.
func NewResourceCollector(ctx context.Context, interval time.Duration) *ResourceCollector {
	collectorCtx, cancel := context.WithCancel(ctx)
	return &ResourceCollector{
		ctx:       collectorCtx,
		cancel:    cancel,
		interval:  interval,
		startedAt: time.Now(),
	}
}

// Start collects resource metrics at the configured interval until Stop is
// called or the parent context is cancelled. It blocks and should typically
// run in its own goroutine.
func (rc *ResourceCollector) Start() {
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	// First sample immediately so the gauges are live before the
	// first tick.
	rc.collect()

	for {
		select {
		case <-rc.ctx.Done():
			return
		case <-ticker.C:
			rc.collect()
		}
	}
}

// Stop halts the resource collector.
func (rc *ResourceCollector) Stop() {
	rc.cancel()
}

func (rc *ResourceCollector) collect() {
	if !IsEnabled() {
		return
	}
	collectRuntime()
	UptimeSeconds.Set(time.Since(rc.startedAt).Seconds())
}

// CollectOnce takes a single sample of the runtime gauges. Useful for
// immediate updates outside of the periodic collection.
func CollectOnce() {
	if !IsEnabled() {
		return
	}
	collectRuntime()
}

func collectRuntime() {
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	MemoryAllocBytes.Set(float64(memStats.Alloc))
	MemorySysBytes.Set(float64(memStats.Sys))
	GCPauseTotalSeconds.Set(float64(memStats.PauseTotalNs) / 1e9)
}

// StartResourceCollector creates and starts a resource collector in a
// background goroutine. The collector stops when ctx is cancelled.
func StartResourceCollector(ctx context.Context, interval time.Duration) *ResourceCollector {
	collector := NewResourceCollector(ctx, interval)
	go collector.Start()
	return collector
}
