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

// Package metrics provides Prometheus instrumentation for the authenticator.
// It exposes packet and message counters, dispatch latency histograms,
// protocol error counters, and resource gauges so the device can be monitored
// like any other service it runs alongside.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all authenticator metrics
	Namespace = "authenticator"

	// Label names
	LabelCommand   = "command"
	LabelDirection = "direction"
	LabelOutcome   = "outcome"
	LabelReason    = "reason"
	LabelStatus    = "status"

	// Direction values for packet counters
	DirectionIn  = "in"
	DirectionOut = "out"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Presence outcomes
	OutcomeConfirmed = "confirmed"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
)

var (
	// PacketsTotal tracks the number of report packets moved over the
	// transport in each direction.
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "packets_total",
			Help:      "Total number of report packets by direction",
		},
		[]string{LabelDirection},
	)

	// MessagesTotal tracks reassembled messages dispatched to the
	// authenticator by command and outcome status. Use RecordMessage to
	// increment this counter with the appropriate labels.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_total",
			Help:      "Total number of dispatched messages by command and status",
		},
		[]string{LabelCommand, LabelStatus},
	)

	// MessageDuration tracks the time spent handling a message in seconds.
	// Buckets span sub-millisecond dispatch up to the longest presence wait.
	MessageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "message_duration_seconds",
			Help:      "Duration of message handling in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30, 60},
		},
		[]string{LabelCommand},
	)

	// ProtocolErrorsTotal tracks error reports returned to the host by
	// reason. Reasons follow the short error code names used in logs.
	ProtocolErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "protocol_errors_total",
			Help:      "Total number of error reports returned to the host by reason",
		},
		[]string{LabelReason},
	)

	// PresenceRequestsTotal tracks user presence checks by outcome.
	PresenceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "presence_requests_total",
			Help:      "Total number of user presence checks by outcome",
		},
		[]string{LabelOutcome},
	)

	// WinksTotal tracks the number of wink requests honored.
	WinksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "winks_total",
			Help:      "Total number of wink requests honored",
		},
	)

	// ChannelsAllocated tracks how many channels the device has handed out
	// since boot. Channels are never reclaimed, so this only grows.
	ChannelsAllocated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "channels_allocated",
			Help:      "Number of channels handed out since boot",
		},
	)

	// Goroutines tracks the current number of goroutines in the device
	// process. Updated periodically by the resource collector.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryAllocBytes tracks the current bytes of allocated heap objects.
	// Updated periodically by the resource collector.
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	// MemorySysBytes tracks the total bytes of memory obtained from the OS.
	// Updated periodically by the resource collector.
	MemorySysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_sys_bytes",
			Help:      "Total bytes of memory obtained from the OS",
		},
	)

	// GCPauseTotalSeconds tracks the cumulative time spent in GC
	// stop-the-world pauses. Updated periodically by the resource collector.
	GCPauseTotalSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "gc_pause_total_seconds",
			Help:      "Cumulative time spent in GC stop-the-world pauses",
		},
	)

	// UptimeSeconds tracks the device uptime in seconds since startup.
	UptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "uptime_seconds",
			Help:      "Device uptime in seconds since startup",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordPacket records a single report packet moving over the transport.
// Use DirectionIn for host to device and DirectionOut for device to host.
func RecordPacket(direction string) {
	if !enabled.Load() {
		return
	}
	PacketsTotal.WithLabelValues(direction).Inc()
}

// RecordMessage records a dispatched message with its handling duration.
//
// Parameters:
//   - command: The short command name (e.g. "ping", "cbor", "msg")
//   - status: The dispatch status (use Status* constants)
//   - duration: The handling duration in seconds
//
// Example:
//
//	start := time.Now()
//	response := handler.ProcessMessage(ctx, msg)
//	status := metrics.StatusSuccess
//	if response.Cmd == hid.CmdError {
//	    status = metrics.StatusError
//	}
//	metrics.RecordMessage(msg.Cmd.String(), status, time.Since(start).Seconds())
func RecordMessage(command, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	MessagesTotal.WithLabelValues(command, status).Inc()
	MessageDuration.WithLabelValues(command).Observe(duration)
}

// RecordProtocolError records an error report sent back to the host.
// The reason should be a short error code name (e.g. "invalid_seq").
func RecordProtocolError(reason string) {
	if !enabled.Load() {
		return
	}
	ProtocolErrorsTotal.WithLabelValues(reason).Inc()
}

// RecordPresence records the outcome of a user presence check.
// Use the Outcome* constants.
func RecordPresence(outcome string) {
	if !enabled.Load() {
		return
	}
	PresenceRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordWink records a wink request honored by the device.
func RecordWink() {
	if !enabled.Load() {
		return
	}
	WinksTotal.Inc()
}

// SetChannelsAllocated sets the number of channels handed out since boot.
func SetChannelsAllocated(count float64) {
	if !enabled.Load() {
		return
	}
	ChannelsAllocated.Set(count)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
