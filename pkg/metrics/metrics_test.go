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
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEnabled(t *testing.T) {
	// Metrics should be enabled by default
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled by default")
	}

	// Test disabling
	Disable()
	if IsEnabled() {
		t.Error("Expected metrics to be disabled after Disable()")
	}

	// Test enabling
	Enable()
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled after Enable()")
	}
}

func TestRecordPacket(t *testing.T) {
	Enable()

	PacketsTotal.Reset()

	RecordPacket(DirectionIn)
	RecordPacket(DirectionIn)
	RecordPacket(DirectionOut)

	inCount := testutil.ToFloat64(PacketsTotal.WithLabelValues(DirectionIn))
	if inCount != 2 {
		t.Errorf("Expected 2 inbound packets, got %v", inCount)
	}

	outCount := testutil.ToFloat64(PacketsTotal.WithLabelValues(DirectionOut))
	if outCount != 1 {
		t.Errorf("Expected 1 outbound packet, got %v", outCount)
	}
}

func TestRecordMessage(t *testing.T) {
	Enable()

	// Reset counters before test
	MessagesTotal.Reset()
	MessageDuration.Reset()

	// Record a successful dispatch
	RecordMessage("ping", StatusSuccess, 0.001)

	// Verify counter incremented
	count := testutil.CollectAndCount(MessagesTotal)
	if count != 1 {
		t.Errorf("Expected 1 message recorded, got %d", count)
	}

	// Verify histogram updated
	histCount := testutil.CollectAndCount(MessageDuration)
	if histCount != 1 {
		t.Errorf("Expected 1 histogram sample, got %d", histCount)
	}

	// Record a failed dispatch
	RecordMessage("cbor", StatusError, 0.1)

	// Verify counter incremented again
	count = testutil.CollectAndCount(MessagesTotal)
	if count != 2 {
		t.Errorf("Expected 2 messages recorded, got %d", count)
	}
}

func TestRecordMessageWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	// Reset counters
	MessagesTotal.Reset()

	// Record a message while disabled
	RecordMessage("ping", StatusSuccess, 0.001)

	// Verify nothing was recorded
	count := testutil.CollectAndCount(MessagesTotal)
	if count != 0 {
		t.Errorf("Expected 0 messages when disabled, got %d", count)
	}
}

func TestRecordProtocolError(t *testing.T) {
	Enable()

	ProtocolErrorsTotal.Reset()

	RecordProtocolError("invalid_seq")
	RecordProtocolError("invalid_seq")
	RecordProtocolError("channel_busy")

	seqCount := testutil.ToFloat64(ProtocolErrorsTotal.WithLabelValues("invalid_seq"))
	if seqCount != 2 {
		t.Errorf("Expected 2 invalid_seq errors, got %v", seqCount)
	}

	busyCount := testutil.ToFloat64(ProtocolErrorsTotal.WithLabelValues("channel_busy"))
	if busyCount != 1 {
		t.Errorf("Expected 1 channel_busy error, got %v", busyCount)
	}
}

func TestRecordProtocolErrorWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	ProtocolErrorsTotal.Reset()

	RecordProtocolError("invalid_cmd")

	count := testutil.CollectAndCount(ProtocolErrorsTotal)
	if count != 0 {
		t.Errorf("Expected 0 errors when disabled, got %d", count)
	}
}

func TestRecordPresence(t *testing.T) {
	Enable()

	PresenceRequestsTotal.Reset()

	RecordPresence(OutcomeConfirmed)
	RecordPresence(OutcomeTimeout)
	RecordPresence(OutcomeCancelled)
	RecordPresence(OutcomeConfirmed)

	confirmed := testutil.ToFloat64(PresenceRequestsTotal.WithLabelValues(OutcomeConfirmed))
	if confirmed != 2 {
		t.Errorf("Expected 2 confirmed checks, got %v", confirmed)
	}

	timedOut := testutil.ToFloat64(PresenceRequestsTotal.WithLabelValues(OutcomeTimeout))
	if timedOut != 1 {
		t.Errorf("Expected 1 timed out check, got %v", timedOut)
	}
}

func TestRecordWink(t *testing.T) {
	Enable()

	before := testutil.ToFloat64(WinksTotal)

	RecordWink()
	RecordWink()

	after := testutil.ToFloat64(WinksTotal)
	if after-before != 2 {
		t.Errorf("Expected 2 winks recorded, got %v", after-before)
	}
}

func TestSetChannelsAllocated(t *testing.T) {
	Enable()

	SetChannelsAllocated(42)

	value := testutil.ToFloat64(ChannelsAllocated)
	if value != 42 {
		t.Errorf("Expected 42 channels allocated, got %v", value)
	}
}
