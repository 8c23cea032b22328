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

package cli

import (
	"testing"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-authenticator/internal/config"
	"github.com/jeremyhahn/go-authenticator/pkg/hid"
)

func openTestSession(t *testing.T) *session {
	t.Helper()

	cfg := config.Default()
	cfg.Logging.Level = "error"

	sess, err := openSession(cfg)
	if err != nil {
		t.Fatalf("openSession() error = %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func TestSession_Handshake(t *testing.T) {
	sess := openTestSession(t)

	if sess.cid == 0 || sess.cid == hid.ChannelBroadcast {
		t.Errorf("cid = %#x, want an allocated channel", sess.cid)
	}
	if sess.protocol != hid.ProtocolVersion {
		t.Errorf("protocol = %d, want %d", sess.protocol, hid.ProtocolVersion)
	}
	if sess.capabilities&hid.CapCBOR == 0 {
		t.Error("device should advertise CBOR capability")
	}
}

func TestSession_PingEcho(t *testing.T) {
	sess := openTestSession(t)

	// Spans one initialization packet plus two continuations.
	rtt, err := sess.ping(150)
	if err != nil {
		t.Fatalf("ping() error = %v", err)
	}
	if rtt <= 0 {
		t.Errorf("rtt = %v, want positive duration", rtt)
	}
}

func TestSession_Wink(t *testing.T) {
	sess := openTestSession(t)

	if err := sess.wink(); err != nil {
		t.Fatalf("wink() error = %v", err)
	}
}

func TestSession_GetInfo(t *testing.T) {
	sess := openTestSession(t)

	info, err := sess.getInfo()
	if err != nil {
		t.Fatalf("getInfo() error = %v", err)
	}

	if _, err := uuid.Parse(info.AAGUID); err != nil {
		t.Errorf("AAGUID %q is not a UUID: %v", info.AAGUID, err)
	}
	if len(info.Versions) == 0 || info.Versions[0] != "FIDO_2_0" {
		t.Errorf("Versions = %v, want FIDO_2_0 first", info.Versions)
	}
	if info.MaxMsgSize != hid.MaxPayloadSize {
		t.Errorf("MaxMsgSize = %d, want %d", info.MaxMsgSize, hid.MaxPayloadSize)
	}
	if !info.Options["up"] {
		t.Error("device should report user presence support")
	}
	if info.Capabilities&hid.CapWink == 0 {
		t.Error("device should advertise WINK capability")
	}
}
