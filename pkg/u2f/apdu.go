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

package u2f

import "encoding/binary"

// apdu is one parsed ISO 7816 command. Expected lengths are validated
// during parsing and then dropped; the bridge never truncates responses.
type apdu struct {
	CLA  byte
	INS  byte
	P1   byte
	P2   byte
	Data []byte
}

// parseAPDU accepts the header-only, short and extended encodings. Hosts
// speak extended encoding over this transport, but short frames still
// appear from older clients.
func parseAPDU(raw []byte) (*apdu, error) {
	if len(raw) < 4 {
		return nil, SWWrongLength
	}
	out := &apdu{CLA: raw[0], INS: raw[1], P1: raw[2], P2: raw[3]}
	body := raw[4:]

	switch {
	case len(body) == 0:
		// Header only.
		return out, nil

	case len(body) == 1:
		// Short Le, no data.
		return out, nil

	case body[0] != 0:
		// Short encoding: Lc, data, optional one-byte Le.
		lc := int(body[0])
		rest := body[1:]
		if len(rest) != lc && len(rest) != lc+1 {
			return nil, SWWrongLength
		}
		out.Data = rest[:lc]
		return out, nil

	default:
		// Extended encoding: 0x00, two-byte Lc, data, optional two-byte Le.
		if len(body) == 3 {
			// Extended Le with no data.
			return out, nil
		}
		if len(body) < 4 {
			return nil, SWWrongLength
		}
		lc := int(binary.BigEndian.Uint16(body[1:3]))
		rest := body[3:]
		if len(rest) != lc && len(rest) != lc+2 {
			return nil, SWWrongLength
		}
		out.Data = rest[:lc]
		return out, nil
	}
}
