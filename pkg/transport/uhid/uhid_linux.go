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

//go:build linux

package uhid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jeremyhahn/go-authenticator/pkg/hid"
	"github.com/jeremyhahn/go-authenticator/pkg/logging"
	"github.com/jeremyhahn/go-authenticator/pkg/transport"
)

// Event types and sizes from the kernel uhid interface. The event struct
// is packed, so every offset below is exact.
const (
	uhidDestroy        = 1
	uhidStart          = 2
	uhidStop           = 3
	uhidOpen           = 4
	uhidClose          = 5
	uhidOutput         = 6
	uhidGetReport      = 9
	uhidGetReportReply = 10
	uhidCreate2        = 11
	uhidInput2         = 12
	uhidSetReport      = 13
	uhidSetReportReply = 14

	dataMax   = 4096 // UHID_DATA_MAX
	eventSize = 4 + 128 + 64 + 64 + 2 + 2 + 4 + 4 + 4 + 4 + dataMax

	busUSB = 0x03
)

// Device is a registered virtual HID device. It implements
// transport.Connection; the kernel and whatever host stack sits on top of
// it are the peer.
type Device struct {
	file *os.File
	log  *logging.Logger

	closeOnce sync.Once
	closeErr  error

	readBuf [eventSize]byte
}

var _ transport.Connection = (*Device)(nil)

// Open registers a virtual device with the kernel. The descriptor is
// probed asynchronously; the resulting START and OPEN events are consumed
// and discarded by later receives.
func Open(cfg Config) (*Device, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	if cfg.Name == "" {
		cfg.Name = DefaultConfig().Name
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.DefaultLogger()
	}

	fd, err := unix.Open(cfg.Path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("uhid: open %s: %w", cfg.Path, err)
	}

	// A nonblocking fd lets the runtime poller own readiness, which makes
	// read deadlines and cross-goroutine Close work.
	file := os.NewFile(uintptr(fd), cfg.Path)

	d := &Device{file: file, log: cfg.Logger}
	if _, err := file.Write(encodeCreate2(cfg)); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("uhid: create device: %w", err)
	}
	d.log.Debugf("uhid: registered %q (vid=%04x pid=%04x)", cfg.Name, cfg.VendorID, cfg.ProductID)
	return d, nil
}

// Recv returns the next output report from the host as a packet. Kernel
// lifecycle events that arrive in between are handled and skipped.
func (d *Device) Recv(timeout time.Duration) (*hid.Packet, error) {
	if err := d.setReadDeadline(timeout); err != nil {
		return nil, err
	}
	for {
		n, err := d.file.Read(d.readBuf[:])
		if err != nil {
			return nil, mapFileError(err)
		}
		pkt, ok := d.handleEvent(d.readBuf[:n])
		if ok {
			return pkt, nil
		}
	}
}

// Send delivers one packet to the host as an input report.
func (d *Device) Send(pkt *hid.Packet, timeout time.Duration) error {
	if err := d.setWriteDeadline(timeout); err != nil {
		return err
	}
	if _, err := d.file.Write(encodeInput2(pkt)); err != nil {
		return mapFileError(err)
	}
	return nil
}

// SendOrRecv checks for a pending output report before sending. Input
// report writes complete immediately, so the pre-send check is the whole
// reception window.
func (d *Device) SendOrRecv(pkt *hid.Packet, timeout time.Duration) (transport.Status, *hid.Packet, error) {
	// The short deadline only drains reports already queued.
	if err := d.file.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return transport.TimedOut, nil, fmt.Errorf("uhid: set deadline: %w", err)
	}
	for {
		n, err := d.file.Read(d.readBuf[:])
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				break
			}
			return transport.TimedOut, nil, mapFileError(err)
		}
		if in, ok := d.handleEvent(d.readBuf[:n]); ok {
			return transport.Received, in, nil
		}
	}

	if err := d.Send(pkt, timeout); err != nil {
		return transport.TimedOut, nil, err
	}
	return transport.Sent, nil, nil
}

// Close destroys the virtual device. The kernel removes it from the host
// the way an unplug would.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		var destroy [eventSize]byte
		binary.LittleEndian.PutUint32(destroy[0:4], uhidDestroy)
		_, _ = d.file.Write(destroy[:])
		d.closeErr = d.file.Close()
	})
	return d.closeErr
}

func (d *Device) setReadDeadline(timeout time.Duration) error {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := d.file.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("uhid: set deadline: %w", err)
	}
	return nil
}

func (d *Device) setWriteDeadline(timeout time.Duration) error {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := d.file.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("uhid: set deadline: %w", err)
	}
	return nil
}

// handleEvent processes one kernel event. It returns a packet when the
// event was an output report, false when the event was consumed here.
func (d *Device) handleEvent(buf []byte) (*hid.Packet, bool) {
	if len(buf) < 4 {
		d.log.Debugf("uhid: short event (%d bytes)", len(buf))
		return nil, false
	}
	switch typ := binary.LittleEndian.Uint32(buf[0:4]); typ {
	case uhidOutput:
		pkt, err := parseOutput(buf)
		if err != nil {
			d.log.Debugf("uhid: dropping malformed output report: %v", err)
			return nil, false
		}
		return pkt, true
	case uhidGetReport:
		// Feature reports are not part of this device; refuse politely.
		if len(buf) >= 8 {
			d.refuseGetReport(binary.LittleEndian.Uint32(buf[4:8]))
		}
		return nil, false
	case uhidStart, uhidStop, uhidOpen, uhidClose, uhidSetReport:
		d.log.Debugf("uhid: event type %d ignored", typ)
		return nil, false
	default:
		d.log.Debugf("uhid: unknown event type %d ignored", typ)
		return nil, false
	}
}

// refuseGetReport answers a GET_REPORT request with EIO.
func (d *Device) refuseGetReport(id uint32) {
	var buf [eventSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], uhidGetReportReply)
	binary.LittleEndian.PutUint32(buf[4:8], id)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(unix.EIO))
	if _, err := d.file.Write(buf[:]); err != nil {
		d.log.Debugf("uhid: get_report reply failed: %v", err)
	}
}

func mapFileError(err error) error {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return transport.ErrTimeout
	case errors.Is(err, fs.ErrClosed):
		return transport.ErrClosed
	default:
		return fmt.Errorf("uhid: %w", err)
	}
}

// encodeCreate2 packs a UHID_CREATE2 event.
func encodeCreate2(cfg Config) []byte {
	buf := make([]byte, eventSize)
	binary.LittleEndian.PutUint32(buf[0:4], uhidCreate2)
	copy(buf[4:4+128], cfg.Name)
	// phys and uniq stay empty.
	off := 4 + 128 + 64 + 64
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(reportDescriptor)))
	binary.LittleEndian.PutUint16(buf[off+2:off+4], busUSB)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], cfg.VendorID)
	binary.LittleEndian.PutUint32(buf[off+8:off+12], cfg.ProductID)
	binary.LittleEndian.PutUint32(buf[off+12:off+16], 1) // version
	binary.LittleEndian.PutUint32(buf[off+16:off+20], 0) // country
	copy(buf[off+20:], reportDescriptor)
	return buf
}

// encodeInput2 packs one packet as a UHID_INPUT2 event.
func encodeInput2(pkt *hid.Packet) []byte {
	buf := make([]byte, 4+2+dataMax)
	binary.LittleEndian.PutUint32(buf[0:4], uhidInput2)
	binary.LittleEndian.PutUint16(buf[4:6], hid.PacketSize)
	copy(buf[6:], pkt[:])
	return buf
}

// parseOutput extracts the report payload of a UHID_OUTPUT event. The
// kernel prefixes the report with its report number; with no report IDs
// in the descriptor that is a single zero byte to strip.
func parseOutput(buf []byte) (*hid.Packet, error) {
	const (
		dataOff = 4
		sizeOff = dataOff + dataMax
	)
	if len(buf) < sizeOff+2 {
		return nil, fmt.Errorf("output event truncated at %d bytes", len(buf))
	}
	size := int(binary.LittleEndian.Uint16(buf[sizeOff : sizeOff+2]))
	if size > dataMax {
		return nil, fmt.Errorf("output report size %d out of range", size)
	}
	raw := buf[dataOff : dataOff+size]
	if len(raw) == hid.PacketSize+1 {
		raw = raw[1:]
	}
	return hid.ParsePacket(raw)
}
