// On-hardware integration harness
// https://github.com/arcade-dev/ds4gadget
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build hwtest

// Package hosttest drives a real gadget over USB from the host side: it
// enumerates the device with gousb (libusb bindings), issues the
// 0xF0/0xF1/0xF2 feature-report control transfers a PS4 console would, and
// lets the end-to-end scenarios run against real hardware instead of the
// hosted simulator.
package hosttest

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/google/gousb"

	"github.com/arcade-dev/ds4gadget/auth"
	"github.com/arcade-dev/ds4gadget/usbdev"
)

// bmRequestType for a class-specific, interface-recipient control transfer,
// direction set per call (host-to-device for SetReport, device-to-host for
// GetReport).
const (
	reqTypeOut = 0x21 // host->device | class | interface
	reqTypeIn  = 0xa1 // device->host | class | interface

	reqGetReport = 0x01
	reqSetReport = 0x09

	reportTypeFeature = 3
)

// Device wraps a claimed gousb handle to the gadget under test.
type Device struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
}

// Open enumerates the bus for VID 0x1209 / PID 0x214d, claims its single
// interface, and returns a ready Device. The caller must call Close.
func Open() (*Device, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(usbdev.VendorID), gousb.ID(usbdev.ProductID))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("hosttest: opening device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("hosttest: no device at VID:PID %#04x:%#04x", usbdev.VendorID, usbdev.ProductID)
	}

	config, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("hosttest: setting configuration: %w", err)
	}

	intf, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("hosttest: claiming interface: %w", err)
	}

	return &Device{ctx: ctx, dev: dev, config: config, intf: intf}, nil
}

// Close releases the interface, configuration, device, and libusb context.
func (d *Device) Close() error {
	d.intf.Close()
	d.config.Close()
	d.dev.Close()
	d.ctx.Close()
	return nil
}

// buildChunk assembles a 64-byte 0xF0/0xF1 chunk: [reportID, nonceID,
// partIndex, 0x00, payload56] followed by its little-endian CRC-32.
func buildChunk(reportID, nonceID, partIndex uint8, payload []byte) [auth.ChunkLen]byte {
	var body [auth.ChunkLen - 4]byte
	body[0] = reportID
	body[1] = nonceID
	body[2] = partIndex
	copy(body[4:], payload)

	var out [auth.ChunkLen]byte
	copy(out[:], body[:])
	binary.LittleEndian.PutUint32(out[auth.ChunkLen-4:], crc32.ChecksumIEEE(out[:auth.ChunkLen-4]))
	return out
}

// SendNonceChunk issues one SetReport 0xF0 control transfer carrying a
// single 56-byte slice of a nonce.
func (d *Device) SendNonceChunk(nonceID, partIndex uint8, payload []byte) error {
	chunk := buildChunk(auth.NonceReportID, nonceID, partIndex, payload)
	value := uint16(reportTypeFeature)<<8 | uint16(auth.NonceReportID)
	_, err := d.dev.Control(reqTypeOut, reqSetReport, value, 0, chunk[:])
	return err
}

// SendNonce splits a 256-byte nonce into five 0xF0 chunks and sends them in
// order.
func (d *Device) SendNonce(nonceID uint8, nonce [256]byte) error {
	for part := uint8(0); part < auth.NonceParts; part++ {
		start := int(part) * 56
		end := start + 56
		if end > len(nonce) {
			end = len(nonce)
		}
		if err := d.SendNonceChunk(nonceID, part, nonce[start:end]); err != nil {
			return fmt.Errorf("hosttest: sending nonce chunk %d: %w", part, err)
		}
	}
	return nil
}

// Status issues a GetReport 0xF2 control transfer and returns the raw
// 16-byte status report.
func (d *Device) Status() ([16]byte, error) {
	var out [16]byte
	value := uint16(reportTypeFeature)<<8 | uint16(auth.StatusReportID)
	buf := make([]byte, 16)
	n, err := d.dev.Control(reqTypeIn, reqGetReport, value, 0, buf)
	if err != nil {
		return out, err
	}
	copy(out[:], buf[:n])
	return out, nil
}

// WaitForSignature polls Status until byte[2] reads 0 (signature ready) or
// the deadline elapses.
func (d *Device) WaitForSignature(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		status, err := d.Status()
		if err != nil {
			return err
		}
		if status[2] == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("hosttest: timed out waiting for signature, last status=%v", status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ReadSignatureChunk issues one GetReport 0xF1 control transfer and returns
// the raw 64-byte chunk.
func (d *Device) ReadSignatureChunk() ([auth.ChunkLen]byte, error) {
	var out [auth.ChunkLen]byte
	value := uint16(reportTypeFeature)<<8 | uint16(auth.SignatureReportID)
	buf := make([]byte, auth.ChunkLen)
	n, err := d.dev.Control(reqTypeIn, reqGetReport, value, 0, buf)
	if err != nil {
		return out, err
	}
	copy(out[:], buf[:n])
	return out, nil
}

// ReadSignature reads all nineteen 0xF1 chunks in order and reassembles
// the 1064-byte signature buffer.
func (d *Device) ReadSignature() ([auth.BufferLen]byte, error) {
	var out [auth.BufferLen]byte
	off := 0
	for i := 0; i < auth.SignatureParts; i++ {
		chunk, err := d.ReadSignatureChunk()
		if err != nil {
			return out, fmt.Errorf("hosttest: reading signature chunk %d: %w", i, err)
		}
		if got := chunk[2]; int(got) != i {
			return out, fmt.Errorf("hosttest: signature chunk out of order: got part_index=%d, want %d", got, i)
		}
		off += copy(out[off:], chunk[4:60])
	}
	return out, nil
}
