// PS4 HID report codec
// https://github.com/arcade-dev/ds4gadget
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package ds4 encodes input.DeviceInputs into the 64-byte PS4 HID input
// report wire format and carries the HID report descriptor that makes the
// device enumerate as a licensed controller. The descriptor bytes are a
// verbatim dump of a real controller's descriptor and must never be edited
// by hand.
package ds4

import "github.com/arcade-dev/ds4gadget/input"

// ReportSize is the fixed length, in bytes, of the PS4 input report.
const ReportSize = 64

// InputReportID is the report ID every PS4 input report carries in byte 0.
const InputReportID = 0x01

// ReportDescriptor is the exact byte sequence lifted from a licensed PS4
// controller (a Razer Panthera dump). It declares the standard input
// report (ID 1), a 31-byte output report (ID 5), a 47-byte feature report
// (ID 3) used for capability queries, and a vendor collection (0xFFF0)
// carrying the four authentication feature reports 0xF0-0xF3.
var ReportDescriptor = []byte{
	0x05, 0x01, //       Usage Page (Generic Desktop Ctrls)
	0x09, 0x05, //       Usage (Game Pad)
	0xA1, 0x01, //       Collection (Application)
	0x85, 0x01, //         Report ID (1)
	0x09, 0x30, //         Usage (X)
	0x09, 0x31, //         Usage (Y)
	0x09, 0x32, //         Usage (Z)
	0x09, 0x35, //         Usage (Rz)
	0x15, 0x00, //         Logical Minimum (0)
	0x26, 0xFF, 0x00, //   Logical Maximum (255)
	0x75, 0x08, //         Report Size (8)
	0x95, 0x04, //         Report Count (4)
	0x81, 0x02, //         Input (Data,Var,Abs)

	0x09, 0x39, //         Usage (Hat switch)
	0x15, 0x00, //         Logical Minimum (0)
	0x25, 0x07, //         Logical Maximum (7)
	0x35, 0x00, //         Physical Minimum (0)
	0x46, 0x3B, 0x01, //   Physical Maximum (315)
	0x65, 0x14, //         Unit (System: English Rotation, Length: Centimeter)
	0x75, 0x04, //         Report Size (4)
	0x95, 0x01, //         Report Count (1)
	0x81, 0x42, //         Input (Data,Var,Abs,Null State)

	0x65, 0x00, //         Unit (None)
	0x05, 0x09, //         Usage Page (Button)
	0x19, 0x01, //         Usage Minimum (0x01)
	0x29, 0x0E, //         Usage Maximum (0x0E)
	0x15, 0x00, //         Logical Minimum (0)
	0x25, 0x01, //         Logical Maximum (1)
	0x75, 0x01, //         Report Size (1)
	0x95, 0x0E, //         Report Count (14)
	0x81, 0x02, //         Input (Data,Var,Abs)

	0x06, 0x00, 0xFF, //   Usage Page (Vendor Defined 0xFF00)
	0x09, 0x20, //         Usage (0x20)
	0x75, 0x06, //         Report Size (6)
	0x95, 0x01, //         Report Count (1)
	0x81, 0x02, //         Input (Data,Var,Abs)

	0x05, 0x01, //         Usage Page (Generic Desktop Ctrls)
	0x09, 0x33, //         Usage (Rx)
	0x09, 0x34, //         Usage (Ry)
	0x15, 0x00, //         Logical Minimum (0)
	0x26, 0xFF, 0x00, //   Logical Maximum (255)
	0x75, 0x08, //         Report Size (8)
	0x95, 0x02, //         Report Count (2)
	0x81, 0x02, //         Input (Data,Var,Abs)

	0x06, 0x00, 0xFF, //   Usage Page (Vendor Defined 0xFF00)
	0x09, 0x21, //         Usage (0x21)
	0x95, 0x36, //         Report Count (54)
	0x81, 0x02, //         Input (Data,Var,Abs)

	0x85, 0x05, //         Report ID (5)
	0x09, 0x22, //         Usage (0x22)
	0x95, 0x1F, //         Report Count (31)
	0x91, 0x02, //         Output (Data,Var,Abs,Non-volatile)

	0x85, 0x03, //         Report ID (3)
	0x0A, 0x21, 0x27, //   Usage (0x2721)
	0x95, 0x2F, //         Report Count (47)
	0xB1, 0x02, //         Feature (Data,Var,Abs,Non-volatile)
	0xC0, //             End Collection

	0x06, 0xF0, 0xFF, //   Usage Page (Vendor Defined 0xFFF0)
	0x09, 0x40, //         Usage (0x40)
	0xA1, 0x01, //         Collection (Application)
	0x85, 0xF0, //           Report ID (0xF0)
	0x09, 0x47, //           Usage (0x47)
	0x95, 0x3F, //           Report Count (63)
	0xB1, 0x02, //           Feature (Data,Var,Abs,Non-volatile)
	0x85, 0xF1, //           Report ID (0xF1)
	0x09, 0x48, //           Usage (0x48)
	0x95, 0x3F, //           Report Count (63)
	0xB1, 0x02, //           Feature (Data,Var,Abs,Non-volatile)
	0x85, 0xF2, //           Report ID (0xF2)
	0x09, 0x49, //           Usage (0x49)
	0x95, 0x0F, //           Report Count (15)
	0xB1, 0x02, //           Feature (Data,Var,Abs,Non-volatile)
	0x85, 0xF3, //           Report ID (0xF3)
	0x0A, 0x01, 0x47, //     Usage (0x4701)
	0x95, 0x07, //           Report Count (7)
	0xB1, 0x02, //           Feature (Data,Var,Abs,Non-volatile)
	0xC0, //               End Collection
}

// CapabilityReportID is the feature report ID queried by the host for a
// static 47-byte capability blob (0x03).
const CapabilityReportID = 0x03

// CapabilityReport is a fixed 48-byte blob (report ID plus 47 payload
// bytes) copied from a real controller; its fields are not individually
// meaningful to this implementation.
var CapabilityReport = []byte{
	0x03, 0x21, 0x27, 0x04, 0x40, 0x07, 0x2c, 0x56, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x0d, 0x0d, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// EncodeInputReport serializes d into the 64-byte PS4 input report layout.
func EncodeInputReport(d input.DeviceInputs) [ReportSize]byte {
	var report [ReportSize]byte

	report[0] = InputReportID
	report[1] = d.LeftStickX
	report[2] = d.LeftStickY
	report[3] = d.RightStickX
	report[4] = d.RightStickY

	b1 := boolByte(d.Buttons.West)
	b2 := boolByte(d.Buttons.South)
	b3 := boolByte(d.Buttons.East)
	b4 := boolByte(d.Buttons.North)

	b5 := boolByte(d.Buttons.L1)
	b6 := boolByte(d.Buttons.R1)
	b7 := boolByte(d.Buttons.L2)
	b8 := boolByte(d.Buttons.R2)
	b9 := boolByte(d.Buttons.Select)
	b10 := boolByte(d.Buttons.Start)
	b11 := boolByte(d.Buttons.L3)
	b12 := boolByte(d.Buttons.R3)

	b13 := boolByte(d.Buttons.Home)
	b14 := boolByte(d.Buttons.Trackpad)

	report[5] = byte(d.Hat) | b1<<4 | b2<<5 | b3<<6 | b4<<7
	report[6] = b5 | b6<<1 | b7<<2 | b8<<3 | b9<<4 | b10<<5 | b11<<6 | b12<<7
	report[7] = b13 | b14<<1 | (d.Counter&0x3f)<<2

	report[8] = d.LeftTrigger
	report[9] = d.RightTrigger

	// bytes 10..64 (touchpad/tilt stub) remain zero.

	return report
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
