// USB device glue: enumeration identity and HID class dispatch
// https://github.com/arcade-dev/ds4gadget
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package usbdev holds the gadget's bus identity (VID/PID, endpoint
// addresses, power budget) and wires the HID class adapter to whatever
// assembles the real usb.Device descriptor hierarchy. The descriptor
// types themselves come from the target's own USB stack
// (github.com/usbarmory/tamago/soc/imx6/usb, see cmd/ds4gadget); this
// package never re-derives a parallel copy of them.
package usbdev

import (
	"github.com/arcade-dev/ds4gadget/hid"
)

// VendorID and ProductID identify the gadget on the bus (spec §4.7).
const (
	VendorID  = 0x1209
	ProductID = 0x214d
)

// Endpoint addresses: one HID interface, two interrupt endpoints.
const (
	EndpointOUT = 3 // host -> device, output reports
	EndpointIN  = 4 // device -> host, input reports

	// MaxPacketSize0 is the EP0 control endpoint max packet size.
	MaxPacketSize0 = 64
	// MaxPacketSizeInt is the interrupt endpoint max packet size.
	MaxPacketSizeInt = 64

	// MaxPower is the advertised bus-power ceiling in 2 mA units: 250 * 2mA = 500 mA.
	MaxPower = 250
)

// Strings holds the gadget's manufacturer/product/serial identification,
// per spec §4.7's "short manufacturer/product/serial string" requirement.
type Strings struct {
	Manufacturer string
	Product      string
	Serial       string
}

// Gadget bundles the gadget's identification strings and the HID class
// adapter into the collaborator whatever builds the real usb.Device
// drives at enumeration time and on every control transfer.
type Gadget struct {
	Strings Strings

	adapter *hid.ClassAdapter
}

// New builds a Gadget around adapter, with the given identification
// strings.
func New(adapter *hid.ClassAdapter, strings Strings) *Gadget {
	return &Gadget{
		Strings: strings,
		adapter: adapter,
	}
}

// ReportDescriptor returns the HID report descriptor bytes, used both to
// answer a HID GetDescriptor(Report) request and to size the HID class
// descriptor embedded in the configuration.
func (g *Gadget) ReportDescriptor() []byte {
	return g.adapter.Descriptor()
}

// HandleControlRequest routes a HID class control transfer to the
// underlying ClassAdapter; standard (non-class) requests are the platform
// Controller's own responsibility.
func (g *Gadget) HandleControlRequest(req hid.ControlRequest) ([]byte, error) {
	return g.adapter.HandleControlRequest(req)
}
