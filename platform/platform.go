// Platform collaborator interfaces
// https://github.com/arcade-dev/ds4gadget
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package platform defines the narrow hardware interfaces the core
// packages (input, hid, usbdev, sched) depend on instead of a concrete
// board, the same way the teacher depends on soc/nxp/gpio.Pin and
// internal/reg register accessors rather than a chip package. A real
// board (cmd/ds4gadget) and the hosted simulator (platform/sim) each
// supply their own implementations.
package platform

import "time"

// Pins exposes the boolean-valued physical inputs the SOCD cleaner and
// button layout consume: the four cardinal directions, fourteen buttons,
// and the left-stick-mode line. Each method returns true when the input is
// pressed. On the board each line is pulled high and a closed switch
// grounds it, so the cmd/ds4gadget implementation returns the inverse of
// soc/nxp/gpio.Pin.Value()'s raw level: low (grounded) means pressed.
type Pins interface {
	Up() bool
	Down() bool
	Left() bool
	Right() bool

	// Button returns whether the button at index (0-13) is pressed.
	Button(index int) bool

	// LeftStickMode reports whether the directional pad should drive the
	// left analog stick (true) or the D-pad hat switch (false).
	LeftStickMode() bool
}

// Clock is a monotonic tick source standing in for the teacher's
// cycle-counter scheduling.
type Clock interface {
	Now() time.Duration
}

// Logger is the ambient diagnostic sink every core package takes instead
// of importing the standard log package directly, matching the teacher's
// own log.Printf convention (soc/nxp/usb, soc/nxp/dcp, etc.) while letting
// a test assert on emitted diagnostics and firmware route them to a
// serial console.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Controller is the USB device-mode driver contract, abstracted from
// soc/nxp/usb.USB's concrete API so the HID/auth core never imports a
// chip package.
type Controller interface {
	// DeviceMode places the controller in USB device mode.
	DeviceMode()
	// Reset forces a bus reset, breaking any pull-up latching left by a
	// previous session (spec §4.7).
	Reset()
	// Start begins handling transfers for the endpoint configuration
	// described by the gadget descriptors.
	Start() error
	// ReadOUT returns the next OUT packet received on endpoint.
	ReadOUT(endpoint int) ([]byte, error)
	// WriteIN transmits data as an IN packet on endpoint.
	WriteIN(endpoint int, data []byte) error
}

// Signer is the RSA-PSS signing primitive boundary (spec.md §1's "an
// RSA-PSS signing primitive" external collaborator). Package sched wraps
// a *dsauth.DS4Key behind this interface so the idle worker depends on
// the narrow contract rather than the concrete crypto facade.
type Signer interface {
	Sign(nonce []byte) (sig []byte, err error)
}

// NopLogger discards every message; useful as a zero-value default.
type NopLogger struct{}

// Printf implements Logger by doing nothing.
func (NopLogger) Printf(string, ...interface{}) {}
