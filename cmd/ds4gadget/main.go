// DS4 gamepad gadget firmware
// https://github.com/arcade-dev/ds4gadget
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago

// Command ds4gadget is the bare-metal entry point: it brings up the board,
// wires the PS4 HID gadget and authentication handshake to the real USB
// controller and GPIO pins, and runs the three priority-band scheduler
// forever. Built with `GOOS=tamago GOARCH=arm` per the TamaGo framework,
// the same way the teacher's own board examples are built.
package main

import (
	"log"
	"runtime"
	"time"

	"github.com/usbarmory/tamago/soc/imx6/usb"
	"github.com/usbarmory/tamago/soc/nxp/gpio"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	"github.com/arcade-dev/ds4gadget/alloc"
	"github.com/arcade-dev/ds4gadget/auth"
	"github.com/arcade-dev/ds4gadget/dsauth"
	"github.com/arcade-dev/ds4gadget/hid"
	"github.com/arcade-dev/ds4gadget/input"
	"github.com/arcade-dev/ds4gadget/platform"
	"github.com/arcade-dev/ds4gadget/sched"
	"github.com/arcade-dev/ds4gadget/usbdev"
)

// inputPins maps the nineteen physical lines (four directions, fourteen
// buttons, left-stick-mode) the SOCD cleaner and button layout consume to
// GPIO numbers on the board's expansion header. Provisioned per build,
// not auto-detected.
var inputPins = struct {
	up, down, left, right int
	leftStickMode         int
	buttons               [sched.NumButtons]int
}{
	up: 0, down: 1, left: 2, right: 3,
	leftStickMode: 4,
	buttons:       [sched.NumButtons]int{5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18},
}

// ds4KeyFlash is the 1424-byte manufacturer signing key blob, provisioned
// into a dedicated flash partition at manufacturing time and linked in
// read-only. It is never written by firmware.
var ds4KeyFlash [dsauth.KeyLen]byte

// boardPins implements platform.Pins over a fixed set of GPIO lines. A
// pin reads "pressed" on low, matching gpio.Pin.Value()'s raw level and
// the reference firmware's is_low() convention for a pulled-high,
// switch-to-ground button.
type boardPins struct {
	up, down, left, right *gpio.Pin
	leftStickMode         *gpio.Pin
	buttons               [sched.NumButtons]*gpio.Pin
}

func newBoardPins(hw *gpio.GPIO) (*boardPins, error) {
	open := func(num int) (*gpio.Pin, error) {
		pin, err := hw.Init(num)
		if err != nil {
			return nil, err
		}
		pin.In()
		return pin, nil
	}

	p := &boardPins{}

	var err error
	if p.up, err = open(inputPins.up); err != nil {
		return nil, err
	}
	if p.down, err = open(inputPins.down); err != nil {
		return nil, err
	}
	if p.left, err = open(inputPins.left); err != nil {
		return nil, err
	}
	if p.right, err = open(inputPins.right); err != nil {
		return nil, err
	}
	if p.leftStickMode, err = open(inputPins.leftStickMode); err != nil {
		return nil, err
	}
	for i, num := range inputPins.buttons {
		if p.buttons[i], err = open(num); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *boardPins) Up() bool            { return !p.up.Value() }
func (p *boardPins) Down() bool          { return !p.down.Value() }
func (p *boardPins) Left() bool          { return !p.left.Value() }
func (p *boardPins) Right() bool         { return !p.right.Value() }
func (p *boardPins) LeftStickMode() bool { return !p.leftStickMode.Value() }
func (p *boardPins) Button(index int) bool {
	return !p.buttons[index].Value()
}

// fwLogger routes core-package diagnostics to the standard log package,
// matching the teacher's own ambient logging convention.
type fwLogger struct{}

func (fwLogger) Printf(format string, args ...interface{}) { log.Printf(format, args...) }

// buildDevice assembles the concrete usb.Device the SoC's controller
// enumerates, using gadget's identification strings and report
// descriptor.
func buildDevice(gadget *usbdev.Gadget, send func() ([]byte, error), recv func([]byte) (int, error)) *usb.Device {
	dev := &usb.Device{}
	dev.SetLanguageCodes([]uint16{0x0409})

	dev.Descriptor = &usb.DeviceDescriptor{}
	dev.Descriptor.SetDefaults()
	dev.Descriptor.DeviceClass = 0x00
	dev.Descriptor.VendorId = usbdev.VendorID
	dev.Descriptor.ProductId = usbdev.ProductID

	iManufacturer, _ := dev.AddString(gadget.Strings.Manufacturer)
	dev.Descriptor.Manufacturer = iManufacturer
	iProduct, _ := dev.AddString(gadget.Strings.Product)
	dev.Descriptor.Product = iProduct
	iSerial, _ := dev.AddString(gadget.Strings.Serial)
	dev.Descriptor.SerialNumber = iSerial

	conf := &usb.ConfigurationDescriptor{}
	conf.SetDefaults()
	conf.MaxPower = usbdev.MaxPower
	conf.NumInterfaces = 1
	dev.Configurations = append(dev.Configurations, conf)
	dev.Descriptor.NumConfigurations = 1

	iface := &usb.InterfaceDescriptor{}
	iface.SetDefaults()
	iface.NumEndpoints = 2
	iface.InterfaceClass = 0x03 // HID
	iface.ClassDescriptors = append(iface.ClassDescriptors, gadget.ReportDescriptor())
	conf.Interfaces = append(conf.Interfaces, iface)

	epIN := &usb.EndpointDescriptor{}
	epIN.SetDefaults()
	epIN.EndpointAddress = usbdev.EndpointIN | 0x80
	epIN.Attributes = 0x03 // interrupt
	epIN.MaxPacketSize = usbdev.MaxPacketSizeInt
	epIN.Function = func(_ []byte, lastErr error) ([]byte, error) {
		return send()
	}
	iface.Endpoints = append(iface.Endpoints, epIN)

	epOUT := &usb.EndpointDescriptor{}
	epOUT.SetDefaults()
	epOUT.EndpointAddress = usbdev.EndpointOUT
	epOUT.Attributes = 0x03
	epOUT.MaxPacketSize = usbdev.MaxPacketSizeInt
	epOUT.Function = func(buf []byte, lastErr error) ([]byte, error) {
		_, err := recv(buf)
		return nil, err
	}
	iface.Endpoints = append(iface.Endpoints, epOUT)

	dev.Setup = func(setup *usb.SetupData) (in []byte, ack bool, done bool, err error) {
		if setup.RequestType&0x60 != 0x20 { // not a class request
			return nil, false, false, nil
		}

		req := hid.ControlRequest{
			RequestType: setup.RequestType,
			Request:     setup.Request,
			Value:       setup.Value,
			Index:       setup.Index,
			Length:      setup.Length,
		}

		resp, err := gadget.HandleControlRequest(req)
		return resp, len(resp) == 0, true, err
	}

	return dev
}

func main() {
	key, err := dsauth.LoadEmbeddedKey(ds4KeyFlash)
	if err != nil {
		log.Fatalf("ds4gadget: loading manufacturer key: %v", err)
	}

	logger := fwLogger{}

	machine := auth.New(logger)
	state := &input.DeviceInputs{}

	backend := sched.NewBackend(machine, state)
	adapter := hid.NewClassAdapter(backend, logger)

	gadget := usbdev.New(adapter, usbdev.Strings{
		Manufacturer: "Arcade Dev",
		Product:      "DS4 Gadget",
		Serial:       string(key.Serial[:]),
	})

	pins, err := newBoardPins(imx6ul.GPIO1)
	if err != nil {
		log.Fatalf("ds4gadget: initializing input pins: %v", err)
	}

	var latestReport [64]byte
	send := func() ([]byte, error) { return latestReport[:], nil }
	recv := func([]byte) (int, error) { return 0, nil } // LED/rumble output report: no-op

	usbDevice := buildDevice(gadget, send, recv)

	reportTransport := reportTransportFunc(func(report []byte) error {
		copy(latestReport[:], report)
		return nil
	})
	periodic := sched.NewInputTask(pins, adapter, reportTransport, state)

	signer := sched.NewKeySigner(func(nonce [256]byte) ([1064]byte, error) {
		sig, err := key.Sign(nonce)
		if err != nil {
			return [1064]byte{}, err
		}
		return sig.Encode(), nil
	})
	worker := sched.NewWorker(machine, signer, alloc.Default(), logger)

	go runPeriodic(periodic, logger)
	go runIdle(worker)

	usb.USB1.Init()
	usb.USB1.DeviceMode()

	// never returns: the ISR (USB transfer completion) dispatch loop
	// lives inside usb.USB1.Start, driven by hardware interrupts.
	usb.USB1.Start(usbDevice)
}

// reportTransportFunc adapts a plain function to hid.Transport.
type reportTransportFunc func(report []byte) error

func (f reportTransportFunc) WriteInterruptIn(report []byte) error { return f(report) }

// runPeriodic drives the input-sampling task at a fixed ~900µs rate, the
// highest-frequency cooperative context below the ISR.
func runPeriodic(task *sched.InputTask, logger platform.Logger) {
	ticker := time.NewTicker(900 * time.Microsecond)
	defer ticker.Stop()

	for range ticker.C {
		if err := task.Tick(); err != nil {
			logger.Printf("ds4gadget: periodic tick error: %v", err)
		}
	}
}

// runIdle drives the idle-priority signing worker forever, yielding to
// higher-priority contexts between steps.
func runIdle(w *sched.Worker) {
	for {
		if !w.Step() {
			runtime.Gosched()
		}
	}
}
