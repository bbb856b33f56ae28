// Scheduler hooks: periodic input sampling, idle-worker signing, and the
// HID backend that bridges both into the class adapter
// https://github.com/arcade-dev/ds4gadget
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package sched implements the three priority-band contract of §4.8: a
// periodic task that samples GPIO and emits input reports, an idle worker
// that drives the authentication handshake's signing step, and the
// combined hid.Backend both feed through a single ISR-context dispatch
// point. The sign call lives here, in the idle worker, rather than in the
// state machine itself; the package imports auth but not dsauth, and
// receives the signing primitive as a function wrapped by KeySigner.
package sched

import (
	"fmt"

	"github.com/arcade-dev/ds4gadget/alloc"
	"github.com/arcade-dev/ds4gadget/auth"
	"github.com/arcade-dev/ds4gadget/ds4"
	"github.com/arcade-dev/ds4gadget/hid"
	"github.com/arcade-dev/ds4gadget/input"
	"github.com/arcade-dev/ds4gadget/platform"
)

// Button index assignment for platform.Pins.Button, in the same order as
// input.Buttons' fields.
const (
	ButtonNorth = iota
	ButtonEast
	ButtonSouth
	ButtonWest
	ButtonL1
	ButtonL2
	ButtonL3
	ButtonR1
	ButtonR2
	ButtonR3
	ButtonStart
	ButtonSelect
	ButtonHome
	ButtonTrackpad
	NumButtons
)

func readButtons(pins platform.Pins) input.Buttons {
	return input.Buttons{
		North: pins.Button(ButtonNorth),
		East:  pins.Button(ButtonEast),
		South: pins.Button(ButtonSouth),
		West:  pins.Button(ButtonWest),

		L1: pins.Button(ButtonL1),
		L2: pins.Button(ButtonL2),
		L3: pins.Button(ButtonL3),

		R1: pins.Button(ButtonR1),
		R2: pins.Button(ButtonR2),
		R3: pins.Button(ButtonR3),

		Start:    pins.Button(ButtonStart),
		Select:   pins.Button(ButtonSelect),
		Home:     pins.Button(ButtonHome),
		Trackpad: pins.Button(ButtonTrackpad),
	}
}

// Backend implements hid.Backend over the live DeviceInputs snapshot (fed
// by InputTask) and the authentication state machine. It is the single
// ISR-context dispatch point: every GetReport/SetReport call arrives
// synchronously from a USB transfer-complete interrupt and must run to
// completion without blocking, per §4.8's "ISR (highest)" contract.
type Backend struct {
	machine *auth.Machine
	state   *input.DeviceInputs
}

// NewBackend returns a Backend reading live input state from state and
// dispatching authentication feature reports to machine.
func NewBackend(machine *auth.Machine, state *input.DeviceInputs) *Backend {
	return &Backend{machine: machine, state: state}
}

// Descriptor returns the PS4 HID report descriptor.
func (b *Backend) Descriptor() []byte {
	return ds4.ReportDescriptor
}

// GetReport answers an input, capability, signature-chunk, or status
// query. Report id 0 is the interrupt-IN alias for the current input
// report (the HID transport omits an explicit GetReport call per
// polling interval; Send uses it directly).
func (b *Backend) GetReport(reportType hid.ReportType, reportID uint8, maxLen int) ([]byte, error) {
	switch {
	case reportType == hid.ReportTypeInput && (reportID == 0 || reportID == ds4.InputReportID):
		report := ds4.EncodeInputReport(*b.state)
		return truncate(report[:], maxLen), nil

	case reportType == hid.ReportTypeFeature && reportID == ds4.CapabilityReportID:
		return truncate(ds4.CapabilityReport, maxLen), nil

	case reportType == hid.ReportTypeFeature && reportID == auth.SignatureReportID:
		chunk, err := b.machine.EmitSignatureChunk()
		if err != nil {
			return nil, err
		}
		return truncate(chunk[:], maxLen), nil

	case reportType == hid.ReportTypeFeature && reportID == auth.StatusReportID:
		status := b.machine.Status()
		return truncate(status[:], maxLen), nil

	default:
		return nil, fmt.Errorf("sched: no report for type %v id %#x", reportType, reportID)
	}
}

// SetReport accepts a nonce chunk (feature report 0xF0); every other
// report id is acknowledged and discarded (the output report carrying
// rumble/LED control, report id 5, has no effect in this implementation).
func (b *Backend) SetReport(reportType hid.ReportType, reportID uint8, payload []byte) error {
	if reportType != hid.ReportTypeFeature || reportID != auth.NonceReportID {
		return nil
	}

	if len(payload) != auth.ChunkLen {
		return fmt.Errorf("sched: nonce chunk length %d, want %d", len(payload), auth.ChunkLen)
	}

	var chunk [auth.ChunkLen]byte
	copy(chunk[:], payload)

	return b.machine.ReceiveNonceChunk(chunk)
}

func truncate(b []byte, maxLen int) []byte {
	if maxLen > 0 && len(b) > maxLen {
		return b[:maxLen]
	}
	return b
}

// InputTask is the periodic task of §4.8: every tick it snapshots the
// GPIO pins, runs the SOCD cleaner, and pushes an input report out the
// interrupt IN endpoint. Real firmware calls Tick from a ~900µs timer
// interrupt; the hosted simulator (platform/sim) drives it at its own
// cadence.
type InputTask struct {
	pins      platform.Pins
	adapter   *hid.ClassAdapter
	transport hid.Transport
	state     *input.DeviceInputs
}

// NewInputTask returns an InputTask sampling pins and writing reports
// through adapter to transport. state is shared with the Backend so that
// GetReport(Input) always reflects the latest tick.
func NewInputTask(pins platform.Pins, adapter *hid.ClassAdapter, transport hid.Transport, state *input.DeviceInputs) *InputTask {
	return &InputTask{pins: pins, adapter: adapter, transport: transport, state: state}
}

// Tick samples pins, cleans SOCD, updates the shared DeviceInputs, and
// emits an IN report.
func (t *InputTask) Tick() error {
	t.state.Counter = input.NextCounter(t.state.Counter)

	input.Apply(t.state, input.Raw{
		Up:            t.pins.Up(),
		Down:          t.pins.Down(),
		Left:          t.pins.Left(),
		Right:         t.pins.Right(),
		LeftStickMode: t.pins.LeftStickMode(),
	})
	t.state.Buttons = readButtons(t.pins)

	return t.adapter.Send(t.transport)
}

// KeySigner adapts a fixed-width DS4 signer (package dsauth's *DS4Key) to
// the platform.Signer interface the idle worker depends on, encoding its
// DS4Signature result to wire bytes.
type KeySigner struct {
	sign func(nonce [256]byte) ([1064]byte, error)
}

// NewKeySigner wraps sign (typically a *dsauth.DS4Key's Sign method
// composed with DS4Signature.Encode) as a platform.Signer.
func NewKeySigner(sign func(nonce [256]byte) ([1064]byte, error)) KeySigner {
	return KeySigner{sign: sign}
}

// Sign implements platform.Signer.
func (k KeySigner) Sign(nonce []byte) ([]byte, error) {
	if len(nonce) != 256 {
		return nil, fmt.Errorf("sched: nonce length %d, want 256", len(nonce))
	}

	var n [256]byte
	copy(n[:], nonce)

	encoded, err := k.sign(n)
	if err != nil {
		return nil, err
	}

	return encoded[:], nil
}

// Worker is the idle-priority task of §4.8: it loops forever (Step is
// called once per loop iteration by the caller's scheduling harness) and
// performs a sign whenever the authentication machine reaches
// PhaseReadyToSign. No component may call Sign from ISR context; Worker
// is built specifically for the lowest-priority band, which the periodic
// task and ISR are both free to preempt.
type Worker struct {
	machine   *auth.Machine
	signer    platform.Signer
	allocator *alloc.Allocator
	logger    platform.Logger
}

// NewWorker returns a Worker driving machine's signing transitions
// through signer, drawing the crypto library's transient scratch space
// from allocator. A nil logger discards diagnostics.
func NewWorker(machine *auth.Machine, signer platform.Signer, allocator *alloc.Allocator, logger platform.Logger) *Worker {
	if logger == nil {
		logger = platform.NopLogger{}
	}
	return &Worker{machine: machine, signer: signer, allocator: allocator, logger: logger}
}

// signingScratchSlots mirrors the allocator's reference configuration
// (alloc.DefaultSlots128/256/512): the measured peak simultaneous
// allocation count of a single RSA-PSS sign operation.
var signingScratchSlots = []struct {
	size, count int
}{
	{alloc.Class512, alloc.DefaultSlots512},
	{alloc.Class256, alloc.DefaultSlots256},
	{alloc.Class128, alloc.DefaultSlots128},
}

// reserveScratch claims the allocator's full reference configuration for
// the duration of one sign, standing in for the dynamic allocations the
// crypto library would make internally. On exhaustion it releases
// whatever it already claimed before returning the error.
func (w *Worker) reserveScratch() ([][]byte, error) {
	var bufs [][]byte
	for _, s := range signingScratchSlots {
		for i := 0; i < s.count; i++ {
			buf, err := w.allocator.Allocate(s.size)
			if err != nil {
				w.releaseScratch(bufs)
				return nil, err
			}
			bufs = append(bufs, buf)
		}
	}
	return bufs, nil
}

func (w *Worker) releaseScratch(bufs [][]byte) {
	for _, buf := range bufs {
		w.allocator.Release(buf)
	}
}

// Step performs one idle-worker iteration. It returns true if a sign was
// attempted (whether or not it succeeded), so a hosted caller can decide
// whether to yield immediately or keep spinning.
func (w *Worker) Step() bool {
	nonce, ok := w.machine.BeginSigning()
	if !ok {
		return false
	}

	scratch, err := w.reserveScratch()
	if err != nil {
		// Resource exhaustion here is fatal (spec.md §7, kind 3): the
		// allocator is sized against the crypto library's measured peak,
		// so exhaustion means a configuration bug, not a transient
		// condition a retry could fix. The device halts with a
		// diagnostic and must be reset by the host.
		panic(fmt.Sprintf("sched: signing scratch allocation failed: %v", err))
	}

	sig, err := w.signer.Sign(nonce[:])
	w.releaseScratch(scratch)

	if err != nil {
		w.logger.Printf("sched: sign failed: %v", err)
		// Even on failure the machine must leave Signing: write back a
		// zeroed buffer so CompleteSigning's CAS observes the abort path
		// the same way a host-triggered reset would.
		w.machine.CompleteSigning([auth.BufferLen]byte{})
		return true
	}

	var encoded [auth.BufferLen]byte
	copy(encoded[:], sig)
	w.machine.CompleteSigning(encoded)

	return true
}
