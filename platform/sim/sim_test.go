package sim

import (
	"encoding/binary"
	"hash/crc32"
	"testing"
	"time"

	"github.com/arcade-dev/ds4gadget/alloc"
	"github.com/arcade-dev/ds4gadget/auth"
	"github.com/arcade-dev/ds4gadget/ds4"
	"github.com/arcade-dev/ds4gadget/hid"
	"github.com/arcade-dev/ds4gadget/input"
	"github.com/arcade-dev/ds4gadget/sched"
)

func buildChunk(reportID, seq, part uint8, payload []byte) [auth.ChunkLen]byte {
	var body [auth.ChunkLen - 4]byte
	body[0] = reportID
	body[1] = seq
	body[2] = part
	copy(body[4:], payload)

	var out [auth.ChunkLen]byte
	copy(out[:], body[:])
	binary.LittleEndian.PutUint32(out[auth.ChunkLen-4:], crc32.ChecksumIEEE(out[:auth.ChunkLen-4]))
	return out
}

func newTestHarness(t *testing.T) (*Harness, *Pins, *Transport, *auth.Machine) {
	t.Helper()

	pins := &Pins{}
	transport := &Transport{}
	state := &input.DeviceInputs{}
	machine := auth.New(nil)
	backend := sched.NewBackend(machine, state)
	adapter := hid.NewClassAdapter(backend, nil)

	periodic := sched.NewInputTask(pins, adapter, transport, state)

	signer := sched.NewKeySigner(func(nonce [256]byte) ([1064]byte, error) {
		var out [1064]byte
		out[0] = nonce[0] ^ 0xff // deterministic stand-in for a real signature
		return out, nil
	})
	worker := sched.NewWorker(machine, signer, alloc.Default(), nil)

	isr := func(req hid.ControlRequest) ([]byte, error) {
		return adapter.HandleControlRequest(req)
	}

	h := New(isr, periodic, worker, nil)
	return h, pins, transport, machine
}

func TestHarnessPeriodicTaskEmitsReports(t *testing.T) {
	h, pins, transport, _ := newTestHarness(t)
	pins.Set(false, false, false, true, false)

	h.Start(500 * time.Microsecond)
	defer h.Stop()

	deadline := time.After(2 * time.Second)
	for transport.Count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a periodic input report")
		case <-time.After(time.Millisecond):
		}
	}

	report := transport.Latest()
	if len(report) != ds4.ReportSize {
		t.Fatalf("len(report) = %d, want %d", len(report), ds4.ReportSize)
	}
}

func TestHarnessEndToEndSigningHandshake(t *testing.T) {
	h, _, _, machine := newTestHarness(t)

	h.Start(500 * time.Microsecond)
	defer h.Stop()

	for part := uint8(0); part < auth.NonceParts; part++ {
		chunk := buildChunk(auth.NonceReportID, 9, part, make([]byte, 56))

		_, err := h.Submit(hid.ControlRequest{
			Request: hid.ReqSetReport,
			Value:   uint16(hid.ReportTypeFeature)<<8 | uint16(auth.NonceReportID),
			Data:    chunk[:],
		})
		if err != nil {
			t.Fatalf("SetReport nonce chunk %d: %v", part, err)
		}
	}

	deadline := time.After(2 * time.Second)
	for machine.Phase() != auth.PhaseSendingSignature {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for SendingSignature, phase stuck at %v", machine.Phase())
		case <-time.After(time.Millisecond):
		}
	}

	var sigBytes []byte
	for i := 0; i < auth.SignatureParts; i++ {
		resp, err := h.Submit(hid.ControlRequest{
			Request: hid.ReqGetReport,
			Value:   uint16(hid.ReportTypeFeature)<<8 | uint16(auth.SignatureReportID),
			Length:  auth.ChunkLen,
		})
		if err != nil {
			t.Fatalf("GetReport signature chunk %d: %v", i, err)
		}
		sigBytes = append(sigBytes, resp[4:60]...)
	}

	if len(sigBytes) != auth.BufferLen {
		t.Fatalf("len(sigBytes) = %d, want %d", len(sigBytes), auth.BufferLen)
	}
	if sigBytes[0] != 0xff { // nonce byte 0 was 0, signer XORs with 0xff
		t.Fatalf("sigBytes[0] = %#x, want 0xff", sigBytes[0])
	}

	if machine.Phase() != auth.PhaseWaiting {
		t.Fatalf("Phase after final chunk = %v, want Waiting", machine.Phase())
	}
}

func TestControllerResetAndStart(t *testing.T) {
	ctrl := NewController(3, 4)
	ctrl.Reset()
	ctrl.DeviceMode()
	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := ctrl.WriteIN(4, []byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteIN: %v", err)
	}
}
