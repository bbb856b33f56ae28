package ds4

import (
	"testing"

	"github.com/arcade-dev/ds4gadget/input"
)

func TestEncodeInputReportHeader(t *testing.T) {
	var d input.DeviceInputs
	d.Hat = input.HatNeutral

	report := EncodeInputReport(d)

	if report[0] != InputReportID {
		t.Fatalf("report[0] = %#x, want %#x", report[0], InputReportID)
	}
	if len(report) != ReportSize {
		t.Fatalf("len(report) = %d, want %d", len(report), ReportSize)
	}
}

func TestEncodeInputReportAxesAndHat(t *testing.T) {
	d := input.DeviceInputs{
		LeftStickX:  10,
		LeftStickY:  20,
		RightStickX: 30,
		RightStickY: 40,
		Hat:         input.HatEast,
	}

	report := EncodeInputReport(d)

	if report[1] != 10 || report[2] != 20 || report[3] != 30 || report[4] != 40 {
		t.Fatalf("axes = %v, want [10 20 30 40]", report[1:5])
	}
	if report[5]&0x0f != byte(input.HatEast) {
		t.Fatalf("hat nibble = %#x, want %#x", report[5]&0x0f, input.HatEast)
	}
}

func TestEncodeInputReportButtonBits(t *testing.T) {
	d := input.DeviceInputs{
		Buttons: input.Buttons{
			West:  true,
			North: true,
			L1:    true,
			R3:    true,
			Home:  true,
		},
	}

	report := EncodeInputReport(d)

	if report[5]&0x10 == 0 {
		t.Fatal("West button bit not set")
	}
	if report[5]&0x80 == 0 {
		t.Fatal("North button bit not set")
	}
	if report[6]&0x01 == 0 {
		t.Fatal("L1 button bit not set")
	}
	if report[6]&0x80 == 0 {
		t.Fatal("R3 button bit not set")
	}
	if report[7]&0x01 == 0 {
		t.Fatal("Home button bit not set")
	}
}

func TestEncodeInputReportCounterBits(t *testing.T) {
	d := input.DeviceInputs{Counter: 0x3f}

	report := EncodeInputReport(d)

	if report[7]>>2 != 0x3f {
		t.Fatalf("counter bits = %#x, want 0x3f", report[7]>>2)
	}
}

func TestEncodeInputReportTrailerIsZero(t *testing.T) {
	d := input.DeviceInputs{Counter: 0x3f, LeftTrigger: 255, RightTrigger: 255}
	report := EncodeInputReport(d)

	for i := 10; i < ReportSize; i++ {
		if report[i] != 0 {
			t.Fatalf("report[%d] = %#x, want 0", i, report[i])
		}
	}
}

func TestReportDescriptorContainsAuthFeatureReports(t *testing.T) {
	// The vendor collection must advertise report IDs 0xF0-0xF3 as feature
	// reports, each preceded by its 0x85 Report ID tag.
	ids := []byte{0xF0, 0xF1, 0xF2, 0xF3}
	for _, id := range ids {
		found := false
		for i := 0; i+1 < len(ReportDescriptor); i++ {
			if ReportDescriptor[i] == 0x85 && ReportDescriptor[i+1] == id {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("report descriptor missing Report ID tag for %#x", id)
		}
	}
}

func TestCapabilityReportShape(t *testing.T) {
	if len(CapabilityReport) != 48 {
		t.Fatalf("len(CapabilityReport) = %d, want 48", len(CapabilityReport))
	}
	if CapabilityReport[0] != CapabilityReportID {
		t.Fatalf("CapabilityReport[0] = %#x, want %#x", CapabilityReport[0], CapabilityReportID)
	}
}
