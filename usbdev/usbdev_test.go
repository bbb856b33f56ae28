package usbdev

import (
	"bytes"
	"testing"

	"github.com/arcade-dev/ds4gadget/auth"
	"github.com/arcade-dev/ds4gadget/ds4"
	"github.com/arcade-dev/ds4gadget/hid"
)

type fakeBackend struct{}

func (fakeBackend) Descriptor() []byte { return ds4.ReportDescriptor }
func (fakeBackend) GetReport(hid.ReportType, uint8, int) ([]byte, error) {
	return make([]byte, ds4.ReportSize), nil
}
func (fakeBackend) SetReport(hid.ReportType, uint8, []byte) error { return nil }

func newTestGadget() *Gadget {
	adapter := hid.NewClassAdapter(fakeBackend{}, nil)
	return New(adapter, Strings{Manufacturer: "Arcade Dev", Product: "DS4 Gadget", Serial: "0001"})
}

func TestReportDescriptorMatchesBackend(t *testing.T) {
	g := newTestGadget()
	if !bytes.Equal(g.ReportDescriptor(), ds4.ReportDescriptor) {
		t.Fatal("ReportDescriptor() did not match the backend's descriptor")
	}
}

func TestHandleControlRequestDelegatesToAdapter(t *testing.T) {
	g := newTestGadget()

	resp, err := g.HandleControlRequest(hid.ControlRequest{
		Request: hid.ReqGetReport,
		Value:   uint16(hid.ReportTypeInput) << 8,
		Length:  uint16(ds4.ReportSize),
	})
	if err != nil {
		t.Fatalf("HandleControlRequest: %v", err)
	}
	if len(resp) != ds4.ReportSize {
		t.Fatalf("len(resp) = %d, want %d", len(resp), ds4.ReportSize)
	}
}

// vendorFeatureBackend exercises the auth package's feature report IDs
// to confirm the gadget wiring reaches them through the same adapter.
type vendorFeatureBackend struct {
	m *auth.Machine
}

func (vendorFeatureBackend) Descriptor() []byte { return ds4.ReportDescriptor }

func (b vendorFeatureBackend) GetReport(rt hid.ReportType, id uint8, maxLen int) ([]byte, error) {
	if rt == hid.ReportTypeFeature && id == auth.StatusReportID {
		status := b.m.Status()
		return status[:], nil
	}
	return make([]byte, ds4.ReportSize), nil
}

func (vendorFeatureBackend) SetReport(hid.ReportType, uint8, []byte) error { return nil }

func TestVendorFeatureReportReachesAuthStatus(t *testing.T) {
	m := auth.New(nil)
	adapter := hid.NewClassAdapter(vendorFeatureBackend{m: m}, nil)
	g := New(adapter, Strings{Manufacturer: "m", Product: "p", Serial: "s"})

	resp, err := g.HandleControlRequest(hid.ControlRequest{
		Request: hid.ReqGetReport,
		Value:   uint16(hid.ReportTypeFeature)<<8 | uint16(auth.StatusReportID),
		Length:  auth.StatusLen,
	})
	if err != nil {
		t.Fatalf("HandleControlRequest: %v", err)
	}
	if len(resp) != auth.StatusLen {
		t.Fatalf("len(resp) = %d, want %d", len(resp), auth.StatusLen)
	}
}
