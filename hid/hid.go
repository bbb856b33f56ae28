// HID class adapter
// https://github.com/arcade-dev/ds4gadget
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package hid bridges USB control transfers and the interrupt IN/OUT
// endpoints to a pluggable Backend implementing the actual report content.
// It owns the HID class request dispatch (GetReport/SetReport/GetIdle/
// SetIdle/GetProtocol/SetProtocol) but never touches raw endpoint
// registers: the platform Controller collaborator stages a control
// transfer's OUT data before handing the adapter a ControlRequest, the
// same way a host gadget framework hands a class driver a fully formed
// request rather than raw SETUP/DATA/STATUS stages.
package hid

import "fmt"

// ReportType is the HID report type carried in the high byte of a
// GetReport/SetReport wValue.
type ReportType uint8

const (
	ReportTypeInput   ReportType = 1
	ReportTypeOutput  ReportType = 2
	ReportTypeFeature ReportType = 3
)

func (r ReportType) String() string {
	switch r {
	case ReportTypeInput:
		return "Input"
	case ReportTypeOutput:
		return "Output"
	case ReportTypeFeature:
		return "Feature"
	default:
		return fmt.Sprintf("Reserved(%#x)", uint8(r))
	}
}

// HID class request codes, bRequest values under the class/interface
// request type (USB HID 1.11 §7.2).
const (
	ReqGetReport   = 0x01
	ReqGetIdle     = 0x02
	ReqGetProtocol = 0x03
	ReqSetReport   = 0x09
	ReqSetIdle     = 0x0a
	ReqSetProtocol = 0x0b
)

// bmRequestType masks: class type, interface recipient.
const (
	requestTypeMask  = 0x60
	requestTypeClass = 0x20
)

// Logger is the minimal sink hid uses to report unsupported or malformed
// requests.
type Logger interface {
	Printf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

// Backend is the pluggable contract a ClassAdapter drives. Implementations
// supply the actual report descriptor and content; package sched provides
// the PS4 gamepad backend, combining package ds4's input report and
// descriptor with package auth's feature reports.
type Backend interface {
	// Descriptor returns the HID report descriptor bytes.
	Descriptor() []byte
	// GetReport returns up to maxLen bytes for (reportType, reportID), or
	// an error if the combination is not recognized.
	GetReport(reportType ReportType, reportID uint8, maxLen int) ([]byte, error)
	// SetReport delivers a host-originated report payload, or an error if
	// the combination is not recognized or the payload is invalid.
	SetReport(reportType ReportType, reportID uint8, payload []byte) error
}

// ControlRequest is a fully assembled USB control transfer: the standard
// five SetupData fields plus, for OUT requests, the data stage payload.
// The platform Controller collaborator is responsible for staging OUT
// data before constructing one of these; ClassAdapter never touches an
// endpoint register directly.
type ControlRequest struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16 // wLength; the host's requested buffer size for IN requests
	Data        []byte // OUT data stage payload; nil for IN requests
}

func (r ControlRequest) reportType() ReportType { return ReportType(r.Value >> 8) }
func (r ControlRequest) reportID() uint8         { return uint8(r.Value) }

// IsClassRequest reports whether req has the class request type (bits 5-6
// of bmRequestType); the recipient bits are not checked. A caller can use
// it to decide whether to route a control transfer here at all.
func (r ControlRequest) IsClassRequest() bool {
	return r.RequestType&requestTypeMask == requestTypeClass
}

// ClassAdapter dispatches HID class control requests to a Backend and
// tracks the report-id-0 idle duration. The zero value is not usable; construct
// with NewClassAdapter.
type ClassAdapter struct {
	backend Backend
	logger  Logger

	// idle is the report-id-0 idle duration set by SetIdle. Per spec.md's
	// open question, no component currently drives idle-based repeat from
	// it; it exists purely to answer GetIdle and to record what the host
	// asked for.
	idle uint8
}

// NewClassAdapter returns a ClassAdapter over backend. A nil logger
// discards diagnostics.
func NewClassAdapter(backend Backend, logger Logger) *ClassAdapter {
	if logger == nil {
		logger = nopLogger{}
	}
	return &ClassAdapter{backend: backend, logger: logger}
}

// Descriptor returns the backend's HID report descriptor.
func (c *ClassAdapter) Descriptor() []byte {
	return c.backend.Descriptor()
}

// HandleControlRequest dispatches req to the appropriate HID class
// operation, returning the response bytes for an IN-direction request (nil
// for OUT-direction requests that only need acknowledgement).
func (c *ClassAdapter) HandleControlRequest(req ControlRequest) ([]byte, error) {
	switch req.Request {
	case ReqGetReport:
		return c.backend.GetReport(req.reportType(), req.reportID(), int(req.Length))
	case ReqSetReport:
		return nil, c.backend.SetReport(req.reportType(), req.reportID(), req.Data)
	case ReqGetIdle:
		return []byte{c.getIdle(req.reportID())}, nil
	case ReqSetIdle:
		c.setIdle(req.reportID(), uint8(req.Value>>8))
		return nil, nil
	case ReqGetProtocol:
		c.logger.Printf("hid: GetProtocol rejected")
		return nil, fmt.Errorf("hid: GetProtocol is not supported")
	case ReqSetProtocol:
		c.logger.Printf("hid: SetProtocol rejected")
		return nil, fmt.Errorf("hid: SetProtocol is not supported")
	default:
		return nil, fmt.Errorf("hid: unsupported class request %#x", req.Request)
	}
}

func (c *ClassAdapter) getIdle(reportID uint8) uint8 {
	if reportID != 0 {
		return 0
	}
	return c.idle
}

// setIdle stores the idle duration for report-id 0 only; a non-zero
// report-id is logged and otherwise ignored, matching the reference
// firmware's behaviour (spec.md §9 open question).
func (c *ClassAdapter) setIdle(reportID, duration uint8) {
	if reportID != 0 {
		c.logger.Printf("hid: SetIdle for non-zero report id %d ignored", reportID)
		return
	}
	c.idle = duration
}

// Transport is the narrow collaborator Send uses to push a report out the
// interrupt IN endpoint.
type Transport interface {
	WriteInterruptIn(report []byte) error
}

// Send fetches the latest input report (report id 0) from the backend and
// writes it to the interrupt IN endpoint via t.
func (c *ClassAdapter) Send(t Transport) error {
	report, err := c.backend.GetReport(ReportTypeInput, 0, 64)
	if err != nil {
		return fmt.Errorf("hid: building input report: %w", err)
	}
	return t.WriteInterruptIn(report)
}
