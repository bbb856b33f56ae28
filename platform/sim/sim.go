// Hosted simulator: three goroutines standing in for ISR/periodic/idle
// https://github.com/arcade-dev/ds4gadget
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package sim reproduces the firmware's three-priority-band execution
// model (§4.8/§5) with ordinary goroutines, the way TamaGo's own hosted
// examples run as goroutines cooperating via runtime.Gosched because the
// bare-metal scheduler is itself single-core and cooperative
// (soc/nxp/usb/endpoint_handler.go). It exists for tests and the
// developer monitor to drive the firmware end-to-end without hardware.
package sim

import (
	"runtime"
	"sync"
	"time"

	"github.com/arcade-dev/ds4gadget/hid"
	"github.com/arcade-dev/ds4gadget/platform"
)

// Pins is an in-memory platform.Pins implementation a test or the
// monitor CLI can mutate directly.
type Pins struct {
	mu sync.Mutex

	up, down, left, right bool
	leftStickMode         bool
	buttons               [14]bool
}

// Set updates the four cardinal directions and the left-stick-mode line.
func (p *Pins) Set(up, down, left, right, leftStickMode bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.up, p.down, p.left, p.right, p.leftStickMode = up, down, left, right, leftStickMode
}

// SetButton sets the pressed state of the button at index (0-13).
func (p *Pins) SetButton(index int, pressed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buttons[index] = pressed
}

func (p *Pins) Up() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.up
}

func (p *Pins) Down() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.down
}

func (p *Pins) Left() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.left
}

func (p *Pins) Right() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.right
}

func (p *Pins) LeftStickMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leftStickMode
}

func (p *Pins) Button(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buttons[index]
}

// Transport is an in-memory hid.Transport recording every interrupt IN
// report written to it, for inspection by a test or the monitor CLI.
type Transport struct {
	mu     sync.Mutex
	latest []byte
	count  int
}

// WriteInterruptIn implements hid.Transport.
func (t *Transport) WriteInterruptIn(report []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest = append([]byte(nil), report...)
	t.count++
	return nil
}

// Latest returns the most recently written report, or nil if none yet.
func (t *Transport) Latest() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}

// Count returns the number of reports written so far.
func (t *Transport) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// simController is an in-memory platform.Controller: ReadOUT/WriteIN push
// and pop from per-endpoint channels, and DeviceMode/Reset/Start just
// record that they were called, standing in for the real bus control
// transfer sequencing the platform.Controller interface abstracts away.
// NewController returns one.
type simController struct {
	out map[int]chan []byte
	in  map[int]chan []byte

	resetCount int
	started    bool
}

// NewController returns a platform.Controller backed by buffered
// channels for the given endpoint numbers.
func NewController(endpoints ...int) platform.Controller {
	c := &simController{
		out: make(map[int]chan []byte),
		in:  make(map[int]chan []byte),
	}
	for _, ep := range endpoints {
		c.out[ep] = make(chan []byte, 16)
		c.in[ep] = make(chan []byte, 16)
	}
	return c
}

func (c *simController) DeviceMode() {}

func (c *simController) Reset() {
	c.resetCount++
}

func (c *simController) Start() error {
	c.started = true
	return nil
}

func (c *simController) ReadOUT(endpoint int) ([]byte, error) {
	ch, ok := c.out[endpoint]
	if !ok {
		return nil, nil
	}
	select {
	case b := <-ch:
		return b, nil
	default:
		return nil, nil
	}
}

func (c *simController) WriteIN(endpoint int, data []byte) error {
	ch, ok := c.in[endpoint]
	if !ok {
		return nil
	}
	ch <- append([]byte(nil), data...)
	return nil
}

// PeriodicTask is the minimal contract the periodic-priority goroutine
// drives: one Tick per firing of its ticker.
type PeriodicTask interface {
	Tick() error
}

// IdleWorker is the minimal contract the idle-priority goroutine drives:
// one Step per spin of its loop, returning whether it did work.
type IdleWorker interface {
	Step() bool
}

// ISRHandler processes one control-transfer-complete event; the ISR
// goroutine calls it for every request delivered on the requests
// channel and never blocks otherwise, matching §4.8's "runs to
// completion; never blocks" contract.
type ISRHandler func(hid.ControlRequest) ([]byte, error)

// Harness runs the three priority bands as goroutines: an ISR goroutine
// draining a request channel, a periodic goroutine ticking on a
// time.Ticker, and an idle goroutine spinning on runtime.Gosched between
// Step calls.
type Harness struct {
	isr      ISRHandler
	periodic PeriodicTask
	idle     IdleWorker
	logger   platform.Logger

	requests chan isrRequest
	stop     chan struct{}
	wg       sync.WaitGroup
}

type isrRequest struct {
	req  hid.ControlRequest
	resp chan isrResponse
}

type isrResponse struct {
	data []byte
	err  error
}

// New returns a Harness. A nil logger discards diagnostics.
func New(isr ISRHandler, periodic PeriodicTask, idle IdleWorker, logger platform.Logger) *Harness {
	if logger == nil {
		logger = platform.NopLogger{}
	}
	return &Harness{
		isr:      isr,
		periodic: periodic,
		idle:     idle,
		logger:   logger,
		requests: make(chan isrRequest, 16),
		stop:     make(chan struct{}),
	}
}

// Submit delivers req to the ISR goroutine and blocks for its response,
// the way a real control-transfer-complete interrupt synchronously hands
// a SETUP packet to its handler.
func (h *Harness) Submit(req hid.ControlRequest) ([]byte, error) {
	resp := make(chan isrResponse, 1)
	h.requests <- isrRequest{req: req, resp: resp}
	r := <-resp
	return r.data, r.err
}

// Start launches the three priority-band goroutines. period is the
// periodic task's tick interval (~900µs in real firmware, per §4.8).
func (h *Harness) Start(period time.Duration) {
	h.wg.Add(3)
	go h.runISR()
	go h.runPeriodic(period)
	go h.runIdle()
}

// Stop halts all three goroutines and waits for them to exit.
func (h *Harness) Stop() {
	close(h.stop)
	h.wg.Wait()
}

func (h *Harness) runISR() {
	defer h.wg.Done()
	for {
		select {
		case <-h.stop:
			return
		case r := <-h.requests:
			data, err := h.isr(r.req)
			r.resp <- isrResponse{data: data, err: err}
		}
	}
}

func (h *Harness) runPeriodic(period time.Duration) {
	defer h.wg.Done()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			if err := h.periodic.Tick(); err != nil {
				h.logger.Printf("sim: periodic tick error: %v", err)
			}
		}
	}
}

func (h *Harness) runIdle() {
	defer h.wg.Done()

	for {
		select {
		case <-h.stop:
			return
		default:
			if !h.idle.Step() {
				runtime.Gosched()
			}
		}
	}
}
