// Developer monitor for the DS4 gadget authentication handshake
// https://github.com/arcade-dev/ds4gadget
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Command ds4monitor is host-side tooling: it drives the full firmware
// stack against the hosted simulator and renders the authentication
// handshake, input state, and allocator pressure live, without a PS4 or
// real hardware attached.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"encoding/hex"
	"flag"
	"fmt"
	"hash/crc32"
	"log"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	_ "github.com/mkevac/debugcharts"
	psutilcpu "github.com/shirou/gopsutil/v3/cpu"
	psutilmem "github.com/shirou/gopsutil/v3/mem"

	"github.com/arcade-dev/ds4gadget/alloc"
	"github.com/arcade-dev/ds4gadget/auth"
	"github.com/arcade-dev/ds4gadget/dsauth"
	"github.com/arcade-dev/ds4gadget/hid"
	"github.com/arcade-dev/ds4gadget/input"
	"github.com/arcade-dev/ds4gadget/platform/sim"
	"github.com/arcade-dev/ds4gadget/sched"
)

var debugChartsAddr = flag.String("debugcharts", "", "if set, serve goroutine/heap charts on this address (e.g. localhost:1234)")

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#FFFF00")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA")).Bold(true)

	phaseStyle = map[auth.Phase]lipgloss.Style{
		auth.PhaseWaiting:          lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
		auth.PhaseReceivingNonce:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24")),
		auth.PhaseReadyToSign:      lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24")),
		auth.PhaseSigning:          lipgloss.NewStyle().Foreground(lipgloss.Color("#F97316")),
		auth.PhaseSendingSignature: lipgloss.NewStyle().Foreground(lipgloss.Color("#34D399")),
		auth.PhaseResetting:        lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")),
	}

	noticeStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#10B981")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// devKey is a throwaway manufacturer key generated at startup, standing in
// for the flash-provisioned key real firmware boots with.
func devKey() (*dsauth.DS4Key, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	leftPad := func(b []byte, n int) []byte {
		out := make([]byte, n)
		copy(out[n-len(b):], b)
		return out
	}

	var blob [dsauth.KeyLen]byte
	off := 0
	off += copy(blob[off:], []byte("MONITOR-DEV-0001"))
	off += copy(blob[off:], leftPad(priv.PublicKey.N.Bytes(), dsauth.FieldLen))
	off += copy(blob[off:], leftPad(big.NewInt(int64(priv.PublicKey.E)).Bytes(), dsauth.FieldLen))
	off += dsauth.FieldLen // sig: left zero
	off += copy(blob[off:], leftPad(priv.Primes[0].Bytes(), dsauth.FieldLen/2))
	copy(blob[off:], leftPad(priv.Primes[1].Bytes(), dsauth.FieldLen/2))

	return dsauth.LoadEmbeddedKey(blob)
}

// stack bundles one full instance of the firmware's software stack wired
// to the hosted simulator, the same composition cmd/ds4gadget performs
// against real hardware.
type stack struct {
	harness   *sim.Harness
	pins      *sim.Pins
	transport *sim.Transport
	machine   *auth.Machine
	state     *input.DeviceInputs
	allocator *alloc.Allocator
	key       *dsauth.DS4Key
}

func newStack() (*stack, error) {
	key, err := devKey()
	if err != nil {
		return nil, fmt.Errorf("generating development key: %w", err)
	}

	pins := &sim.Pins{}
	transport := &sim.Transport{}
	state := &input.DeviceInputs{}
	machine := auth.New(nil)
	backend := sched.NewBackend(machine, state)
	adapter := hid.NewClassAdapter(backend, nil)
	periodic := sched.NewInputTask(pins, adapter, transport, state)

	signer := sched.NewKeySigner(func(nonce [256]byte) ([1064]byte, error) {
		sig, err := key.Sign(nonce)
		if err != nil {
			return [1064]byte{}, err
		}
		return sig.Encode(), nil
	})
	allocator := alloc.Default()
	worker := sched.NewWorker(machine, signer, allocator, nil)

	isr := func(req hid.ControlRequest) ([]byte, error) {
		return adapter.HandleControlRequest(req)
	}

	h := sim.New(isr, periodic, worker, nil)

	return &stack{
		harness:   h,
		pins:      pins,
		transport: transport,
		machine:   machine,
		state:     state,
		allocator: allocator,
		key:       key,
	}, nil
}

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

// injectNonce drives a synthetic 256-byte nonce through the same five
// feature-report SetReport calls a host driver would issue.
func (s *stack) injectNonce() error {
	var nonce [256]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}

	for part := uint8(0); part < auth.NonceParts; part++ {
		start := int(part) * auth.ChunkPayloadLen
		end := start + auth.ChunkPayloadLen
		if end > len(nonce) {
			end = len(nonce)
		}
		chunk := buildChunk(auth.NonceReportID, 1, part, nonce[start:end])
		if _, err := s.harness.Submit(hid.ControlRequest{
			Request: hid.ReqSetReport,
			Value:   uint16(hid.ReportTypeFeature)<<8 | uint16(auth.NonceReportID),
			Data:    chunk[:],
		}); err != nil {
			return err
		}
	}

	return nil
}

// collectSignature polls the machine until a signature is ready and reads
// back all nineteen feature-report chunks of it.
func (s *stack) collectSignature() ([auth.BufferLen]byte, error) {
	var out [auth.BufferLen]byte

	deadline := time.Now().Add(5 * time.Second)
	for s.machine.Phase() != auth.PhaseSendingSignature {
		if time.Now().After(deadline) {
			return out, fmt.Errorf("timed out waiting for a signature")
		}
		time.Sleep(time.Millisecond)
	}

	off := 0
	for i := 0; i < auth.SignatureParts; i++ {
		resp, err := s.harness.Submit(hid.ControlRequest{
			Request: hid.ReqGetReport,
			Value:   uint16(hid.ReportTypeFeature)<<8 | uint16(auth.SignatureReportID),
			Length:  auth.ChunkLen,
		})
		if err != nil {
			return out, err
		}
		off += copy(out[off:], resp[4:60])
	}

	return out, nil
}

type nonceResultMsg struct{ err error }
type signatureResultMsg struct {
	sig [auth.BufferLen]byte
	err error
}
type statsMsg struct {
	cpuPct float64
	memPct float64
}
type refreshMsg time.Time

func refreshTick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func pollStats() tea.Cmd {
	return func() tea.Msg {
		var cpuPct float64
		if pcts, err := psutilcpu.Percent(0, false); err == nil && len(pcts) > 0 {
			cpuPct = pcts[0]
		}

		var memPct float64
		if vm, err := psutilmem.VirtualMemory(); err == nil {
			memPct = vm.UsedPercent
		}

		return statsMsg{cpuPct: cpuPct, memPct: memPct}
	}
}

type model struct {
	st *stack

	cpuPct, memPct float64

	signing    bool
	lastSig    [auth.BufferLen]byte
	haveSig    bool
	copyNotice string
	statusLine string
	quitting   bool
}

func initialModel(st *stack) model {
	return model{st: st, statusLine: "press n to inject a nonce, c to copy the last signature, q to quit"}
}

func (m model) Init() tea.Cmd {
	m.st.harness.Start(900 * time.Microsecond)
	return tea.Batch(refreshTick(), pollStats())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.st.harness.Stop()
			return m, tea.Quit

		case "n":
			if m.signing {
				return m, nil
			}
			m.signing = true
			m.statusLine = "injecting nonce..."
			return m, func() tea.Msg {
				err := m.st.injectNonce()
				return nonceResultMsg{err: err}
			}

		case "c":
			if !m.haveSig {
				m.copyNotice = "no signature captured yet"
				return m, nil
			}
			if err := clipboard.WriteAll(hex.EncodeToString(m.lastSig[:])); err != nil {
				m.copyNotice = fmt.Sprintf("clipboard error: %v", err)
			} else {
				m.copyNotice = "signature hex copied to clipboard"
			}
			return m, nil
		}

	case nonceResultMsg:
		if msg.err != nil {
			m.signing = false
			m.statusLine = fmt.Sprintf("nonce injection failed: %v", msg.err)
			return m, nil
		}
		m.statusLine = "waiting for the idle worker to sign..."
		return m, func() tea.Msg {
			sig, err := m.st.collectSignature()
			return signatureResultMsg{sig: sig, err: err}
		}

	case signatureResultMsg:
		m.signing = false
		if msg.err != nil {
			m.statusLine = fmt.Sprintf("signature collection failed: %v", msg.err)
			return m, nil
		}
		m.lastSig = msg.sig
		m.haveSig = true
		m.statusLine = "signature ready (press c to copy)"
		return m, nil

	case statsMsg:
		m.cpuPct = msg.cpuPct
		m.memPct = msg.memPct
		return m, nil

	case refreshMsg:
		return m, refreshTick()
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return "ds4monitor: shutting down the simulator\n"
	}

	header := headerStyle.Render("ds4gadget monitor")

	phase := m.st.machine.Phase()
	style, ok := phaseStyle[phase]
	if !ok {
		style = valueStyle
	}

	authBlock := fmt.Sprintf(
		"%s %s\n%s %d\n%s %d",
		labelStyle.Render("phase:"), style.Render(phase.String()),
		labelStyle.Render("nonce_id:"), m.st.machine.NonceID(),
		labelStyle.Render("next_part:"), m.st.machine.NextPart(),
	)

	in := m.st.state
	inputBlock := fmt.Sprintf(
		"%s hat=%v lx=%d ly=%d rx=%d ry=%d lt=%d rt=%d\n%s %+v",
		labelStyle.Render("inputs:"), in.Hat, in.LeftStickX, in.LeftStickY,
		in.RightStickX, in.RightStickY, in.LeftTrigger, in.RightTrigger,
		labelStyle.Render("buttons:"), in.Buttons,
	)

	c128, c256, c512 := m.st.allocator.Stats()
	allocBlock := fmt.Sprintf(
		"%s 128=%s 256=%s 512=%s",
		labelStyle.Render("allocator:"), c128.String(), c256.String(), c512.String(),
	)

	loadBlock := fmt.Sprintf(
		"%s %.1f%%  %s %.1f%%",
		labelStyle.Render("cpu:"), m.cpuPct,
		labelStyle.Render("mem:"), m.memPct,
	)

	reportsBlock := fmt.Sprintf("%s %d", labelStyle.Render("reports emitted:"), m.st.transport.Count())

	var notice string
	if m.copyNotice != "" {
		notice = "\n" + noticeStyle.Render(m.copyNotice)
	}

	help := helpStyle.Render(m.statusLine + "  |  n: inject nonce  c: copy signature  q: quit")

	return strings.Join([]string{
		header,
		"",
		authBlock,
		"",
		inputBlock,
		"",
		allocBlock,
		reportsBlock,
		loadBlock,
		notice,
		"",
		help,
	}, "\n")
}

func main() {
	flag.Parse()

	if *debugChartsAddr != "" {
		go func() {
			log.Printf("ds4monitor: serving debug charts on http://%s/debug/charts", *debugChartsAddr)
			if err := http.ListenAndServe(*debugChartsAddr, nil); err != nil {
				log.Printf("ds4monitor: debug charts server exited: %v", err)
			}
		}()
	}

	st, err := newStack()
	if err != nil {
		log.Fatalf("ds4monitor: %v", err)
	}

	p := tea.NewProgram(initialModel(st), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("ds4monitor: %v", err)
	}
}
