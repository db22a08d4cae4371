// Package testsupport provides an in-process stand-in for a real K128/K149/
// K150 programmer, built on a PTY pair rather than a hand-rolled io.Reader,
// so the DTR-toggle reset probe in serial.Transport and the jump-table
// framing in protocol.Connection are exercised through the real ioctl path
// instead of being mocked away.
package testsupport

import (
	"sync"
	"time"

	"github.com/kitsrus/picprog/serial"
)

// CommandHandler handles one opcode's fixed-length argument bytes and
// returns the bytes the device should write back. For commands whose
// exchange isn't a single fixed-length request/response (program_rom's
// packet loop, for instance), register a RawHandler instead.
type CommandHandler func(args []byte) []byte

// RawHandler drives a command's full exchange directly against the device,
// for opcodes with variable-length or multi-round-trip payloads.
type RawHandler func(d *Device)

// Device is the PTY-side half of a mocked programmer connection. It watches
// the slave end for the reset probe's DTR pulse and answers it, then runs
// the same command_start/command_end jump-table framing a real programmer
// does, dispatching opcodes within a jump to registered handlers.
type Device struct {
	slave *serial.Port

	mu           sync.Mutex
	version      byte
	silent       bool
	badFirstByte bool
	dtrHigh      bool
	handlers     map[byte]handlerEntry

	stop chan struct{}
	done chan struct{}
}

type handlerEntry struct {
	argLen int
	fn     CommandHandler
	raw    RawHandler
}

// OpenPair opens a PTY pair and returns the host side wrapped as a
// serial.Transport (wired to the same reset/read/flush code path used
// against real hardware) and the device side as a *Device for the test to
// drive.
func OpenPair() (*serial.Transport, *Device, error) {
	master, slave, err := serial.OpenPTY()
	if err != nil {
		return nil, nil, err
	}
	d := &Device{
		slave:    slave,
		version:  0x01,
		handlers: map[byte]handlerEntry{},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go d.serve()
	return serial.NewTransport(master), d, nil
}

// SetVersion sets the second byte the reset probe receives.
func (d *Device) SetVersion(v byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = v
}

// SetSilent makes the device never answer the reset probe, simulating a
// disconnected or dead programmer.
func (d *Device) SetSilent(silent bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent = silent
}

// SetBadFirstByte makes the reset probe's response start with a byte other
// than 'B', simulating a misbehaving or wrong-firmware device.
func (d *Device) SetBadFirstByte(bad bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.badFirstByte = bad
}

// SetDTRHigh makes the device a DTR-high unit: it is unpowered while the
// line is low, so it stays silent after the probe's pulse and only answers
// once the host raises DTR again and holds it.
func (d *Device) SetDTRHigh(high bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dtrHigh = high
}

func (d *Device) isDTRHigh() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dtrHigh
}

// Handle registers a responder for opcode: argLen bytes are read following
// the opcode byte and passed to fn, whose return value is written back.
func (d *Device) Handle(opcode byte, argLen int, fn CommandHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[opcode] = handlerEntry{argLen: argLen, fn: fn}
}

// HandleRaw registers fn to drive opcode's entire exchange itself, via
// ReadExact/Write, for commands whose framing isn't one fixed-length
// request/response pair.
func (d *Device) HandleRaw(opcode byte, fn RawHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[opcode] = handlerEntry{raw: fn}
}

// ReadExact reads exactly n bytes within the given total deadline, the same
// polled-accumulate shape serial.Transport.ReadFull uses on the host side.
func (d *Device) ReadExact(n int, deadline time.Duration) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	end := time.Now().Add(deadline)
	for got < n && time.Now().Before(end) {
		m, err := d.slave.ReadTimeout(buf[got:], 50*time.Millisecond)
		if err != nil {
			continue
		}
		got += m
	}
	if got < n {
		return buf[:got], errShortRead
	}
	return buf, nil
}

// Write writes bytes to the slave side of the PTY.
func (d *Device) Write(data []byte) (int, error) {
	return d.slave.Write(data)
}

// Close stops the device's background goroutine and closes the slave port.
func (d *Device) Close() error {
	close(d.stop)
	<-d.done
	return d.slave.Close()
}

// serve watches for the DTR pulse and then answers opcodes until closed.
func (d *Device) serve() {
	defer close(d.done)
	if !d.waitForResetPulse() {
		return
	}
	if d.isDTRHigh() {
		// A DTR-high unit lost power when the probe lowered the line; it
		// answers only after the host raises DTR again.
		if !d.waitForDSR(true) {
			return
		}
	}
	d.answerReset()
	d.serveProtocol()
}

// waitForResetPulse polls the slave's modem lines for a DTR-derived
// assert/deassert edge, mirroring the reset probe's raise-then-lower pulse
// on the master side (Linux's pty driver loops master DTR/RTS back as slave
// DSR/CTS). It returns false if stop fires first.
func (d *Device) waitForResetPulse() bool {
	return d.waitForDSR(true) && d.waitForDSR(false)
}

// waitForDSR polls the slave's modem lines until DSR matches want,
// returning false if stop fires first.
func (d *Device) waitForDSR(want bool) bool {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return false
		case <-ticker.C:
			lines, err := d.slave.GetModemLines()
			if err != nil {
				continue
			}
			if (lines&serial.TIOCM_DSR != 0) == want {
				return true
			}
		}
	}
}

func (d *Device) answerReset() {
	d.mu.Lock()
	silent := d.silent
	first := byte('B')
	if d.badFirstByte {
		first = 'X'
	}
	resp := []byte{first, d.version}
	d.mu.Unlock()

	if silent {
		return
	}
	d.slave.Write(resp)
}

// serveProtocol implements the jump-table framing itself: 0x01 always
// echoes 'Q' and arms the next byte to be checked against 'P' (this covers
// both command_start's initial resync and command_end's exit, which are the
// same byte from the device's point of view); 'P' while armed acks with 'P'
// and opens a jump; any byte while a jump is open is treated as an opcode
// and dispatched to a registered handler.
func (d *Device) serveProtocol() {
	var awaitingP, inJump bool
	buf := make([]byte, 1)
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		n, err := d.slave.ReadTimeout(buf, 50*time.Millisecond)
		if err != nil || n == 0 {
			continue
		}
		b := buf[0]
		switch {
		case b == 0x01:
			d.slave.Write([]byte{'Q'})
			awaitingP = true
			inJump = false
		case awaitingP && b == 'P':
			d.slave.Write([]byte{'P'})
			awaitingP = false
			inJump = true
		case inJump:
			d.dispatchOpcode(b)
		}
	}
}

func (d *Device) dispatchOpcode(opcode byte) {
	d.mu.Lock()
	entry, ok := d.handlers[opcode]
	d.mu.Unlock()
	if !ok {
		return
	}
	if entry.raw != nil {
		entry.raw(d)
		return
	}
	var args []byte
	if entry.argLen > 0 {
		a, err := d.ReadExact(entry.argLen, time.Second)
		if err != nil {
			return
		}
		args = a
	}
	resp := entry.fn(args)
	if len(resp) > 0 {
		d.slave.Write(resp)
	}
}

type mockError string

func (e mockError) Error() string { return string(e) }

const errShortRead = mockError("short read from mock device")
