package serial

import (
	"time"
)

// ErrUnexpectedResponse is returned when the reset probe receives a first
// byte other than 'B'.
var ErrUnexpectedResponse = Error{msg: "unexpected response byte"}

// ErrNoResponse is returned when the reset probe gets no bytes back after
// both DTR pulses.
var ErrNoResponse = Error{msg: "no response from programmer"}

// underlyingReadTimeout bounds each individual syscall read performed while
// polling for bytes. Higher-level reads loop on top of this until either the
// requested count is satisfied or the caller's deadline elapses.
const underlyingReadTimeout = 100 * time.Millisecond

// Transport wraps a Port configured for PIC-programmer byte-protocol use:
// 19200 8N1, no flow control, and a short underlying read timeout with a
// polled-read helper layered on top of it.
type Transport struct {
	port *Port
}

// OpenTransport opens name at 19200 8N1, no flow control, and puts it in raw mode.
func OpenTransport(name string) (*Transport, error) {
	port, err := open19200(name)
	if err != nil {
		return nil, err
	}
	return &Transport{port: port}, nil
}

// open19200 opens name at 19200 baud, 8 data bits, no parity, one stop bit,
// no flow control, with a short underlying read timeout, and puts the line
// into raw mode.
func open19200(name string) (*Port, error) {
	opts := NewOptions().SetReadTimeout(underlyingReadTimeout)
	port, err := Open(name, opts)
	if err != nil {
		return nil, wrapErr("open "+name, err)
	}
	if err := port.MakeRaw(); err != nil {
		port.Close()
		return nil, wrapErr("set raw mode", err)
	}
	attrs, err := port.GetAttr()
	if err != nil {
		port.Close()
		return nil, wrapErr("get attrs", err)
	}
	attrs.SetSpeed(B19200)
	attrs.Cflag &= ^PARENB
	attrs.Cflag &= ^CSTOPB
	attrs.Cflag &= ^CRTSCTS
	attrs.Cflag |= CREAD | CLOCAL
	attrs.Iflag &= ^(IXON | IXOFF | IXANY)
	if err := port.SetAttr(TCSANOW, attrs); err != nil {
		port.Close()
		return nil, wrapErr("set attrs", err)
	}
	return port, nil
}

// NewTransport wraps an already-open Port as a Transport, without touching
// its termios settings. Used by testsupport to drive the real DTR/flush/
// read-timeout ioctl path over a PTY pair instead of a hand-rolled fake.
func NewTransport(port *Port) *Transport {
	return &Transport{port: port}
}

// Close closes the underlying port.
func (t *Transport) Close() error {
	return t.port.Close()
}

// Write writes data to the port.
func (t *Transport) Write(data []byte) (int, error) {
	return t.port.Write(data)
}

// ReadFull polls the port, accumulating bytes into buf until it is full or
// deadline elapses, whichever comes first. It returns the number of bytes
// actually read; a partial read is not an error, the caller decides whether
// it's sufficient.
func (t *Transport) ReadFull(buf []byte, deadline time.Duration) (int, error) {
	end := time.Now().Add(deadline)
	n := 0
	for n < len(buf) {
		remaining := time.Until(end)
		if remaining <= 0 {
			break
		}
		timeout := underlyingReadTimeout
		if remaining < timeout {
			timeout = remaining
		}
		m, err := t.port.ReadTimeout(buf[n:], timeout)
		if err != nil {
			if isTimeoutErr(err) {
				continue
			}
			return n, wrapErr("read", err)
		}
		n += m
	}
	return n, nil
}

// Flush discards unread input.
func (t *Transport) Flush() error {
	return t.port.Flush(TCIFLUSH)
}

// Reset performs the DTR reset probe: raise DTR, wait, flush input, lower
// DTR, wait, then read up to 2 bytes with a short deadline. A unit that
// operates with DTR low is now powered and answers; an empty read means the
// unit operates with DTR high instead, so DTR is raised again and the read
// retried while it is held high. The first returned byte must be 'B' for
// the probe to succeed; the second byte (if present) is the programmer's
// firmware version tag.
func (t *Transport) Reset() (version byte, hasVersion bool, err error) {
	if err := t.port.EnableModemLines(TIOCM_DTR); err != nil {
		return 0, false, wrapErr("raise DTR", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := t.Flush(); err != nil {
		return 0, false, wrapErr("flush", err)
	}
	if err := t.port.DisableModemLines(TIOCM_DTR); err != nil {
		return 0, false, wrapErr("lower DTR", err)
	}
	time.Sleep(100 * time.Millisecond)

	buf := make([]byte, 2)
	n, err := t.ReadFull(buf, 300*time.Millisecond)
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		// Apparently the unit operates with DTR high.
		if err := t.port.EnableModemLines(TIOCM_DTR); err != nil {
			return 0, false, wrapErr("raise DTR", err)
		}
		time.Sleep(100 * time.Millisecond)
		n, err = t.ReadFull(buf, 300*time.Millisecond)
		if err != nil {
			return 0, false, err
		}
	}

	if n == 0 {
		return 0, false, wrapErr("reset probe", ErrNoResponse)
	}
	if buf[0] != 'B' {
		return 0, false, wrapErr("reset probe", ErrUnexpectedResponse)
	}
	if n >= 2 {
		return buf[1], true, nil
	}
	return 0, false, nil
}

func isTimeoutErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	if te, ok := err.(timeouter); ok && te.Timeout() {
		return true
	}
	// poll.WaitInput's expired wait is also recognised by its "timeout" text.
	return err.Error() == "timeout"
}
