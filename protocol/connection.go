package protocol

import (
	"time"
)

// transport is the byte-level dependency Connection needs: satisfied by
// *serial.Transport, both in production and in the tests (where testsupport
// wraps a PTY pair in one), so Connection never imports the serial package
// directly.
type transport interface {
	Write(data []byte) (int, error)
	ReadFull(buf []byte, deadline time.Duration) (int, error)
	Reset() (version byte, hasVersion bool, err error)
	Flush() error
	Close() error
}

// connState is which half of the jump-table state machine the connection
// currently occupies.
type connState int

const (
	stateIdle connState = iota
	stateJump
)

// Connection is the framing state machine on top of the half-duplex byte
// stream: command_start/command_end bracket a "jump" during which opcodes
// are sent and single-byte/fixed-length acknowledgements are read back.
type Connection struct {
	t       transport
	state   connState
	opcodes opcodeTable
	tag     string
	version byte
}

// Dial resets the programmer, determines its firmware protocol revision,
// and returns a Connection bound to the matching opcode table.
func Dial(t transport) (*Connection, error) {
	if _, _, err := t.Reset(); err != nil {
		return nil, wrapErr("reset", err)
	}
	c := &Connection{t: t, state: stateIdle}

	tag, err := c.queryProtocolTag(p018Opcodes.protocolQuery)
	if err != nil || !isKnownTag(tag) {
		tag, err = c.queryProtocolTag(p18aOpcodes.protocolQuery)
		if err != nil {
			return nil, wrapErr("protocol query", err)
		}
	}
	opcodes, err := opcodeTableFor(tag)
	if err != nil {
		return nil, err
	}
	c.tag = tag
	c.opcodes = opcodes
	return c, nil
}

func isKnownTag(tag string) bool {
	return tag == "P018" || tag == "P18A"
}

// queryProtocolTag issues the protocol-version query using the given
// candidate opcode and returns the 4-byte tag, without assuming an opcode
// table is yet selected.
func (c *Connection) queryProtocolTag(opcode byte) (string, error) {
	if err := c.commandStart(&opcode); err != nil {
		return "", err
	}
	buf := make([]byte, 4)
	n, err := c.read(buf, 5*time.Second)
	if err != nil {
		c.Flush()
		return "", err
	}
	if n != 4 {
		c.Flush()
		return "", newInvalidResponseError("short protocol tag response")
	}
	if err := c.commandEnd(); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ProtocolTag returns the detected 4-byte protocol revision tag.
func (c *Connection) ProtocolTag() string { return c.tag }

// Close closes the underlying transport.
func (c *Connection) Close() error {
	return c.t.Close()
}

// Flush discards unread input on the transport.
func (c *Connection) Flush() error {
	return c.t.Flush()
}

func (c *Connection) read(buf []byte, timeout time.Duration) (int, error) {
	n, err := c.t.ReadFull(buf, timeout)
	if err != nil {
		return n, wrapErr("read", err)
	}
	return n, nil
}

// expect reads len(want) bytes within timeout and errors if they don't
// match exactly.
func (c *Connection) expect(want []byte, timeout time.Duration) error {
	buf := make([]byte, len(want))
	n, err := c.read(buf, timeout)
	if err != nil {
		return err
	}
	if n != len(want) || string(buf) != string(want) {
		return newInvalidResponseError("expected " + string(want) + ", got " + string(buf[:n]))
	}
	return nil
}

// commandStart transitions Idle -> Jump: resync with 0x01/'Q', send 'P',
// expect the 'P' ack, then optionally send the one-byte opcode.
func (c *Connection) commandStart(opcode *byte) error {
	if _, err := c.t.Write([]byte{0x01}); err != nil {
		return wrapErr("write resync", err)
	}
	if err := c.expect([]byte{'Q'}, 5*time.Second); err != nil {
		return err
	}
	if _, err := c.t.Write([]byte{'P'}); err != nil {
		return wrapErr("write jump start", err)
	}
	buf := make([]byte, 1)
	n, err := c.read(buf, 5*time.Second)
	if err != nil {
		return err
	}
	if n != 1 || buf[0] != 'P' {
		return newInvalidResponseError("no acknowledgement for command start")
	}
	c.state = stateJump
	if opcode != nil {
		if _, err := c.t.Write([]byte{*opcode}); err != nil {
			return wrapErr("write opcode", err)
		}
	}
	return nil
}

// commandEnd transitions Jump -> Idle: send 0x01, expect 'Q' within 10s.
func (c *Connection) commandEnd() error {
	if _, err := c.t.Write([]byte{0x01}); err != nil {
		return wrapErr("write command end", err)
	}
	if err := c.expect([]byte{'Q'}, 10*time.Second); err != nil {
		return err
	}
	c.state = stateIdle
	return nil
}

// echo sends msg one byte at a time via opcode 2 and returns the
// programmer's echoed bytes. The programmer is healthy iff the result
// equals msg exactly.
func (c *Connection) echo(msg []byte) ([]byte, error) {
	if err := c.commandStart(nil); err != nil {
		return nil, err
	}
	result := make([]byte, 0, len(msg))
	for _, b := range msg {
		if _, err := c.t.Write([]byte{2, b}); err != nil {
			return nil, wrapErr("write echo byte", err)
		}
		buf := make([]byte, 1)
		n, err := c.read(buf, 5*time.Second)
		if err != nil {
			return nil, err
		}
		if n == 1 {
			result = append(result, buf[0])
		}
	}
	if err := c.commandEnd(); err != nil {
		return nil, err
	}
	return result, nil
}

// Echo is the exported form of echo, for programmer_info/diagnostics.
func (c *Connection) Echo(msg []byte) ([]byte, error) {
	return c.echo(msg)
}

// waitForOccupancy implements wait_until_chip_in_socket/out_of_socket: opens
// a jump with opcode, expects 'A' then an open-ended 'Y', and ends the jump.
func (c *Connection) waitForOccupancy(opcode byte) error {
	if err := c.commandStart(&opcode); err != nil {
		return err
	}
	if err := c.expect([]byte{'A'}, 5*time.Second); err != nil {
		return err
	}
	// Open-ended: the user may take arbitrarily long to insert/remove the chip.
	if err := c.expect([]byte{'Y'}, 24*time.Hour); err != nil {
		return err
	}
	return c.commandEnd()
}

// WaitUntilChipInSocket blocks until a chip is inserted in the socket.
func (c *Connection) WaitUntilChipInSocket() error {
	return c.waitForOccupancy(c.opcodes.waitIn)
}

// WaitUntilChipOutOfSocket blocks until the chip is removed from the socket.
func (c *Connection) WaitUntilChipOutOfSocket() error {
	return c.waitForOccupancy(c.opcodes.waitOut)
}

// ProgrammerVersion returns the programmer's numeric hardware version
// (0=K128, 1=K149-A, 2=K149-B, 3=K150).
func (c *Connection) ProgrammerVersion() (byte, error) {
	opcode := c.opcodes.version
	if err := c.commandStart(&opcode); err != nil {
		return 0, err
	}
	buf := make([]byte, 1)
	n, err := c.read(buf, 5*time.Second)
	if err != nil {
		return 0, err
	}
	if err := c.commandEnd(); err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, newInvalidResponseError("no programmer version byte")
	}
	return buf[0], nil
}

// ProgrammerProtocol returns the programmer's protocol tag in text form.
func (c *Connection) ProgrammerProtocol() (string, error) {
	opcode := c.opcodes.protocolQuery
	if err := c.commandStart(&opcode); err != nil {
		return "", err
	}
	buf := make([]byte, 4)
	n, err := c.read(buf, 5*time.Second)
	if err != nil {
		return "", err
	}
	if err := c.commandEnd(); err != nil {
		return "", err
	}
	if n != 4 {
		return "", newInvalidResponseError("short protocol response")
	}
	return string(buf), nil
}
