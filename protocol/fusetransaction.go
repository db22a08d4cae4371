package protocol

import "time"

// FuseTransaction is the open handle ProgramIDFuses returns for 16-bit
// cores: fuse values staged by ProgramIDFuses aren't committed until Commit
// is called with the final 7 fuse words.
type FuseTransaction struct {
	pi *ProgrammingInterface
}

// Commit sends the "commit 18F fuses" command, finalizing the 7 fuse words
// previously staged by ProgramIDFuses.
func (ft *FuseTransaction) Commit(fuses []uint16) error {
	if len(fuses) != 7 {
		return newInvalidValueError("should have 7 fuses for 16 bit core")
	}
	pi := ft.pi
	body := make([]byte, 10+14)
	for i, f := range fuses {
		putLE16(body[10+2*i:], f)
	}

	if err := pi.conn.commandStart(nil); err != nil {
		return err
	}
	if err := pi.SetVpp(true); err != nil {
		return err
	}
	if _, err := pi.conn.t.Write([]byte{pi.conn.opcodes.commitFuses}); err != nil {
		return wrapErr("write commit fuses opcode", err)
	}
	if _, err := pi.conn.t.Write(body); err != nil {
		return wrapErr("write fuse words", err)
	}
	buf := make([]byte, 1)
	n, err := pi.conn.read(buf, 20*time.Second)
	if err != nil {
		return err
	}
	if err := pi.SetVpp(false); err != nil {
		return err
	}
	if err := pi.conn.commandEnd(); err != nil {
		return err
	}
	if n != 1 || buf[0] != 'Y' {
		return newInvalidResponseError("commit fuses rejected")
	}
	return nil
}
