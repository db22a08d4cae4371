package protocol

import (
	"fmt"
	"time"

	"github.com/kitsrus/picprog/chipinfo"
)

// ProgrammingInterface owns a Connection and a chip-info entry and exposes
// the programmer's command set: program/read ROM, EEPROM, ID+fuses,
// calibration, blank checks, and the debug vector.
type ProgrammingInterface struct {
	conn    *Connection
	chip    *chipinfo.ChipInfo
	vars    *chipinfo.ProgrammingVars
	coreBits int
}

// NewProgrammingInterface sends the "initialise programming variables"
// command (opcode 3) and returns a ProgrammingInterface bound to conn. When
// icspMode is set, power_sequence 2/4 are remapped to 1/3 before sending,
// matching the in-circuit-serial-programming power-up order.
func NewProgrammingInterface(conn *Connection, chip *chipinfo.ChipInfo, icspMode bool) (*ProgrammingInterface, error) {
	coreBits, err := chip.CoreBits()
	if err != nil {
		return nil, err
	}
	vars, err := chip.ProgrammingVars()
	if err != nil {
		return nil, err
	}
	if icspMode {
		switch vars.PowerSequence {
		case 2:
			vars.PowerSequence = 1
		case 4:
			vars.PowerSequence = 3
		}
	}

	pi := &ProgrammingInterface{conn: conn, chip: chip, vars: vars, coreBits: coreBits}
	if err := pi.initProgrammingVars(); err != nil {
		return nil, err
	}
	return pi, nil
}

func (pi *ProgrammingInterface) initProgrammingVars() error {
	opcode := pi.conn.opcodes.initVars
	if err := pi.conn.commandStart(&opcode); err != nil {
		return err
	}
	var flags byte
	if pi.vars.FlagCalibrationInROM {
		flags |= 1
	}
	if pi.vars.FlagBandGapFuse {
		flags |= 2
	}
	if pi.vars.Flag18FSinglePanelAccess {
		flags |= 4
	}
	if pi.vars.FlagVccVppDelay {
		flags |= 8
	}
	payload := make([]byte, 9)
	payload[0] = byte(pi.vars.ROMSize >> 8)
	payload[1] = byte(pi.vars.ROMSize)
	payload[2] = byte(pi.vars.EEPROMSize >> 8)
	payload[3] = byte(pi.vars.EEPROMSize)
	payload[4] = byte(pi.vars.CoreType)
	payload[5] = flags
	payload[6] = byte(pi.vars.ProgramDelay)
	payload[7] = byte(pi.vars.PowerSequence)
	payload[8] = byte(pi.vars.EraseMode)
	payload = append(payload, byte(pi.vars.ProgramRetries), byte(pi.vars.OverProgram))
	if _, err := pi.conn.t.Write(payload); err != nil {
		return wrapErr("write programming vars", err)
	}
	if err := pi.conn.expect([]byte{'I'}, 5*time.Second); err != nil {
		return err
	}
	return pi.conn.commandEnd()
}

// SetVpp turns the programming voltages on or off inside the current jump.
func (pi *ProgrammingInterface) SetVpp(on bool) error {
	if on {
		if _, err := pi.conn.t.Write([]byte{pi.conn.opcodes.vppOn}); err != nil {
			return wrapErr("write vpp on", err)
		}
		return pi.conn.expect([]byte{'V'}, 5*time.Second)
	}
	if _, err := pi.conn.t.Write([]byte{pi.conn.opcodes.vppOff}); err != nil {
		return wrapErr("write vpp off", err)
	}
	return pi.conn.expect([]byte{'v'}, 5*time.Second)
}

// CycleVpp pulses the programming voltages in their own jump.
func (pi *ProgrammingInterface) CycleVpp() error {
	opcode := pi.conn.opcodes.cycleVpp
	if err := pi.conn.commandStart(&opcode); err != nil {
		return err
	}
	if err := pi.conn.expect([]byte{'V'}, 5*time.Second); err != nil {
		return err
	}
	return pi.conn.commandEnd()
}

// ProgramROM writes data (big-endian words) to ROM in 32-byte packets.
func (pi *ProgrammingInterface) ProgramROM(data []byte) error {
	wordCount := len(data) / 2
	if wordCount > pi.chip.ROMSize {
		return newInvalidValueError(fmt.Sprintf("data too large for PIC ROM %d > %d", wordCount, pi.chip.ROMSize))
	}
	if (wordCount*2)%32 != 0 {
		return newInvalidValueError("ROM data must be a multiple of 32 bytes in size")
	}

	if err := pi.conn.commandStart(nil); err != nil {
		return err
	}
	if err := pi.SetVpp(true); err != nil {
		return err
	}
	if _, err := pi.conn.t.Write([]byte{pi.conn.opcodes.programROM}); err != nil {
		return wrapErr("write program rom opcode", err)
	}
	wc := make([]byte, 2)
	putBE16(wc, uint16(wordCount))
	if _, err := pi.conn.t.Write(wc); err != nil {
		return wrapErr("write word count", err)
	}
	if err := pi.conn.expect([]byte{'Y'}, 20*time.Second); err != nil {
		pi.conn.Flush()
		return err
	}
	for i := 0; i < wordCount*2; i += 32 {
		end := i + 32
		if end > len(data) {
			end = len(data)
		}
		if _, err := pi.conn.t.Write(data[i:end]); err != nil {
			return wrapErr("write rom packet", err)
		}
		if err := pi.conn.expect([]byte{'Y'}, 20*time.Second); err != nil {
			pi.conn.Flush()
			return err
		}
	}
	if err := pi.conn.expect([]byte{'P'}, 20*time.Second); err != nil {
		pi.conn.Flush()
		return err
	}
	if err := pi.SetVpp(false); err != nil {
		return err
	}
	return pi.conn.commandEnd()
}

// ProgramEEPROM writes data to EEPROM in 2-byte chunks.
func (pi *ProgrammingInterface) ProgramEEPROM(data []byte) error {
	if len(data) > pi.chip.EEPROMSize {
		return newInvalidValueError("data too large for PIC EEPROM")
	}
	if len(data)%2 != 0 {
		return newInvalidValueError("EEPROM data must be a multiple of 2 bytes in size")
	}

	if err := pi.conn.commandStart(nil); err != nil {
		return err
	}
	if err := pi.SetVpp(true); err != nil {
		return err
	}
	if _, err := pi.conn.t.Write([]byte{pi.conn.opcodes.programEEPROM}); err != nil {
		return wrapErr("write program eeprom opcode", err)
	}
	bc := make([]byte, 2)
	putBE16(bc, uint16(len(data)))
	if _, err := pi.conn.t.Write(bc); err != nil {
		return wrapErr("write byte count", err)
	}
	if err := pi.conn.expect([]byte{'Y'}, 20*time.Second); err != nil {
		return err
	}
	for i := 0; i < len(data); i += 2 {
		if _, err := pi.conn.t.Write(data[i : i+2]); err != nil {
			return wrapErr("write eeprom chunk", err)
		}
		if err := pi.conn.expect([]byte{'Y'}, 20*time.Second); err != nil {
			return err
		}
	}
	// Two extra bytes the protocol requires for no documented reason; zero
	// is a no-op if we've wound up back at the jump table.
	if _, err := pi.conn.t.Write([]byte{0, 0}); err != nil {
		return wrapErr("write eeprom trailer", err)
	}
	if err := pi.conn.expect([]byte{'P'}, 20*time.Second); err != nil {
		return err
	}
	if err := pi.SetVpp(false); err != nil {
		return err
	}
	return pi.conn.commandEnd()
}

// ProgramIDFuses programs the user ID and fuse words. For 16-bit cores it
// returns a FuseTransaction the caller must Commit to finalize the fuses;
// for 12/14-bit cores fuses take effect immediately and the return is nil.
func (pi *ProgrammingInterface) ProgramIDFuses(picID []byte, fuses []uint16) (*FuseTransaction, error) {
	var body []byte
	if pi.coreBits == 16 {
		if len(picID) != 8 {
			return nil, newInvalidValueError("should have 8-byte ID for 16 bit core")
		}
		if len(fuses) != 7 {
			return nil, newInvalidValueError("should have 7 fuses for 16 bit core")
		}
		body = make([]byte, 0, 2+8+14)
		body = append(body, '0', '0')
		body = append(body, picID...)
		for _, f := range fuses {
			w := make([]byte, 2)
			putLE16(w, f)
			body = append(body, w...)
		}
	} else {
		if len(fuses) != 1 {
			return nil, newInvalidValueError("should have one fuse for 14 bit core")
		}
		if len(picID) != 4 {
			return nil, newInvalidValueError("should have 4-byte ID for 14 bit core")
		}
		body = make([]byte, 0, 2+4+4+2+12)
		body = append(body, '0', '0')
		body = append(body, picID...)
		body = append(body, 'F', 'F', 'F', 'F')
		w := make([]byte, 2)
		putLE16(w, fuses[0])
		body = append(body, w...)
		for i := 0; i < 6; i++ {
			body = append(body, 0xFF, 0xFF)
		}
	}

	if err := pi.conn.commandStart(nil); err != nil {
		return nil, err
	}
	if err := pi.SetVpp(true); err != nil {
		return nil, err
	}
	if _, err := pi.conn.t.Write([]byte{pi.conn.opcodes.programIDFuses}); err != nil {
		return nil, wrapErr("write program id+fuses opcode", err)
	}
	if _, err := pi.conn.t.Write(body); err != nil {
		return nil, wrapErr("write id+fuses body", err)
	}
	buf := make([]byte, 1)
	n, err := pi.conn.read(buf, 20*time.Second)
	if err != nil {
		return nil, err
	}
	if err := pi.SetVpp(false); err != nil {
		return nil, err
	}
	if err := pi.conn.commandEnd(); err != nil {
		return nil, err
	}
	if n != 1 || buf[0] != 'Y' {
		return nil, newInvalidResponseError("program_id_fuses rejected")
	}

	if pi.coreBits == 16 {
		return &FuseTransaction{pi: pi}, nil
	}
	return nil, nil
}

// ProgramCalibration programs the calibration word and its accompanying
// fuse word (12/14-bit devices that keep calibration outside ROM).
func (pi *ProgrammingInterface) ProgramCalibration(calibrate, fuse uint16) error {
	if err := pi.conn.commandStart(nil); err != nil {
		return err
	}
	if err := pi.SetVpp(true); err != nil {
		return err
	}
	if _, err := pi.conn.t.Write([]byte{pi.conn.opcodes.programCalibration}); err != nil {
		return wrapErr("write program calibration opcode", err)
	}
	payload := make([]byte, 4)
	putBE16(payload[0:2], calibrate)
	putBE16(payload[2:4], fuse)
	if _, err := pi.conn.t.Write(payload); err != nil {
		return wrapErr("write calibration payload", err)
	}
	buf := make([]byte, 1)
	n, err := pi.conn.read(buf, 10*time.Second)
	if err != nil {
		return err
	}
	if err := pi.SetVpp(false); err != nil {
		return err
	}
	if err := pi.conn.commandEnd(); err != nil {
		return err
	}
	if n != 1 {
		return newInvalidResponseError("program_calibration: no response")
	}
	switch buf[0] {
	case 'Y':
		return nil
	case 'C':
		return newInvalidResponseError("program_calibration: calibration failed")
	case 'F':
		return newInvalidResponseError("program_calibration: fuse failed")
	default:
		return newInvalidResponseError(fmt.Sprintf("program_calibration: unexpected response %q", buf[0]))
	}
}

// ReadROM returns the chip's ROM contents as big-endian words.
func (pi *ProgrammingInterface) ReadROM() ([]byte, error) {
	romBytes := pi.chip.ROMSize * 2
	if err := pi.conn.commandStart(nil); err != nil {
		return nil, err
	}
	if err := pi.SetVpp(true); err != nil {
		return nil, err
	}
	if _, err := pi.conn.t.Write([]byte{pi.conn.opcodes.readROM}); err != nil {
		return nil, wrapErr("write read rom opcode", err)
	}
	buf := make([]byte, romBytes)
	n, err := pi.conn.read(buf, 180*time.Second)
	if err != nil {
		return nil, err
	}
	if err := pi.SetVpp(false); err != nil {
		return nil, err
	}
	if err := pi.conn.commandEnd(); err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// ReadEEPROM returns the chip's EEPROM contents.
func (pi *ProgrammingInterface) ReadEEPROM() ([]byte, error) {
	if err := pi.conn.commandStart(nil); err != nil {
		return nil, err
	}
	if err := pi.SetVpp(true); err != nil {
		return nil, err
	}
	if _, err := pi.conn.t.Write([]byte{pi.conn.opcodes.readEEPROM}); err != nil {
		return nil, wrapErr("write read eeprom opcode", err)
	}
	buf := make([]byte, pi.chip.EEPROMSize)
	n, err := pi.conn.read(buf, 20*time.Second)
	if err != nil {
		return nil, err
	}
	if err := pi.SetVpp(false); err != nil {
		return nil, err
	}
	if err := pi.conn.commandEnd(); err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// ReadConfig reads the chip's ID, fuses, and calibration word.
func (pi *ProgrammingInterface) ReadConfig() (*ChipConfig, error) {
	if err := pi.conn.commandStart(nil); err != nil {
		return nil, err
	}
	if err := pi.SetVpp(true); err != nil {
		return nil, err
	}
	if _, err := pi.conn.t.Write([]byte{pi.conn.opcodes.readConfig}); err != nil {
		return nil, wrapErr("write read config opcode", err)
	}
	if err := pi.conn.expect([]byte{'C'}, 5*time.Second); err != nil {
		return nil, err
	}
	buf := make([]byte, chipConfigWireSize)
	n, err := pi.conn.read(buf, 10*time.Second)
	if err != nil {
		return nil, err
	}
	if err := pi.SetVpp(false); err != nil {
		return nil, err
	}
	if err := pi.conn.commandEnd(); err != nil {
		return nil, err
	}
	return parseChipConfig(buf[:n])
}

// EraseChip erases all data on the chip.
func (pi *ProgrammingInterface) EraseChip() error {
	if err := pi.conn.commandStart(nil); err != nil {
		return err
	}
	if err := pi.SetVpp(true); err != nil {
		return err
	}
	if _, err := pi.conn.t.Write([]byte{pi.conn.opcodes.erase}); err != nil {
		return wrapErr("write erase opcode", err)
	}
	buf := make([]byte, 1)
	n, err := pi.conn.read(buf, 5*time.Second)
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
		return newInvalidResponseError("erase_chip failed")
	}
	return nil
}

// RomIsBlank reports whether the chip's ROM is blank. expectedBBytes bounds
// the number of interim 'B' progress bytes the programmer may emit before
// the final Y/N/C answer; more than that is a protocol error.
func (pi *ProgrammingInterface) RomIsBlank(highByte byte) (bool, error) {
	opcode := pi.conn.opcodes.romBlank
	expectedBBytes := pi.chip.ROMSize/256 - 1

	if err := pi.conn.commandStart(&opcode); err != nil {
		return false, err
	}
	if _, err := pi.conn.t.Write([]byte{highByte}); err != nil {
		return false, wrapErr("write rom-is-blank high byte", err)
	}
	buf := make([]byte, 1)
	for {
		n, err := pi.conn.read(buf, 20*time.Second)
		if err != nil {
			return false, err
		}
		if n != 1 {
			return false, newInvalidResponseError("rom_is_blank: no response")
		}
		switch buf[0] {
		case 'Y':
			return true, pi.conn.commandEnd()
		case 'N', 'C':
			return false, pi.conn.commandEnd()
		case 'B':
			if expectedBBytes <= 0 {
				return false, newInvalidResponseError("received wrong number of 'B' bytes in rom_is_blank")
			}
			expectedBBytes--
		default:
			return false, newInvalidResponseError(fmt.Sprintf("unexpected byte in rom_is_blank: %q", buf[0]))
		}
	}
}

// EepromIsBlank reports whether the chip's EEPROM is blank.
func (pi *ProgrammingInterface) EepromIsBlank() (bool, error) {
	opcode := pi.conn.opcodes.eepromBlank
	if err := pi.conn.commandStart(&opcode); err != nil {
		return false, err
	}
	buf := make([]byte, 1)
	n, err := pi.conn.read(buf, 5*time.Second)
	if err != nil {
		return false, err
	}
	if err := pi.conn.commandEnd(); err != nil {
		return false, err
	}
	if n != 1 || (buf[0] != 'Y' && buf[0] != 'N') {
		return false, newInvalidResponseError("unexpected response in eeprom_is_blank")
	}
	return buf[0] == 'Y', nil
}

// ProgramDebugVector sets the chip's debugging vector (low 24 bits of addr).
func (pi *ProgrammingInterface) ProgramDebugVector(addr uint32) error {
	opcode := pi.conn.opcodes.programDebugVector
	if err := pi.conn.commandStart(&opcode); err != nil {
		return err
	}
	payload := []byte{byte(addr >> 16), byte(addr >> 8), byte(addr)}
	if _, err := pi.conn.t.Write(payload); err != nil {
		return wrapErr("write debug vector", err)
	}
	buf := make([]byte, 1)
	n, err := pi.conn.read(buf, 5*time.Second)
	if err != nil {
		return err
	}
	if err := pi.conn.commandEnd(); err != nil {
		return err
	}
	if n != 1 || (buf[0] != 'Y' && buf[0] != 'N') {
		return newInvalidResponseError("unexpected response in program_debug_vector")
	}
	if buf[0] != 'Y' {
		return newInvalidResponseError("program_debug_vector rejected")
	}
	return nil
}

// ReadDebugVector returns the chip's debugging vector (low 24 bits valid).
func (pi *ProgrammingInterface) ReadDebugVector() (uint32, error) {
	opcode := pi.conn.opcodes.readDebugVector
	if err := pi.conn.commandStart(&opcode); err != nil {
		return 0, err
	}
	buf := make([]byte, 4)
	n, err := pi.conn.read(buf, 5*time.Second)
	if err != nil {
		return 0, err
	}
	if err := pi.conn.commandEnd(); err != nil {
		return 0, err
	}
	if n != 4 {
		return 0, newInvalidResponseError("short read_debug_vector response")
	}
	return uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
}

func putBE16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}
