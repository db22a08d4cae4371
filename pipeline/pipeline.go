// Package pipeline drives the end-to-end program/verify/dump/erase session
// against an open programmer connection: it sequences the programming
// interface's individual commands into the multi-step flows a user actually
// invokes from the command line.
package pipeline

import (
	"bytes"

	"github.com/sirupsen/logrus"

	"github.com/kitsrus/picprog/chipinfo"
	"github.com/kitsrus/picprog/flashimage"
	"github.com/kitsrus/picprog/protocol"
	"github.com/kitsrus/picprog/serial"
)

var log = logrus.WithField("component", "pipeline")

// Driver owns a live connection and the programming interface bound to one
// chip for the session, and sequences commands into program/verify/dump/
// erase flows. The connection is held for the whole session: DTR transitions
// reset the device, so the port can't be closed and reopened mid-flow.
type Driver struct {
	conn *protocol.Connection
	pi   *protocol.ProgrammingInterface
	chip *chipinfo.ChipInfo
	port string
}

// Dial resets the programmer over t and detects its protocol revision,
// without yet selecting a chip.
func Dial(t *serial.Transport, port string) (*Driver, error) {
	conn, err := protocol.Dial(t)
	if err != nil {
		return nil, err
	}
	return &Driver{conn: conn, port: port}, nil
}

// Close releases the underlying serial connection.
func (d *Driver) Close() error {
	return d.conn.Close()
}

// ProtocolTag returns the detected firmware protocol revision ("P018" or
// "P18A").
func (d *Driver) ProtocolTag() string {
	return d.conn.ProtocolTag()
}

// Init selects chip and builds the programming interface (sends the
// init-programming-vars command). Must be called once before any of
// Program/Verify/Dump/Erase.
func (d *Driver) Init(chip *chipinfo.ChipInfo, icspMode bool) error {
	pi, err := protocol.NewProgrammingInterface(d.conn, chip, icspMode)
	if err != nil {
		return err
	}
	d.pi = pi
	d.chip = chip
	return nil
}

// ReadChipConfig reads back the chip's ID, fuses and calibration word.
func (d *Driver) ReadChipConfig() (*protocol.ChipConfig, error) {
	return d.pi.ReadConfig()
}

// ProgrammerVersion returns the attached programmer's numeric hardware
// version byte (0=K128, 1=K149-A, 2=K149-B, 3=K150).
func (d *Driver) ProgrammerVersion() (byte, error) {
	return d.conn.ProgrammerVersion()
}

// ProgrammerProtocol returns the attached programmer's 4-byte protocol tag,
// queried live rather than taken from the cached Dial-time value.
func (d *Driver) ProgrammerProtocol() (string, error) {
	return d.conn.ProgrammerProtocol()
}

// WaitForChipInsert blocks until the programmer reports a chip in its
// socket, logging where pin 1 goes so the user can orient the part. Skip
// this when programming in-circuit: there is no socket to wait on.
func (d *Driver) WaitForChipInsert() error {
	log.WithFields(logrus.Fields{
		"chip": d.chip.ChipName,
		"pin1": d.chip.PinOneLocation(),
	}).Info("waiting for chip to be inserted into socket")
	return d.conn.WaitUntilChipInSocket()
}

// WaitForChipRemove blocks until the programmer reports an empty socket.
func (d *Driver) WaitForChipRemove() error {
	log.WithField("chip", d.chip.ChipName).Info("waiting for chip to be removed from socket")
	return d.conn.WaitUntilChipOutOfSocket()
}

// Erase erases the whole chip, if the chip database says it's erasable.
func (d *Driver) Erase() error {
	if !d.chip.FlashChip {
		log.WithField("chip", d.chip.ChipName).Info("chip is not erasable, skipping")
		return nil
	}
	log.WithField("chip", d.chip.ChipName).Info("erasing chip")
	if err := d.pi.EraseChip(); err != nil {
		return err
	}
	log.WithField("chip", d.chip.ChipName).Info("erase complete")
	return nil
}

// patchCalibration reads the chip's config block and, if it keeps a
// calibration word in ROM, patches it into img's last ROM word so a
// subsequent program/verify doesn't clobber or mismatch against it.
func (d *Driver) patchCalibration(img *flashimage.Image) error {
	if !d.chip.CalWord {
		return nil
	}
	cfg, err := d.pi.ReadConfig()
	if err != nil {
		return err
	}
	calBytes := []byte{byte(cfg.Calibrate >> 8), byte(cfg.Calibrate)}
	return img.SetCalibrationWord(calBytes)
}

// Program runs the full write flow: patch calibration if the chip keeps one
// in ROM, erase if erasable, cycle Vpp, program ROM/EEPROM/ID+fuses, then
// verify by reading the chip back. For 16-bit cores the caller must Commit
// the returned FuseTransaction once verification succeeds.
func (d *Driver) Program(img *flashimage.Image) (*protocol.FuseTransaction, bool, error) {
	chip := d.chip
	log.WithFields(logrus.Fields{"chip": chip.ChipName, "port": d.port}).Info("starting program pipeline")

	if err := d.patchCalibration(img); err != nil {
		return nil, false, err
	}

	if err := d.Erase(); err != nil {
		return nil, false, err
	}

	if err := d.pi.CycleVpp(); err != nil {
		return nil, false, err
	}

	log.WithField("chip", chip.ChipName).Info("programming ROM")
	if err := d.pi.ProgramROM(img.ROMData()); err != nil {
		return nil, false, err
	}

	if chip.HasEEPROM() {
		log.WithField("chip", chip.ChipName).Info("programming EEPROM")
		if err := d.pi.ProgramEEPROM(img.EEPROMData()); err != nil {
			return nil, false, err
		}
	}

	log.WithField("chip", chip.ChipName).Info("programming ID and fuses")
	tx, err := d.pi.ProgramIDFuses(img.IDData(), img.FuseWords())
	if err != nil {
		return nil, false, err
	}

	ok, err := d.verifyAgainst(img)
	if err != nil {
		return tx, false, err
	}
	return tx, ok, nil
}

// Verify patches calibration into img if the chip keeps one in ROM, then
// reads ROM (and EEPROM, if present) back from the chip and compares it
// against img. Use this for a standalone verify run; Program calls the
// unexported verifyAgainst directly since it has already patched img.
func (d *Driver) Verify(img *flashimage.Image) (bool, error) {
	if err := d.patchCalibration(img); err != nil {
		return false, err
	}
	return d.verifyAgainst(img)
}

// verifyAgainst reads ROM (and EEPROM, if present) back from the chip and
// compares it against img, logging a warning per mismatching region rather
// than failing fast: partial mismatches are still useful diagnostic
// information.
func (d *Driver) verifyAgainst(img *flashimage.Image) (bool, error) {
	chip := d.chip
	log.WithField("chip", chip.ChipName).Info("verifying ROM")
	romRead, err := d.pi.ReadROM()
	if err != nil {
		return false, err
	}

	ok := bytes.Equal(romRead, img.ROMData())
	if !ok {
		log.WithField("chip", chip.ChipName).Warn("ROM verification failed")
		if maybeLocked(romRead, chip) {
			log.WithField("chip", chip.ChipName).Warn("chip may have read protection enabled")
		}
	} else {
		log.WithField("chip", chip.ChipName).Info("ROM verified")
	}

	if chip.HasEEPROM() {
		log.WithField("chip", chip.ChipName).Info("verifying EEPROM")
		eepromRead, err := d.pi.ReadEEPROM()
		if err != nil {
			return false, err
		}
		if !bytes.Equal(eepromRead, img.EEPROMData()) {
			log.WithField("chip", chip.ChipName).Warn("EEPROM verification failed")
			ok = false
		} else {
			log.WithField("chip", chip.ChipName).Info("EEPROM verified")
		}
	}
	return ok, nil
}

// maybeLocked guesses whether an all/mostly-zero ROM read indicates code
// protection rather than a genuine blank/mismatch, the same heuristic
// picpro's CLI reports to the user after a failed verify.
func maybeLocked(romRead []byte, chip *chipinfo.ChipInfo) bool {
	zeros := bytes.Count(romRead, []byte{0})
	if chip.CalWord {
		return len(romRead)-2 == zeros
	}
	return len(romRead) == zeros
}

// DumpROM reads the chip's raw ROM bytes (programmer wire order, big-endian
// words).
func (d *Driver) DumpROM() ([]byte, error) {
	return d.pi.ReadROM()
}

// DumpEEPROM reads the chip's raw EEPROM bytes.
func (d *Driver) DumpEEPROM() ([]byte, error) {
	return d.pi.ReadEEPROM()
}

// DumpConfig reads the chip's config block and returns its canonical
// 26-byte wire encoding, for a raw "dump config" command.
func (d *Driver) DumpConfig() ([]byte, error) {
	cfg, err := d.pi.ReadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.Bytes(), nil
}
