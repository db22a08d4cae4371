package protocol_test

import (
	"testing"
	"time"

	"github.com/kitsrus/picprog/chipinfo"
	"github.com/kitsrus/picprog/protocol"
	"github.com/kitsrus/picprog/testsupport"
)

// testChip is a small 14-bit core with a single 32-byte ROM packet and a
// tiny EEPROM, just enough to exercise every ProgrammingInterface command
// without multi-packet loops.
func testChip() *chipinfo.ChipInfo {
	return &chipinfo.ChipInfo{
		ChipName:      "TEST14",
		SocketImage:   chipinfo.Socket18Pin,
		EraseMode:     1,
		PowerSequence: chipinfo.PowerVcc,
		ProgramDelay:  1,
		ProgramTries:  1,
		OverProgram:   0,
		CoreType:      chipinfo.CoreBit14A,
		ROMSize:       16,
		EEPROMSize:    4,
		FuseBlank:     []uint16{0x3FFF},
	}
}

// newTestInterface dials a mock P018 programmer, primes it to accept the
// init-programming-vars handshake, and returns the resulting interface.
func newTestInterface(t *testing.T) (*protocol.ProgrammingInterface, *testsupport.Device) {
	t.Helper()
	conn, dev := dialAgainst(t, "P018")
	dev.Handle(3, 11, func(args []byte) []byte { return []byte{'I'} })

	pi, err := protocol.NewProgrammingInterface(conn, testChip(), false)
	if err != nil {
		t.Fatalf("NewProgrammingInterface: %v", err)
	}
	return pi, dev
}

func TestNewProgrammingInterfaceSendsInitVars(t *testing.T) {
	newTestInterface(t)
}

func TestEraseChip(t *testing.T) {
	pi, dev := newTestInterface(t)
	dev.Handle(4, 0, func(args []byte) []byte { return []byte{'V'} })
	dev.Handle(5, 0, func(args []byte) []byte { return []byte{'v'} })
	dev.Handle(15, 0, func(args []byte) []byte { return []byte{'Y'} })

	if err := pi.EraseChip(); err != nil {
		t.Fatalf("EraseChip: %v", err)
	}
}

func TestRomIsBlank(t *testing.T) {
	pi, dev := newTestInterface(t)
	dev.Handle(16, 1, func(args []byte) []byte { return []byte{'Y'} })

	blank, err := pi.RomIsBlank(0)
	if err != nil {
		t.Fatalf("RomIsBlank: %v", err)
	}
	if !blank {
		t.Fatal("RomIsBlank() = false, want true")
	}
}

func TestRomIsBlankFalse(t *testing.T) {
	pi, dev := newTestInterface(t)
	dev.Handle(16, 1, func(args []byte) []byte { return []byte{'N'} })

	blank, err := pi.RomIsBlank(0)
	if err != nil {
		t.Fatalf("RomIsBlank: %v", err)
	}
	if blank {
		t.Fatal("RomIsBlank() = true, want false")
	}
}

func TestEepromIsBlank(t *testing.T) {
	pi, dev := newTestInterface(t)
	dev.Handle(17, 0, func(args []byte) []byte { return []byte{'N'} })

	blank, err := pi.EepromIsBlank()
	if err != nil {
		t.Fatalf("EepromIsBlank: %v", err)
	}
	if blank {
		t.Fatal("EepromIsBlank() = true, want false")
	}
}

func TestProgramROM(t *testing.T) {
	pi, dev := newTestInterface(t)
	dev.Handle(4, 0, func(args []byte) []byte { return []byte{'V'} })
	dev.Handle(5, 0, func(args []byte) []byte { return []byte{'v'} })
	dev.HandleRaw(7, func(d *testsupport.Device) {
		if _, err := d.ReadExact(2, time.Second); err != nil {
			return
		}
		d.Write([]byte{'Y'})
		if _, err := d.ReadExact(32, time.Second); err != nil {
			return
		}
		d.Write([]byte{'Y'})
		d.Write([]byte{'P'})
	})

	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i)
	}
	if err := pi.ProgramROM(data); err != nil {
		t.Fatalf("ProgramROM: %v", err)
	}
}

func TestProgramROMRejectsOversizedData(t *testing.T) {
	pi, _ := newTestInterface(t)
	if err := pi.ProgramROM(make([]byte, 64)); err == nil {
		t.Fatal("ProgramROM accepted data larger than the chip's ROM")
	}
}

func TestProgramEEPROM(t *testing.T) {
	pi, dev := newTestInterface(t)
	dev.Handle(4, 0, func(args []byte) []byte { return []byte{'V'} })
	dev.Handle(5, 0, func(args []byte) []byte { return []byte{'v'} })
	dev.HandleRaw(8, func(d *testsupport.Device) {
		if _, err := d.ReadExact(2, time.Second); err != nil {
			return
		}
		d.Write([]byte{'Y'})
		for i := 0; i < 2; i++ {
			if _, err := d.ReadExact(2, time.Second); err != nil {
				return
			}
			d.Write([]byte{'Y'})
		}
		if _, err := d.ReadExact(2, time.Second); err != nil {
			return
		}
		d.Write([]byte{'P'})
	})

	if err := pi.ProgramEEPROM([]byte{0x11, 0x22, 0x33, 0x44}); err != nil {
		t.Fatalf("ProgramEEPROM: %v", err)
	}
}

func TestProgramIDFuses14Bit(t *testing.T) {
	pi, dev := newTestInterface(t)
	dev.Handle(4, 0, func(args []byte) []byte { return []byte{'V'} })
	dev.Handle(5, 0, func(args []byte) []byte { return []byte{'v'} })
	dev.Handle(9, 24, func(args []byte) []byte { return []byte{'Y'} })

	tx, err := pi.ProgramIDFuses([]byte{'A', 'B', 'C', 'D'}, []uint16{0x3FFF})
	if err != nil {
		t.Fatalf("ProgramIDFuses: %v", err)
	}
	if tx != nil {
		t.Fatal("ProgramIDFuses returned a FuseTransaction for a 14-bit core")
	}
}

func TestProgramCalibration(t *testing.T) {
	pi, dev := newTestInterface(t)
	dev.Handle(4, 0, func(args []byte) []byte { return []byte{'V'} })
	dev.Handle(5, 0, func(args []byte) []byte { return []byte{'v'} })
	dev.Handle(10, 4, func(args []byte) []byte { return []byte{'Y'} })

	if err := pi.ProgramCalibration(0x1234, 0x3FFF); err != nil {
		t.Fatalf("ProgramCalibration: %v", err)
	}
}

func TestReadConfig(t *testing.T) {
	pi, dev := newTestInterface(t)
	dev.Handle(4, 0, func(args []byte) []byte { return []byte{'V'} })
	dev.Handle(5, 0, func(args []byte) []byte { return []byte{'v'} })
	dev.HandleRaw(13, func(d *testsupport.Device) {
		d.Write([]byte{'C'})
		payload := make([]byte, 26)
		payload[0], payload[1] = 0x34, 0x12 // chip id 0x1234, little endian
		copy(payload[2:10], []byte("IDBYTES1"))
		payload[24], payload[25] = 0x78, 0x56 // calibration 0x5678
		d.Write(payload)
	})

	cfg, err := pi.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if cfg.ChipID != 0x1234 {
		t.Fatalf("ChipID = %#x, want 0x1234", cfg.ChipID)
	}
	if cfg.Calibrate != 0x5678 {
		t.Fatalf("Calibrate = %#x, want 0x5678", cfg.Calibrate)
	}
}

func TestProgramIDFuses16BitThenCommit(t *testing.T) {
	chip16 := &chipinfo.ChipInfo{
		ChipName:      "TEST16",
		SocketImage:   chipinfo.Socket40Pin,
		EraseMode:     1,
		PowerSequence: chipinfo.PowerVcc,
		ProgramDelay:  1,
		ProgramTries:  1,
		CoreType:      chipinfo.CoreBit16A,
		ROMSize:       32,
		FuseBlank:     make([]uint16, 7),
	}
	conn, dev := dialAgainst(t, "P018")
	dev.Handle(3, 11, func(args []byte) []byte { return []byte{'I'} })
	pi, err := protocol.NewProgrammingInterface(conn, chip16, false)
	if err != nil {
		t.Fatalf("NewProgrammingInterface: %v", err)
	}

	dev.Handle(4, 0, func(args []byte) []byte { return []byte{'V'} })
	dev.Handle(5, 0, func(args []byte) []byte { return []byte{'v'} })
	dev.Handle(9, 24, func(args []byte) []byte { return []byte{'Y'} })
	dev.Handle(18, 24, func(args []byte) []byte { return []byte{'Y'} })

	tx, err := pi.ProgramIDFuses(make([]byte, 8), make([]uint16, 7))
	if err != nil {
		t.Fatalf("ProgramIDFuses: %v", err)
	}
	if tx == nil {
		t.Fatal("ProgramIDFuses returned nil FuseTransaction for a 16-bit core")
	}
	if err := tx.Commit(make([]uint16, 7)); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestProgramAndReadDebugVector(t *testing.T) {
	pi, dev := newTestInterface(t)
	dev.Handle(23, 3, func(args []byte) []byte { return []byte{'Y'} })
	dev.Handle(24, 0, func(args []byte) []byte { return []byte{0, 0x12, 0x34, 0x56} })

	if err := pi.ProgramDebugVector(0x123456); err != nil {
		t.Fatalf("ProgramDebugVector: %v", err)
	}
	addr, err := pi.ReadDebugVector()
	if err != nil {
		t.Fatalf("ReadDebugVector: %v", err)
	}
	if addr != 0x123456 {
		t.Fatalf("ReadDebugVector() = %#x, want 0x123456", addr)
	}
}
