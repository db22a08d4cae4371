package pipeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kitsrus/picprog/chipinfo"
	"github.com/kitsrus/picprog/flashimage"
	"github.com/kitsrus/picprog/hexfile"
	"github.com/kitsrus/picprog/pipeline"
	"github.com/kitsrus/picprog/testsupport"
)

// P018 opcode numbers, written out literally rather than imported, since
// pipeline and its tests never need to know the wire protocol directly;
// only the mock device does.
const (
	opProtocolQuery = 22
	opInitVars      = 3
	opVppOn         = 4
	opVppOff        = 5
	opCycleVpp      = 6
	opProgramROM    = 7
	opProgramFuses  = 9
	opReadROM       = 11
	opReadConfig    = 13
	opErase         = 15
)

func testChip() *chipinfo.ChipInfo {
	return &chipinfo.ChipInfo{
		ChipName:      "TEST14",
		SocketImage:   chipinfo.Socket18Pin,
		EraseMode:     1,
		FlashChip:     true,
		PowerSequence: chipinfo.PowerVcc,
		ProgramDelay:  1,
		ProgramTries:  1,
		CoreType:      chipinfo.CoreBit14A,
		ROMSize:       16,
		FuseBlank:     []uint16{0x3FFF},
	}
}

// newDriver dials a mock P018 programmer and initializes a Driver against
// it for chip, registering just enough device handlers to get through
// Init (protocol query + init-programming-vars).
func newDriver(t *testing.T, chip *chipinfo.ChipInfo) (*pipeline.Driver, *testsupport.Device) {
	t.Helper()
	tr, dev, err := testsupport.OpenPair()
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })

	dev.Handle(opProtocolQuery, 0, func(args []byte) []byte { return []byte("P018") })
	dev.Handle(opInitVars, 11, func(args []byte) []byte { return []byte{'I'} })

	d, err := pipeline.Dial(tr, "mock0")
	require.NoError(t, err)
	require.Equal(t, "P018", d.ProtocolTag())

	require.NoError(t, d.Init(chip, false))
	return d, dev
}

func blankImage(t *testing.T, chip *chipinfo.ChipInfo) *flashimage.Image {
	t.Helper()
	img, err := flashimage.Build(chip, &hexfile.File{}, "", nil)
	require.NoError(t, err)
	return img
}

func TestProgramSucceedsAndVerifies(t *testing.T) {
	chip := testChip()
	d, dev := newDriver(t, chip)
	img := blankImage(t, chip)

	dev.Handle(opVppOn, 0, func(args []byte) []byte { return []byte{'V'} })
	dev.Handle(opVppOff, 0, func(args []byte) []byte { return []byte{'v'} })
	dev.Handle(opErase, 0, func(args []byte) []byte { return []byte{'Y'} })
	dev.Handle(opCycleVpp, 0, func(args []byte) []byte { return []byte{'V'} })
	dev.HandleRaw(opProgramROM, func(d *testsupport.Device) {
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
	dev.Handle(opProgramFuses, 24, func(args []byte) []byte { return []byte{'Y'} })
	dev.HandleRaw(opReadROM, func(d *testsupport.Device) {
		d.Write(img.ROMData())
	})

	tx, ok, err := d.Program(img)
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, tx) // 14-bit core: fuses take effect immediately
}

func TestProgramReportsVerifyMismatch(t *testing.T) {
	chip := testChip()
	d, dev := newDriver(t, chip)
	img := blankImage(t, chip)

	dev.Handle(opVppOn, 0, func(args []byte) []byte { return []byte{'V'} })
	dev.Handle(opVppOff, 0, func(args []byte) []byte { return []byte{'v'} })
	dev.Handle(opErase, 0, func(args []byte) []byte { return []byte{'Y'} })
	dev.Handle(opCycleVpp, 0, func(args []byte) []byte { return []byte{'V'} })
	dev.HandleRaw(opProgramROM, func(d *testsupport.Device) {
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
	dev.Handle(opProgramFuses, 24, func(args []byte) []byte { return []byte{'Y'} })
	dev.HandleRaw(opReadROM, func(d *testsupport.Device) {
		wrong := make([]byte, len(img.ROMData()))
		d.Write(wrong) // all zero, won't match the blank-fill image
	})

	_, ok, err := d.Program(img)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEraseSkippedForNonFlashChip(t *testing.T) {
	chip := testChip()
	chip.FlashChip = false
	d, _ := newDriver(t, chip)

	// No opErase handler registered: if Erase() tried to erase, the read
	// would simply time out and fail the test via an error return.
	require.NoError(t, d.Erase())
}

func TestDumpROM(t *testing.T) {
	chip := testChip()
	d, dev := newDriver(t, chip)
	want := make([]byte, chip.ROMSize*2)
	for i := range want {
		want[i] = byte(i)
	}
	dev.Handle(opVppOn, 0, func(args []byte) []byte { return []byte{'V'} })
	dev.Handle(opVppOff, 0, func(args []byte) []byte { return []byte{'v'} })
	dev.HandleRaw(opReadROM, func(d *testsupport.Device) { d.Write(want) })

	got, err := d.DumpROM()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestReadChipConfig(t *testing.T) {
	chip := testChip()
	d, dev := newDriver(t, chip)
	dev.Handle(opVppOn, 0, func(args []byte) []byte { return []byte{'V'} })
	dev.Handle(opVppOff, 0, func(args []byte) []byte { return []byte{'v'} })
	dev.HandleRaw(opReadConfig, func(d *testsupport.Device) {
		d.Write([]byte{'C'})
		payload := make([]byte, 26)
		payload[0], payload[1] = 0x34, 0x12
		payload[24], payload[25] = 0x78, 0x56
		d.Write(payload)
	})

	cfg, err := d.ReadChipConfig()
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), cfg.ChipID)
	require.Equal(t, uint16(0x5678), cfg.Calibrate)
	require.Equal(t, cfg.Bytes()[0], byte(0x34))
}
