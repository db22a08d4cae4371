package protocol

import "fmt"

// chipConfigWireSize is the fixed 26-byte payload read_config returns:
// u16 chip_id, 8 raw id bytes, 7 u16 fuse words, u16 calibration word, all
// little-endian.
const chipConfigWireSize = 26

// ChipConfig is the chip's programmed state as read back by read_config:
// the silicon chip ID, the user ID bytes, the fuse words, and the
// calibration word.
type ChipConfig struct {
	ChipID    uint16
	ID        []byte
	Fuses     []uint16
	Calibrate uint16
}

func parseChipConfig(data []byte) (*ChipConfig, error) {
	if len(data) != chipConfigWireSize {
		return nil, newInvalidResponseError(fmt.Sprintf("read_config: expected %d bytes, got %d", chipConfigWireSize, len(data)))
	}
	cc := &ChipConfig{
		ChipID: le16(data[0:2]),
		ID:     append([]byte(nil), data[2:10]...),
		Fuses:  make([]uint16, 7),
	}
	for i := 0; i < 7; i++ {
		off := 10 + 2*i
		cc.Fuses[i] = le16(data[off : off+2])
	}
	cc.Calibrate = le16(data[24:26])
	return cc, nil
}

// Bytes reconstructs the canonical 26-byte wire encoding of cc, the inverse
// of parseChipConfig, for a raw "dump config" command.
func (cc *ChipConfig) Bytes() []byte {
	out := make([]byte, chipConfigWireSize)
	putLE16(out[0:2], cc.ChipID)
	copy(out[2:10], cc.ID)
	for i, f := range cc.Fuses {
		putLE16(out[10+2*i:], f)
	}
	putLE16(out[24:26], cc.Calibrate)
	return out
}

func le16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
