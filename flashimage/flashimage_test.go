package flashimage

import (
	"testing"

	"github.com/kitsrus/picprog/chipinfo"
	"github.com/kitsrus/picprog/hexfile"
	"github.com/stretchr/testify/require"
)

func testChip14() *chipinfo.ChipInfo {
	return &chipinfo.ChipInfo{
		ChipName:   "12f675",
		CoreType:   chipinfo.CoreBit14A,
		ROMSize:    4,
		EEPROMSize: 2,
		FuseBlank:  []uint16{0x3FFF},
		CalWord:    true,
		Fuses: map[string]map[string][]chipinfo.FuseSetting{
			"WDT": {
				"Enabled":  {{Index: 0, Mask: 0x3FFF}},
				"Disabled": {{Index: 0, Mask: 0x3FFB}},
			},
		},
	}
}

// beWords packs a sequence of 16-bit words big-endian starting at address.
func beWords(address uint32, words ...uint16) hexfile.Record {
	data := make([]byte, len(words)*2)
	for i, w := range words {
		data[2*i] = byte(w >> 8)
		data[2*i+1] = byte(w)
	}
	return hexfile.Record{Address: address, Data: data}
}

func TestBuildROMBlankWhenNoRecords(t *testing.T) {
	chip := testChip14()
	hf := &hexfile.File{}
	img, err := Build(chip, hf, "", nil)
	require.NoError(t, err)
	// blank word for a 14-bit core is 0x3FFF, big-endian 3F FF
	require.Equal(t, []byte{0x3F, 0xFF, 0x3F, 0xFF, 0x3F, 0xFF, 0x3F, 0xFF}, img.ROMData())
}

func TestBuildROMFromRecordBigEndian(t *testing.T) {
	chip := testChip14()
	hf := &hexfile.File{Records: []hexfile.Record{
		beWords(0, 0x1234, 0x0001),
	}}
	img, err := Build(chip, hf, "", nil)
	require.NoError(t, err)
	require.Equal(t, byte(0x12), img.ROMData()[0])
	require.Equal(t, byte(0x34), img.ROMData()[1])
}

func TestBuildROMLittleEndianSwap(t *testing.T) {
	chip := testChip14()
	// Raw bytes FF 3F: big-endian 0xFF3F exceeds the 0x3FFF blank, but
	// little-endian 0x3FFF fits, so the file must be detected as
	// little-endian and swapped.
	hf := &hexfile.File{Records: []hexfile.Record{
		{Address: 0, Data: []byte{0xFF, 0x3F, 0xFF, 0x3F}},
	}}
	img, err := Build(chip, hf, "", nil)
	require.NoError(t, err)
	// After swap, stored big-endian as 0x3FFF per word.
	require.Equal(t, []byte{0x3F, 0xFF, 0x3F, 0xFF}, img.ROMData()[:4])
}

func TestSetCalibrationWordPatchesLastTwoBytes(t *testing.T) {
	chip := testChip14()
	hf := &hexfile.File{}
	img, err := Build(chip, hf, "", nil)
	require.NoError(t, err)

	require.NoError(t, img.SetCalibrationWord([]byte{0xAB, 0xCD}))
	data := img.ROMData()
	require.Equal(t, []byte{0xAB, 0xCD}, data[len(data)-2:])
}

func TestCalibrationWordRejectedWithoutCalWord(t *testing.T) {
	chip := testChip14()
	chip.CalWord = false
	hf := &hexfile.File{}
	img, err := Build(chip, hf, "", nil)
	require.NoError(t, err)
	require.Error(t, img.SetCalibrationWord([]byte{0, 0}))
}

func TestEEPROMExtraction(t *testing.T) {
	chip := testChip14()
	hf := &hexfile.File{Records: []hexfile.Record{
		{Address: 0x4200, Data: []byte{0x00, 0xAA, 0x00, 0xBB}},
	}}
	img, err := Build(chip, hf, "", nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xBB}, img.EEPROMData())
}

func TestExplicitIDOverride(t *testing.T) {
	chip := testChip14()
	hf := &hexfile.File{}
	img, err := Build(chip, hf, "DEADBEEF", nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, img.IDData())
}

func TestExplicitIDWrongLength(t *testing.T) {
	chip := testChip14()
	hf := &hexfile.File{}
	_, err := Build(chip, hf, "DEAD", nil)
	require.Error(t, err)
}

func TestFuseOverrideMerge(t *testing.T) {
	chip := testChip14()
	hf := &hexfile.File{}
	img, err := Build(chip, hf, "", map[string]string{"WDT": "Disabled"})
	require.NoError(t, err)
	require.Equal(t, []uint16{0x3FFB}, img.FuseWords())
}

func TestROMDataBeyondChipSizeRejected(t *testing.T) {
	chip := testChip14()
	// ROM window for a 14-bit core runs to 0x4000; a record past the
	// chip's 4 words (8 bytes) must be rejected, not silently dropped.
	hf := &hexfile.File{Records: []hexfile.Record{
		beWords(0x10, 0x1234),
	}}
	_, err := Build(chip, hf, "", nil)
	require.Error(t, err)
}

func testChip16() *chipinfo.ChipInfo {
	return &chipinfo.ChipInfo{
		ChipName:   "18f2550",
		CoreType:   chipinfo.CoreBit16A,
		ROMSize:    16, // words
		EEPROMSize: 4,
		FuseBlank:  []uint16{0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF},
	}
}

func TestBuild16BitSwapsROMToWireOrder(t *testing.T) {
	chip := testChip16()
	// 16-bit hex files are little-endian; the wire wants big-endian words.
	hf := &hexfile.File{Records: []hexfile.Record{
		{Address: 0, Data: []byte{0x34, 0x12}},
	}}
	img, err := Build(chip, hf, "", nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0x12, 0x34}, img.ROMData()[:2])
}

func TestBuild16BitIDFromHex(t *testing.T) {
	chip := testChip16()
	hf := &hexfile.File{Records: []hexfile.Record{
		{Address: 0x200000, Data: []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}},
	}}
	img, err := Build(chip, hf, "", nil)
	require.NoError(t, err)
	// ID records are byte-swapped along with ROM/config on 16-bit cores.
	require.Equal(t, []byte{0x02, 0x01, 0x04, 0x03, 0x06, 0x05, 0x08, 0x07}, img.IDData())
	require.Len(t, img.FuseWords(), 7)
}

func TestBuild16BitEEPROMDirectBytes(t *testing.T) {
	chip := testChip16()
	hf := &hexfile.File{Records: []hexfile.Record{
		{Address: 0xF000, Data: []byte{0xAA, 0xBB}},
	}}
	img, err := Build(chip, hf, "", nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xBB, 0xFF, 0xFF}, img.EEPROMData())
}

func TestROMRecordOddAddressRejected(t *testing.T) {
	chip := testChip14()
	hf := &hexfile.File{Records: []hexfile.Record{
		{Address: 1, Data: []byte{0x01, 0x02}},
	}}
	_, err := Build(chip, hf, "", nil)
	require.Error(t, err)
}
