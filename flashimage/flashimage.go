package flashimage

import (
	"encoding/hex"
	"fmt"

	"github.com/kitsrus/picprog/chipinfo"
	"github.com/kitsrus/picprog/hexfile"
)

// regions describes the byte-address layout for one core width, per the
// programmer's memory map. The rom/eeprom windows are the architectural
// address ranges, wider than the chip's actual sizes: data inside a window
// but beyond the chip's declared size must be rejected, not silently
// dropped, so filtering happens over the window and the size check happens
// at merge time.
type regions struct {
	romLo, romHi       uint32 // romHi is the declared chip size in bytes
	romWindowHi        uint32
	configLo, configHi uint32
	eepromLo, eepromHi uint32 // eepromHi bounds the hex-file window
	idLo, idHi         uint32 // only used for 16-bit; 12/14-bit derive ID from config
}

func regionsFor(coreBits, romSize, eepromSize int) (regions, error) {
	switch coreBits {
	case 16:
		r := regions{
			romLo: 0, romHi: uint32(romSize * 2), romWindowHi: 0x8000,
			configLo: 0x300000, configHi: 0x30000E,
			idLo: 0x200000, idHi: 0x200010,
			eepromLo: 0xF000, eepromHi: 0xF100,
		}
		if r.romHi > r.romWindowHi {
			r.romWindowHi = r.romHi
		}
		return r, nil
	case 14:
		return regions{
			romLo: 0, romHi: uint32(romSize * 2), romWindowHi: 0x4000,
			configLo: 0x4000, configHi: 0x4010,
			eepromLo: 0x4200, eepromHi: 0xFFFF,
		}, nil
	case 12:
		return regions{
			romLo: 0, romHi: uint32(romSize * 2), romWindowHi: uint32(romSize * 2),
			configLo: uint32(romSize * 2), configHi: 0x2000,
			eepromLo: 0x4200, eepromHi: 0xFFFF,
		}, nil
	default:
		return regions{}, newInvalidValueError(fmt.Sprintf("unsupported core width %d", coreBits))
	}
}

// Image holds the assembled, fixed-length memory buffers derived from a
// chip-info entry and a parsed hex file, ready for the programming
// interface.
type Image struct {
	chip   *chipinfo.ChipInfo
	coreBits int

	romData    []byte
	eepromData []byte
	idData     []byte
	fuseWords  []uint16

	calibration []byte // 2 bytes, set via SetCalibrationWord
}

// Build assembles an Image from a chip-info entry, a parsed hex file, an
// optional explicit ID hex string, and an optional fuse-settings override
// map.
func Build(chip *chipinfo.ChipInfo, hf *hexfile.File, picID string, fuses map[string]string) (*Image, error) {
	coreBits, err := chip.CoreBits()
	if err != nil {
		return nil, err
	}
	r, err := regionsFor(coreBits, chip.ROMSize, chip.EEPROMSize)
	if err != nil {
		return nil, err
	}

	romRecords := rangeFilter(hf.Records, r.romLo, r.romWindowHi)
	configRecords := rangeFilter(hf.Records, r.configLo, r.configHi)
	var eepromRecordsRaw []hexfile.Record
	if chip.EEPROMSize > 0 {
		eepromRecordsRaw = rangeFilter(hf.Records, r.eepromLo, r.eepromHi)
	}
	var idRecordsRaw []hexfile.Record
	if coreBits == 16 {
		idRecordsRaw = rangeFilter(hf.Records, r.idLo, r.idHi)
	}

	blankWord := romBlankWord(coreBits)
	swap, err := detectSwap(romRecords, blankWord, coreBits)
	if err != nil {
		return nil, err
	}
	if swap {
		romRecords = swabRecords(romRecords)
		configRecords = swabRecords(configRecords)
		idRecordsRaw = swabRecords(idRecordsRaw)
	}

	romBlank := make([]byte, chip.ROMSize*2)
	for i := 0; i < chip.ROMSize; i++ {
		romBlank[2*i] = byte(blankWord >> 8)
		romBlank[2*i+1] = byte(blankWord)
	}
	romData, err := mergeRecords(romRecords, romBlank, r.romLo)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("ROM data exceeds chip size of %d words", chip.ROMSize), err)
	}

	eepromData, err := buildEEPROMData(chip, coreBits, r, eepromRecordsRaw, swap)
	if err != nil {
		return nil, err
	}

	idData, err := buildIDData(chip, coreBits, r, configRecords, idRecordsRaw, picID)
	if err != nil {
		return nil, err
	}

	fuseWords, err := buildFuseWords(chip, coreBits, r, configRecords, fuses)
	if err != nil {
		return nil, err
	}

	return &Image{
		chip:       chip,
		coreBits:   coreBits,
		romData:    romData,
		eepromData: eepromData,
		idData:     idData,
		fuseWords:  fuseWords,
	}, nil
}

func romBlankWord(coreBits int) uint16 {
	return uint16(^(uint32(0xFFFF) << uint(coreBits)) & 0xFFFF)
}

// buildEEPROMData assembles the EEPROM buffer. On 12/14-bit cores the hex
// file stores one data byte per 16-bit slot, so the window is twice the
// EEPROM size and the data byte is extracted from each word after any swap;
// 16-bit cores store EEPROM bytes directly.
func buildEEPROMData(chip *chipinfo.ChipInfo, coreBits int, r regions, eepromRecordsRaw []hexfile.Record, swap bool) ([]byte, error) {
	if chip.EEPROMSize == 0 {
		return nil, nil
	}

	if coreBits == 16 {
		blank := make([]byte, chip.EEPROMSize)
		for i := range blank {
			blank[i] = 0xFF
		}
		data, err := mergeRecords(eepromRecordsRaw, blank, r.eepromLo)
		if err != nil {
			return nil, wrapErr(fmt.Sprintf("EEPROM data exceeds chip size of %d bytes", chip.EEPROMSize), err)
		}
		return data, nil
	}

	blank := make([]byte, chip.EEPROMSize*2)
	for i := range blank {
		blank[i] = 0xFF
	}
	raw, err := mergeRecords(eepromRecordsRaw, blank, r.eepromLo)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("EEPROM data exceeds chip size of %d bytes", chip.EEPROMSize), err)
	}
	pickByte := 1
	if swap {
		pickByte = 0
	}
	data := make([]byte, 0, chip.EEPROMSize)
	for i := pickByte; i < len(raw); i += 2 {
		data = append(data, raw[i])
	}
	return data, nil
}

// detectSwap implements the 14-bit endianness auto-detection algorithm;
// 16-bit cores are fixed little-endian (always swapped into wire order),
// 12-bit is always treated as big-endian (no swap).
func detectSwap(romRecords []hexfile.Record, blankWord uint16, coreBits int) (bool, error) {
	if coreBits == 16 {
		return true, nil
	}
	if coreBits == 12 {
		return false, nil
	}
	for _, rec := range romRecords {
		if rec.Address%2 != 0 {
			return false, newInvalidValueError("ROM record starts on odd address")
		}
		for x := 0; x+2 <= len(rec.Data); x += 2 {
			be := uint16(rec.Data[x])<<8 | uint16(rec.Data[x+1])
			le := uint16(rec.Data[x+1])<<8 | uint16(rec.Data[x])
			beOK := be&blankWord == be
			leOK := le&blankWord == le
			switch {
			case beOK && !leOK:
				return false, nil
			case leOK && !beOK:
				return true, nil
			case !beOK && !leOK:
				return false, newInvalidValueError("invalid ROM word")
			}
		}
	}
	return false, nil
}

func buildIDData(chip *chipinfo.ChipInfo, coreBits int, r regions, configRecords, idRecordsRaw []hexfile.Record, picID string) ([]byte, error) {
	if picID != "" {
		data, err := hex.DecodeString(picID)
		if err != nil {
			return nil, newInvalidValueError(fmt.Sprintf("invalid --id hex string: %v", err))
		}
		wantLen := 4
		if coreBits == 16 {
			wantLen = 8
		}
		if len(data) != wantLen {
			return nil, newInvalidValueError(fmt.Sprintf("--id must be %d bytes for this chip, got %d", wantLen, len(data)))
		}
		return data, nil
	}

	if coreBits == 16 {
		raw, err := mergeRecords(rangeFilter(idRecordsRaw, r.idLo, r.idLo+8), make([]byte, 8), r.idLo)
		if err != nil {
			return nil, err
		}
		return raw, nil
	}

	idLo := r.configLo
	idHi := idLo + 8
	raw, err := mergeRecords(rangeFilter(configRecords, idLo, idHi), make([]byte, 8), idLo)
	if err != nil {
		return nil, err
	}
	compact := make([]byte, 0, 4)
	for x := 1; x < 8; x += 2 {
		compact = append(compact, raw[x])
	}
	return compact, nil
}

func buildFuseWords(chip *chipinfo.ChipInfo, coreBits int, r regions, configRecords []hexfile.Record, fuses map[string]string) ([]uint16, error) {
	blankBytes := make([]byte, len(chip.FuseBlank)*2)
	for i, w := range chip.FuseBlank {
		blankBytes[2*i] = byte(w >> 8)
		blankBytes[2*i+1] = byte(w)
	}

	fuseHi := r.configHi
	fuseLo := fuseHi - uint32(len(blankBytes))
	raw, err := mergeRecords(rangeFilter(configRecords, fuseLo, fuseHi), blankBytes, fuseLo)
	if err != nil {
		return nil, err
	}

	words := make([]uint16, len(raw)/2)
	for i := range words {
		words[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
	}

	if len(fuses) > 0 {
		settings, err := chip.DecodeFuseData(words)
		if err != nil {
			return nil, err
		}
		for k, v := range fuses {
			settings[k] = v
		}
		words, err = chip.EncodeFuseData(settings)
		if err != nil {
			return nil, err
		}
	}
	return words, nil
}

// SetCalibrationWord records a 2-byte calibration word to be patched into
// the last two bytes of ROMData on read. Errors if the chip keeps no
// calibration word in ROM.
func (img *Image) SetCalibrationWord(word []byte) error {
	if !img.chip.CalWord {
		return newInvalidValueError("this chip has no calibration word in ROM")
	}
	img.calibration = word
	return nil
}

// ROMData returns the assembled ROM buffer, with the calibration word
// patched into the last two bytes if one has been set.
func (img *Image) ROMData() []byte {
	if img.calibration != nil && img.chip.CalWord {
		out := make([]byte, len(img.romData))
		copy(out, img.romData)
		copy(out[len(out)-2:], img.calibration)
		return out
	}
	return img.romData
}

// EEPROMData returns the assembled EEPROM buffer (nil if the chip has none).
func (img *Image) EEPROMData() []byte {
	return img.eepromData
}

// IDData returns the assembled user-ID buffer (4 bytes for 12/14-bit cores,
// 8 bytes for 16-bit cores).
func (img *Image) IDData() []byte {
	return img.idData
}

// FuseWords returns the assembled fuse words, big-endian order, length
// equal to len(ChipInfo.FuseBlank).
func (img *Image) FuseWords() []uint16 {
	return img.fuseWords
}
