package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kitsrus/picprog/flashimage"
	"github.com/kitsrus/picprog/hexfile"
)

var hexInfoCmd = &cobra.Command{
	Use:   "hex_info HEX_FILE PIC_TYPE",
	Short: "Report how a hex file maps onto a chip's memory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHexInfo(args[0], args[1])
	},
}

func runHexInfo(hexPath, picType string) error {
	hf, err := loadHexFile(hexPath)
	if err != nil {
		return err
	}
	chip, err := loadChip(picType)
	if err != nil {
		return err
	}

	img, err := flashimage.Build(chip, hf, "", nil)
	if err != nil {
		return err
	}

	coreBits, err := chip.CoreBits()
	if err != nil {
		return err
	}
	blank := ^(uint16(0xFFFF) << coreBits)

	romUsed := usedROMWords(img.ROMData(), blank)
	fmt.Printf("ROM %d words used, %d words free on chip.\n", romUsed, chip.ROMSize-romUsed)
	if chip.HasEEPROM() {
		eepromUsed := usedEEPROMBytes(img.EEPROMData())
		fmt.Printf("EEPROM %d bytes used, %d bytes free on chip.\n", eepromUsed, chip.EEPROMSize-eepromUsed)
	} else {
		fmt.Println("This chip has no EEPROM.")
	}

	fmt.Println("data:")
	for _, seg := range segmentsOf(hf.Records) {
		fmt.Printf("  - { first: 0x%08X, last: 0x%08X, length: 0x%08X }\n", seg.first, seg.last, seg.last-seg.first+1)
	}
	return nil
}

// usedROMWords counts words of the assembled ROM buffer that differ from
// the chip's blank word.
func usedROMWords(rom []byte, blank uint16) int {
	used := 0
	for i := 0; i+1 < len(rom); i += 2 {
		word := uint16(rom[i])<<8 | uint16(rom[i+1])
		if word != blank {
			used++
		}
	}
	return used
}

// usedEEPROMBytes counts bytes of the assembled EEPROM buffer that differ
// from the erased 0xFF state.
func usedEEPROMBytes(eeprom []byte) int {
	used := 0
	for _, b := range eeprom {
		if b != 0xFF {
			used++
		}
	}
	return used
}

type segment struct {
	first, last uint32
}

// segmentsOf coalesces hex records into contiguous address ranges.
func segmentsOf(records []hexfile.Record) []segment {
	sorted := make([]hexfile.Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	var segments []segment
	for _, rec := range sorted {
		if len(rec.Data) == 0 {
			continue
		}
		last := rec.Address + uint32(len(rec.Data)) - 1
		if n := len(segments); n > 0 && segments[n-1].last+1 >= rec.Address {
			if last > segments[n-1].last {
				segments[n-1].last = last
			}
			continue
		}
		segments = append(segments, segment{first: rec.Address, last: last})
	}
	return segments
}
