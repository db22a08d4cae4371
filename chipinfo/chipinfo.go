// Package chipinfo is the keyed repository of per-chip programming
// parameters (the ".cid" chip database) plus the bidirectional fuse codec
// that turns symbolic fuse settings into raw fuse words and back.
package chipinfo

import (
	"fmt"
	"strings"

	"github.com/kitsrus/picprog/bitops"
)

// SocketImage names the physical socket layout a chip programs in.
type SocketImage string

// Recognised socket images.
const (
	Socket8Pin   SocketImage = "8pin"
	Socket14Pin  SocketImage = "14pin"
	Socket18Pin  SocketImage = "18pin"
	Socket28NPin SocketImage = "28Npin"
	Socket40Pin  SocketImage = "40pin"
	Socket0Pin   SocketImage = "0pin"
)

// PowerSequence names the Vcc/Vpp sequencing strategy a chip requires.
type PowerSequence string

// Recognised power sequences.
const (
	PowerVcc          PowerSequence = "Vcc"
	PowerVccVpp1      PowerSequence = "VccVpp1"
	PowerVccVpp2      PowerSequence = "VccVpp2"
	PowerVpp1Vcc      PowerSequence = "Vpp1Vcc"
	PowerVpp2Vcc      PowerSequence = "Vpp2Vcc"
	PowerVccFastVpp1  PowerSequence = "VccFastVpp1"
	PowerVccFastVpp2  PowerSequence = "VccFastVpp2"
)

var powerSequenceCode = map[PowerSequence]int{
	PowerVcc:         0,
	PowerVccVpp1:     1,
	PowerVccVpp2:     2,
	PowerVpp1Vcc:     3,
	PowerVpp2Vcc:     4,
	PowerVccFastVpp1: 1,
	PowerVccFastVpp2: 2,
}

var powerSequenceFastVppDelay = map[PowerSequence]bool{
	PowerVcc:         false,
	PowerVccVpp1:     false,
	PowerVccVpp2:     false,
	PowerVpp1Vcc:     false,
	PowerVpp2Vcc:     false,
	PowerVccFastVpp1: true,
	PowerVccFastVpp2: true,
}

var socketPinOneLocation = map[SocketImage]string{
	Socket8Pin:   "socket pin 13",
	Socket14Pin:  "socket pin 13",
	Socket18Pin:  "socket pin 2",
	Socket28NPin: "socket pin 1",
	Socket40Pin:  "socket pin 1",
}

// CoreType is the symbolic core/instruction-width identifier used by the
// .cid file. It maps to an integer 1..13 understood by the programmer's
// "init programming vars" command, and to a bit width of 12, 14 or 16.
type CoreType string

// Recognised core types.
const (
	CoreBit16A CoreType = "bit16_a"
	CoreBit16B CoreType = "bit16_b"
	CoreBit16C CoreType = "bit16_c"
	CoreBit14A CoreType = "bit14_a"
	CoreBit14B CoreType = "bit14_b"
	CoreBit14C CoreType = "bit14_c"
	CoreBit14D CoreType = "bit14_d"
	CoreBit14E CoreType = "bit14_e"
	CoreBit14F CoreType = "bit14_f"
	CoreBit14G CoreType = "bit14_g"
	CoreBit14H CoreType = "bit14_h"
	CoreBit12A CoreType = "bit12_a"
	CoreBit12B CoreType = "bit12_b"
	CoreNewF12B CoreType = "newf12b"
)

var coreTypeCode = map[CoreType]int{
	CoreBit16A: 1,
	CoreBit16B: 2,
	CoreBit14G: 3,
	CoreBit12A: 4,
	CoreBit14A: 5,
	CoreBit14B: 6,
	CoreBit14C: 7,
	CoreBit14D: 8,
	CoreBit14E: 9,
	CoreBit14F: 10,
	CoreBit12B: 11,
	CoreBit14H: 12,
	CoreBit16C: 13,
	// CoreNewF12B intentionally absent: it has no known protocol code.
}

var coreTypeBits = map[CoreType]int{
	CoreBit16A: 16, CoreBit16B: 16, CoreBit16C: 16,
	CoreBit14A: 14, CoreBit14B: 14, CoreBit14C: 14, CoreBit14D: 14,
	CoreBit14E: 14, CoreBit14F: 14, CoreBit14G: 14, CoreBit14H: 14,
	CoreBit12A: 12, CoreBit12B: 12,
}

// FuseSetting is one (fuse-word-index, AND-mask) pair. A symbolic fuse
// setting is a list of these, one per fuse word it touches.
type FuseSetting struct {
	Index int    `json:"index"`
	Mask  uint16 `json:"mask"`
}

// ChipInfo holds one chip model's programming parameters, as read from a
// ".cid" chip-info file.
type ChipInfo struct {
	ChipName      string        `json:"chip_name"`
	Include       bool          `json:"include"`
	SocketImage   SocketImage   `json:"socket_image"`
	EraseMode     int           `json:"erase_mode"`
	FlashChip     bool          `json:"flash_chip"`
	PowerSequence PowerSequence `json:"power_sequence"`
	ProgramDelay  int           `json:"program_delay"`
	ProgramTries  int           `json:"program_tries"`
	OverProgram   int           `json:"over_program"`
	CoreType      CoreType      `json:"core_type"`
	ROMSize       int           `json:"rom_size"` // words
	EEPROMSize    int           `json:"eeprom_size"` // bytes
	FuseBlank     []uint16      `json:"fuse_blank"`
	CPWarn        bool          `json:"cp_warn"`
	CalWord       bool          `json:"cal_word"`
	BandGap       bool          `json:"band_gap"`
	ICSPOnly      bool          `json:"icsp_only"`
	ChipID        uint16        `json:"chip_id"`

	// Fuses maps fuse-name -> setting-name -> the list of (index, mask)
	// pairs that setting applies.
	Fuses map[string]map[string][]FuseSetting `json:"fuses"`

	// fuseNameOrder and settingNameOrder preserve the declaration order
	// read from the .cid file; DecodeFuseData's tie-break rule (later
	// definition wins) depends on it. Populated by the reader; nil for
	// a ChipInfo built by hand, in which case map iteration order is
	// used instead.
	fuseNameOrder    []string
	settingNameOrder map[string][]string
}

// SetOrder records the declaration order of fuses and their settings, as
// read from a .cid file. Used only by the reader.
func (c *ChipInfo) SetOrder(fuseNames []string, settingNames map[string][]string) {
	c.fuseNameOrder = fuseNames
	c.settingNameOrder = settingNames
}

// CoreBits returns the PIC instruction width (12, 14 or 16) for this chip's
// core type.
func (c *ChipInfo) CoreBits() (int, error) {
	bits, ok := coreTypeBits[c.CoreType]
	if !ok {
		return 0, newFormatError(fmt.Sprintf("unsupported core type %q", c.CoreType))
	}
	return bits, nil
}

// HasEEPROM reports whether this chip has any EEPROM memory.
func (c *ChipInfo) HasEEPROM() bool {
	return c.EEPROMSize != 0
}

// PinOneLocation is a presentation helper describing where pin 1 sits in the
// programmer's socket image, reported when the pipeline waits for the chip
// to be inserted.
func (c *ChipInfo) PinOneLocation() string {
	return socketPinOneLocation[c.SocketImage]
}

// FuseDoc lists every declared fuse and its valid settings, one fuse per
// line, for the CLI's help text after an invalid --fuse argument.
func (c *ChipInfo) FuseDoc() string {
	var b strings.Builder
	for _, fuse := range c.fuseOrder() {
		fmt.Fprintf(&b, "%q: (", fuse)
		for i, setting := range c.settingOrder(fuse) {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%q", setting)
		}
		b.WriteString(")\n")
	}
	return b.String()
}

// ProgrammingVars derives the argument block for the programmer's
// "initialise programming variables" command.
type ProgrammingVars struct {
	ROMSize                   int
	EEPROMSize                int
	CoreType                  int
	FlagCalibrationInROM      bool
	FlagBandGapFuse           bool
	Flag18FSinglePanelAccess  bool
	FlagVccVppDelay           bool
	ProgramDelay              int
	PowerSequence             int
	EraseMode                 int
	ProgramRetries            int
	OverProgram               int
}

// ProgrammingVars computes the derived per-session variable block for this
// chip.
func (c *ChipInfo) ProgrammingVars() (*ProgrammingVars, error) {
	code, ok := coreTypeCode[c.CoreType]
	if !ok {
		return nil, newFormatError(fmt.Sprintf("core type %q has no protocol code", c.CoreType))
	}
	return &ProgrammingVars{
		ROMSize:                  c.ROMSize,
		EEPROMSize:               c.EEPROMSize,
		CoreType:                 code,
		FlagCalibrationInROM:     c.CalWord,
		FlagBandGapFuse:          c.BandGap,
		Flag18FSinglePanelAccess: c.CoreType == CoreBit16A,
		FlagVccVppDelay:          powerSequenceFastVppDelay[c.PowerSequence],
		ProgramDelay:             c.ProgramDelay,
		PowerSequence:            powerSequenceCode[c.PowerSequence],
		EraseMode:                c.EraseMode,
		ProgramRetries:           c.ProgramTries,
		OverProgram:              c.OverProgram,
	}, nil
}

// EncodeFuseData starts from FuseBlank and AND-masks in each requested
// (fuse, setting) pair, in map iteration order (order does not matter: each
// setting only ever clears bits, so the result is independent of order).
func (c *ChipInfo) EncodeFuseData(settings map[string]string) ([]uint16, error) {
	result := make([]uint16, len(c.FuseBlank))
	copy(result, c.FuseBlank)

	for fuse, value := range settings {
		fuseSettings, ok := c.Fuses[fuse]
		if !ok {
			return nil, newFuseError(fmt.Sprintf("unknown fuse %q", fuse))
		}
		pairs, ok := fuseSettings[value]
		if !ok {
			return nil, newFuseError(fmt.Sprintf("invalid fuse setting %q = %q", fuse, value))
		}
		result = bitops.IndexwiseAnd(result, toIndexMask(pairs))
	}
	return result, nil
}

// DecodeFuseData scans each declared fuse's settings, in declaration order,
// and for each one picks the setting that is compatible with the observed
// words (applying its mask is idempotent) and clears the most bits among
// compatible settings. Ties are resolved by later-definition wins.
func (c *ChipInfo) DecodeFuseData(words []uint16) (map[string]string, error) {
	result := make(map[string]string, len(c.Fuses))

	for _, fuse := range c.fuseOrder() {
		settings := c.Fuses[fuse]
		best := allOnes(len(words))
		found := false

		for _, setting := range c.settingOrder(fuse) {
			pairs := toIndexMask(settings[setting])
			if !bitops.EqualWords(bitops.IndexwiseAnd(words, pairs), words) {
				continue // not compatible: this setting would clear a bit the chip has set
			}
			candidate := bitops.IndexwiseAnd(best, pairs)
			if !bitops.EqualWords(candidate, best) {
				best = candidate
				result[fuse] = setting
				found = true
			}
		}
		if !found {
			return nil, newFuseError(fmt.Sprintf("could not identify setting for fuse %q", fuse))
		}
	}
	return result, nil
}

func toIndexMask(pairs []FuseSetting) []bitops.IndexMask {
	out := make([]bitops.IndexMask, len(pairs))
	for i, p := range pairs {
		out[i] = bitops.IndexMask{Index: p.Index, Mask: p.Mask}
	}
	return out
}

func allOnes(n int) []uint16 {
	words := make([]uint16, n)
	for i := range words {
		words[i] = 0xFFFF
	}
	return words
}

// fuseOrder and settingOrder give a stable, declaration-preserving
// iteration order over otherwise order-less Go maps; they are backed by
// insertion-order slices populated by the reader via SetOrder.
func (c *ChipInfo) fuseOrder() []string {
	if c.fuseNameOrder != nil {
		return c.fuseNameOrder
	}
	names := make([]string, 0, len(c.Fuses))
	for name := range c.Fuses {
		names = append(names, name)
	}
	return names
}

func (c *ChipInfo) settingOrder(fuse string) []string {
	if order, ok := c.settingNameOrder[fuse]; ok {
		return order
	}
	settings := c.Fuses[fuse]
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	return names
}
