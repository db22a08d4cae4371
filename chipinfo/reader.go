package chipinfo

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	assignmentRe = regexp.MustCompile(`^(\S+)\s*=\s*(.*)\s*$`)
	fuseListRe   = regexp.MustCompile(`^LIST\d+\s+FUSE(\d+)\s+"([^"]*)"\s*(.*)$`)
	fuseValueRe  = regexp.MustCompile(`"([^"]*)"\s*=\s*([0-9a-fA-F]+(?:&[0-9a-fA-F]+)*)`)
	nonBlankRe   = regexp.MustCompile(`\S`)
)

// key names in the .cid file, mapped onto the ChipInfo fields we keep.
// KITSRUS.COM is a historical alias for SocketImage carried over from the
// Windows tool this format originates from.
var keyReplacements = map[string]string{
	"CHIPname":    "chip_name",
	"BandGap":     "band_gap",
	"INCLUDE":     "include",
	"SocketImage": "socket_image",
	"KITSRUS.COM": "socket_image",
	"PowerSequence": "power_sequence",
	"CALword":     "cal_word",
	"ChipID":      "chip_id",
	"CoreType":    "core_type",
	"CPwarn":      "cp_warn",
	"EEPROMsize":  "eeprom_size",
	"EraseMode":   "erase_mode",
	"FlashChip":   "flash_chip",
	"FUSEblank":   "fuse_blank",
	"ICSPonly":    "icsp_only",
	"OverProgram": "over_program",
	"ProgramDelay": "program_delay",
	"ProgramTries": "program_tries",
	"ROMsize":     "rom_size",
	// ProgramFlag2 and PanelSizing are accepted and discarded: their
	// purpose was never documented upstream.
	"ProgramFlag2": "program_flag_2",
	"PanelSizing":  "panel_sizing",
}

func parseBool(s string) (bool, bool) {
	switch s {
	case "y", "1":
		return true, true
	case "n", "0":
		return false, true
	default:
		return false, false
	}
}

// block accumulates the raw key/value pairs and fuse table for one chip
// entry while it's being parsed.
type block struct {
	values map[string]string
	fuses  map[string]map[string][]FuseSetting
	// fuseNameOrder/settingNameOrder preserve declaration order.
	fuseNameOrder    []string
	settingNameOrder map[string][]string
}

func newBlock() *block {
	return &block{
		values:           map[string]string{},
		fuses:            map[string]map[string][]FuseSetting{},
		settingNameOrder: map[string][]string{},
	}
}

// ReadAll parses a .cid chip-info file, returning a map of lower-cased chip
// name to ChipInfo. A block that fails to parse is dropped and parsing
// continues with the next block, so one bad database entry doesn't take
// down every chip after it.
func ReadAll(r io.Reader) (map[string]*ChipInfo, error) {
	scanner := bufio.NewScanner(r)
	result := map[string]*ChipInfo{}

	var cur *block
	var curErr error
	lineNo := 0

	flush := func() {
		if cur == nil {
			return
		}
		if curErr == nil {
			info, name, err := finishBlock(cur)
			if err != nil {
				curErr = err
			} else {
				result[name] = info
			}
		}
		cur = nil
		curErr = nil
	}

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		stripped := strings.TrimSpace(line)

		if stripped != "" {
			if cur == nil {
				cur = newBlock()
			}
			if curErr == nil {
				if err := parseLine(cur, stripped); err != nil {
					curErr = fmt.Errorf("line %d: %w", lineNo, err)
				}
			}
		} else {
			flush()
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, wrapErr("reading chip-info file", err)
	}
	return result, nil
}

// keysLoweredOnRead lists the fields whose raw value is forced to
// lower-case before parsing (chip names and boolean/numeric/enum fields
// that are matched case-insensitively). Fields not in this set, notably
// SocketImage and PowerSequence, keep the file's original casing.
var keysLoweredOnRead = map[string]bool{
	"chip_name": true, "band_gap": true, "cal_word": true, "chip_id": true,
	"core_type": true, "cp_warn": true, "eeprom_size": true, "erase_mode": true,
	"flash_chip": true, "fuse_blank": true, "icsp_only": true, "over_program": true,
	"program_delay": true, "program_tries": true, "rom_size": true, "include": true,
}

func parseLine(b *block, line string) error {
	if m := assignmentRe.FindStringSubmatch(line); m != nil {
		rawKey, rhs := m[1], m[2]
		key, ok := keyReplacements[rawKey]
		if !ok {
			return newFormatError(fmt.Sprintf("unrecognized key %q", rawKey))
		}
		value := strings.TrimSpace(rhs)
		if keysLoweredOnRead[key] {
			value = strings.ToLower(value)
		}
		b.values[key] = value
		return nil
	}

	if m := fuseListRe.FindStringSubmatch(line); m != nil {
		fuseNumberStr, name, valuesStr := m[1], m[2], m[3]
		fuseNumber, err := strconv.Atoi(fuseNumberStr)
		if err != nil {
			return newFormatError(fmt.Sprintf("bad fuse number %q", fuseNumberStr))
		}

		settings := map[string][]FuseSetting{}
		var settingOrder []string
		for _, pair := range fuseValueRe.FindAllStringSubmatch(valuesStr, -1) {
			settingName, rhs := pair[1], pair[2]
			parts := strings.Split(rhs, "&")
			pairs := make([]FuseSetting, 0, len(parts))
			for i, p := range parts {
				mask, err := strconv.ParseUint(p, 16, 16)
				if err != nil {
					return newFormatError(fmt.Sprintf("bad fuse mask %q", p))
				}
				pairs = append(pairs, FuseSetting{Index: fuseNumber - 1 + i, Mask: uint16(mask)})
			}
			settings[settingName] = pairs
			settingOrder = append(settingOrder, settingName)
		}
		if _, exists := b.fuses[name]; !exists {
			b.fuseNameOrder = append(b.fuseNameOrder, name)
		}
		b.fuses[name] = settings
		b.settingNameOrder[name] = settingOrder
		return nil
	}

	if nonBlankRe.MatchString(line) {
		return newFormatError(fmt.Sprintf("unrecognized line format %q", line))
	}
	return nil
}

func finishBlock(b *block) (*ChipInfo, string, error) {
	name, ok := b.values["chip_name"]
	if !ok {
		return nil, "", newFormatError("block has no CHIPname")
	}

	info := &ChipInfo{
		ChipName: name,
		Fuses:    b.fuses,
	}
	info.SetOrder(b.fuseNameOrder, b.settingNameOrder)

	if v, ok := b.values["include"]; ok {
		info.Include, _ = parseBool(v)
	} else {
		info.Include = true
	}
	info.SocketImage = SocketImage(b.values["socket_image"])
	if v, ok := b.values["erase_mode"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, "", newFormatError(fmt.Sprintf("bad EraseMode %q", v))
		}
		info.EraseMode = n
	}
	if v, ok := b.values["flash_chip"]; ok {
		info.FlashChip, _ = parseBool(v)
	}
	info.PowerSequence = PowerSequence(b.values["power_sequence"])
	if v, ok := b.values["program_delay"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, "", newFormatError(fmt.Sprintf("bad ProgramDelay %q", v))
		}
		info.ProgramDelay = n
	}
	info.ProgramTries = 1
	if v, ok := b.values["program_tries"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, "", newFormatError(fmt.Sprintf("bad ProgramTries %q", v))
		}
		info.ProgramTries = n
	}
	info.OverProgram = 0
	if v, ok := b.values["over_program"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, "", newFormatError(fmt.Sprintf("bad OverProgram %q", v))
		}
		info.OverProgram = n
	}
	info.CoreType = CoreType(b.values["core_type"])
	if _, ok := coreTypeBits[info.CoreType]; !ok && info.CoreType != CoreNewF12B {
		return nil, "", newFormatError(fmt.Sprintf("unknown CoreType %q", b.values["core_type"]))
	}
	if info.CoreType == CoreNewF12B {
		// newf12b has no known protocol core-type code; reject rather
		// than guess one.
		return nil, "", newFormatError("CoreType newf12b is not supported")
	}
	if v, ok := b.values["rom_size"]; ok {
		n, err := strconv.ParseInt(v, 16, 32)
		if err != nil {
			return nil, "", newFormatError(fmt.Sprintf("bad ROMsize %q", v))
		}
		info.ROMSize = int(n)
	}
	if v, ok := b.values["eeprom_size"]; ok {
		n, err := strconv.ParseInt(v, 16, 32)
		if err != nil {
			return nil, "", newFormatError(fmt.Sprintf("bad EEPROMsize %q", v))
		}
		info.EEPROMSize = int(n)
	}
	if v, ok := b.values["fuse_blank"]; ok {
		words := strings.Fields(v)
		info.FuseBlank = make([]uint16, len(words))
		for i, w := range words {
			n, err := strconv.ParseUint(w, 16, 16)
			if err != nil {
				return nil, "", newFormatError(fmt.Sprintf("bad FUSEblank word %q", w))
			}
			info.FuseBlank[i] = uint16(n)
		}
	}
	if v, ok := b.values["cp_warn"]; ok {
		info.CPWarn, _ = parseBool(v)
	}
	if v, ok := b.values["cal_word"]; ok {
		info.CalWord, _ = parseBool(v)
	}
	if v, ok := b.values["band_gap"]; ok {
		info.BandGap, _ = parseBool(v)
	}
	if v, ok := b.values["icsp_only"]; ok {
		info.ICSPOnly, _ = parseBool(v)
	}
	if v, ok := b.values["chip_id"]; ok {
		n, err := strconv.ParseUint(v, 16, 16)
		if err != nil {
			return nil, "", newFormatError(fmt.Sprintf("bad ChipID %q", v))
		}
		info.ChipID = uint16(n)
	}

	return info, name, nil
}
