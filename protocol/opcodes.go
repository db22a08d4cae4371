package protocol

import "fmt"

// opcodeTable is plain data: the numeric opcode for every named operation,
// parameterized by firmware revision. Selected once at Dial time from the
// protocol query's 4-byte tag, the same way a ChipInfo entry parameterizes
// the programming-vars payload: the chip/firmware database is data, not
// code.
type opcodeTable struct {
	initVars            byte
	vppOn               byte
	vppOff              byte
	cycleVpp            byte
	programROM          byte
	programEEPROM       byte
	programIDFuses      byte
	programCalibration  byte
	readROM             byte
	readEEPROM          byte
	readConfig          byte
	erase               byte
	romBlank            byte
	eepromBlank         byte
	commitFuses         byte
	waitIn              byte
	waitOut             byte
	version             byte
	protocolQuery       byte
	programDebugVector  byte
	readDebugVector     byte
}

var p018Opcodes = opcodeTable{
	initVars: 3, vppOn: 4, vppOff: 5, cycleVpp: 6,
	programROM: 7, programEEPROM: 8, programIDFuses: 9, programCalibration: 10,
	readROM: 11, readEEPROM: 12, readConfig: 13,
	erase: 15, romBlank: 16, eepromBlank: 17, commitFuses: 18,
	waitIn: 19, waitOut: 20, version: 21, protocolQuery: 22,
	programDebugVector: 23, readDebugVector: 24,
}

var p18aOpcodes = opcodeTable{
	initVars: 3, vppOn: 4, vppOff: 5, cycleVpp: 6,
	programROM: 7, programEEPROM: 8, programIDFuses: 9, programCalibration: 10,
	readROM: 11, readEEPROM: 12, readConfig: 13,
	erase: 14, romBlank: 15, eepromBlank: 16, commitFuses: 17,
	waitIn: 18, waitOut: 19, version: 20, protocolQuery: 21,
	programDebugVector: 22, readDebugVector: 23,
}

// opcodeTableFor resolves the 4-byte protocol tag ("P018" or "P18A") the
// programmer reports to its opcode table.
func opcodeTableFor(tag string) (opcodeTable, error) {
	switch tag {
	case "P018":
		return p018Opcodes, nil
	case "P18A":
		return p18aOpcodes, nil
	default:
		return opcodeTable{}, newInvalidResponseError(fmt.Sprintf("unknown protocol tag %q", tag))
	}
}
