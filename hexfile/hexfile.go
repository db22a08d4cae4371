package hexfile

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	recordShapeRe  = regexp.MustCompile(`^:[0-9a-fA-F]+$`)
	recordChopperRe = regexp.MustCompile(`^:(..)(....)(..)(.*)(..)$`)
)

// Record is one data record from a parsed hex file: Address is already
// folded with whatever extended-segment/extended-linear offset was active
// when the record was read.
type Record struct {
	Address uint32
	Data    []byte
}

// File is an ordered list of data records read from an Intel-HEX file.
type File struct {
	Records []Record
}

// Read parses an Intel-HEX file from r.
func Read(r io.Reader) (*File, error) {
	scanner := bufio.NewScanner(r)
	f := &File{}

	var extAddress uint32
	eof := false
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}

		if !recordShapeRe.MatchString(line) {
			return nil, newInvalidRecordError(fmt.Sprintf("line %d: record does not start with colon: %q", lineNo, line))
		}
		if eof {
			return nil, newInvalidRecordError(fmt.Sprintf("line %d: extra record after EOF record", lineNo))
		}

		chop := recordChopperRe.FindStringSubmatch(line)
		if chop == nil {
			return nil, newInvalidRecordError(fmt.Sprintf("line %d: failed to parse record %q", lineNo, line))
		}
		lengthStr, addressStr, typeStr, dataStr, checksumStr := chop[1], chop[2], chop[3], chop[4], chop[5]

		length, err := strconv.ParseUint(lengthStr, 16, 8)
		if err != nil {
			return nil, newInvalidRecordError(fmt.Sprintf("line %d: bad length %q", lineNo, lengthStr))
		}
		address, err := strconv.ParseUint(addressStr, 16, 16)
		if err != nil {
			return nil, newInvalidRecordError(fmt.Sprintf("line %d: bad address %q", lineNo, addressStr))
		}
		recordType, err := strconv.ParseUint(typeStr, 16, 8)
		if err != nil {
			return nil, newInvalidRecordError(fmt.Sprintf("line %d: bad record type %q", lineNo, typeStr))
		}
		data, err := hex.DecodeString(dataStr)
		if err != nil {
			return nil, newInvalidRecordError(fmt.Sprintf("line %d: bad data %q", lineNo, dataStr))
		}
		checksum, err := strconv.ParseUint(checksumStr, 16, 8)
		if err != nil {
			return nil, newInvalidRecordError(fmt.Sprintf("line %d: bad checksum %q", lineNo, checksumStr))
		}

		if int(length) != len(data) {
			return nil, newInvalidRecordError(fmt.Sprintf("line %d: incorrect data length: %d != %d (%s)", lineNo, length, len(data), dataStr))
		}

		if got := checksumOf(line); got != byte(checksum) {
			return nil, newInvalidChecksumError(fmt.Sprintf("line %d: %d != %d", lineNo, got, checksum))
		}

		switch recordType {
		case 0: // data record
			f.Records = append(f.Records, Record{Address: uint32(address) + extAddress, Data: data})
		case 1: // EOF record
			eof = true
		case 2: // extended-segment address record
			if len(data) != 2 {
				return nil, newInvalidRecordError(fmt.Sprintf("line %d: extended-segment record needs 2 data bytes, got %d", lineNo, len(data)))
			}
			extAddress = (uint32(data[0])<<8 | uint32(data[1])) << 4
		case 4: // extended-linear address record
			if len(data) != 2 {
				return nil, newInvalidRecordError(fmt.Sprintf("line %d: extended-linear record needs 2 data bytes, got %d", lineNo, len(data)))
			}
			extAddress = (uint32(data[0])<<8 | uint32(data[1])) << 16
		default:
			return nil, newInvalidRecordError(fmt.Sprintf("line %d: unknown record type (%d)", lineNo, recordType))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, wrapErr("reading hex file", err)
	}
	return f, nil
}

// checksumOf computes the two's-complement mod-256 checksum over every byte
// pair between the leading colon and the trailing checksum byte.
func checksumOf(line string) byte {
	var sum int
	for i := 1; i < len(line)-2; i += 2 {
		b, _ := strconv.ParseUint(line[i:i+2], 16, 8)
		sum = (sum + int(b)) % 256
	}
	return byte((256 - sum) % 256)
}

// Merge copies every record's data into buf at its address, returning a new
// buffer of the same length. An out-of-range record is an error.
func (f *File) Merge(buf []byte) ([]byte, error) {
	out := make([]byte, len(buf))
	copy(out, buf)

	for _, rec := range f.Records {
		end := int(rec.Address) + len(rec.Data)
		if end > len(out) {
			return nil, newInvalidRecordError(fmt.Sprintf("data record out of range: address 0x%x + %d bytes exceeds buffer of length %d", rec.Address, len(rec.Data), len(out)))
		}
		copy(out[rec.Address:end], rec.Data)
	}
	return out, nil
}
