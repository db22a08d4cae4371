package flashimage

import "github.com/kitsrus/picprog/hexfile"

// rangeFilter returns the subset of records overlapping [lower, upper),
// clipped to that range and re-addressed relative to nothing (addresses
// stay absolute; callers subtract a base when merging).
func rangeFilter(records []hexfile.Record, lower, upper uint32) []hexfile.Record {
	var result []hexfile.Record
	for _, rec := range records {
		end := rec.Address + uint32(len(rec.Data))
		switch {
		case rec.Address >= lower && rec.Address < upper:
			if end < upper {
				result = append(result, rec)
			} else {
				result = append(result, hexfile.Record{Address: rec.Address, Data: rec.Data[:upper-rec.Address]})
			}
		case rec.Address < lower && lower < end:
			data := rec.Data[lower-rec.Address:]
			if end > upper {
				data = rec.Data[lower-rec.Address : upper-rec.Address]
			}
			result = append(result, hexfile.Record{Address: lower, Data: data})
		}
	}
	return result
}

// mergeRecords overlays records onto a copy of def (whose own address space
// starts at base), erroring if any record falls outside [base, base+len(def)).
func mergeRecords(records []hexfile.Record, def []byte, base uint32) ([]byte, error) {
	result := make([]byte, 0, len(def))
	mark := uint32(0)
	for _, rec := range records {
		if rec.Address < base {
			return nil, newInvalidValueError("record address out of range")
		}
		if rec.Address+uint32(len(rec.Data)) > base+uint32(len(def)) {
			return nil, newInvalidValueError("record out of range")
		}
		point := rec.Address - base
		if mark != point {
			result = append(result, def[mark:point]...)
			mark = point
		}
		result = append(result, rec.Data...)
		mark += uint32(len(rec.Data))
	}
	if int(mark) < len(def) {
		result = append(result, def[mark:]...)
	}
	return result, nil
}

// swabRecords returns a copy of records with each one's data byte-swapped.
func swabRecords(records []hexfile.Record) []hexfile.Record {
	out := make([]hexfile.Record, len(records))
	for i, rec := range records {
		swapped := make([]byte, len(rec.Data))
		for x := 0; x+1 < len(rec.Data); x += 2 {
			swapped[x] = rec.Data[x+1]
			swapped[x+1] = rec.Data[x]
		}
		out[i] = hexfile.Record{Address: rec.Address, Data: swapped}
	}
	return out
}
