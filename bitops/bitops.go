// Package bitops provides the small byte- and word-level helpers shared by
// the chip-info codec and the flash image builder: endianness swapping and
// index-wise masking.
package bitops

import "fmt"

// Swab swaps the high and low byte of every aligned 2-byte pair in b and
// returns a new slice. len(b) must be even.
func Swab(b []byte) ([]byte, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("bitops: Swab requires even length, got %d", len(b))
	}
	result := make([]byte, len(b))
	for i := 0; i < len(b); i += 2 {
		result[i] = b[i+1]
		result[i+1] = b[i]
	}
	return result, nil
}

// IndexMask is a single (index, mask) pair: slot words[Index] is AND-masked
// with Mask.
type IndexMask struct {
	Index int
	Mask  uint16
}

// IndexwiseAnd returns a copy of words with each indicated slot AND-masked;
// slots not mentioned in pairs are unchanged.
func IndexwiseAnd(words []uint16, pairs []IndexMask) []uint16 {
	result := make([]uint16, len(words))
	copy(result, words)
	for _, p := range pairs {
		result[p.Index] &= p.Mask
	}
	return result
}

// EqualWords reports whether a and b contain the same words in the same
// order.
func EqualWords(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
