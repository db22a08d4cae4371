package chipinfo

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed chipdata.cid
var embeddedChipData []byte

// Store is a loaded chip-info database, keyed by lower-cased chip name.
type Store struct {
	chips map[string]*ChipInfo
}

// LoadEmbedded parses the chip database bundled into the binary at build
// time. The CLI falls back to it when config.FindChipData finds no
// installed chipdata.cid, so the programmer works without one.
func LoadEmbedded() (*Store, error) {
	chips, err := ReadAll(strings.NewReader(string(embeddedChipData)))
	if err != nil {
		return nil, wrapErr("parsing embedded chip-info data", err)
	}
	return &Store{chips: chips}, nil
}

// LoadFile reads a .cid file from disk into a Store.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("opening chip-info file %q", path), err)
	}
	defer f.Close()

	chips, err := ReadAll(f)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("parsing chip-info file %q", path), err)
	}
	return &Store{chips: chips}, nil
}

// GetChip looks up a chip by name, case-insensitively.
func (s *Store) GetChip(name string) (*ChipInfo, error) {
	info, ok := s.chips[strings.ToLower(name)]
	if !ok {
		return nil, newFormatError(fmt.Sprintf("unknown chip %q", name))
	}
	return info, nil
}

// Names returns every chip name in the store, for listing/completion.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.chips))
	for name := range s.chips {
		names = append(names, name)
	}
	return names
}

// Len reports how many chip entries were loaded.
func (s *Store) Len() int {
	return len(s.chips)
}
