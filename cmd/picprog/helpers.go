package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/kitsrus/picprog/chipinfo"
	"github.com/kitsrus/picprog/config"
	"github.com/kitsrus/picprog/hexfile"
	"github.com/kitsrus/picprog/pipeline"
	"github.com/kitsrus/picprog/protocol"
	"github.com/kitsrus/picprog/serial"
)

// loadStore loads the chip database: an installed chipdata.cid if one is
// found on the search path, the embedded copy otherwise.
func loadStore() (*chipinfo.Store, error) {
	path, err := config.FindChipData()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return chipinfo.LoadEmbedded()
	}
	return chipinfo.LoadFile(path)
}

// loadChip looks picType up in the chip database.
func loadChip(picType string) (*chipinfo.ChipInfo, error) {
	store, err := loadStore()
	if err != nil {
		return nil, err
	}
	return store.GetChip(picType)
}

// loadHexFile parses an Intel-HEX file from disk.
func loadHexFile(path string) (*hexfile.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening hex file %q: %w", path, err)
	}
	defer f.Close()
	return hexfile.Read(f)
}

// openDriver opens the serial port and resets the programmer, detecting its
// protocol revision. The caller must Close the returned driver.
func openDriver(port string) (*pipeline.Driver, error) {
	t, err := serial.OpenTransport(port)
	if err != nil {
		return nil, fmt.Errorf("unable to open serial port %q: %w", port, err)
	}
	d, err := pipeline.Dial(t, port)
	if err != nil {
		t.Close()
		return nil, err
	}
	return d, nil
}

// parseFuseFlags splits repeated --fuse=NAME:VALUE arguments into a map.
func parseFuseFlags(args []string) (map[string]string, error) {
	fuses := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("malformed --fuse argument %q, expected NAME:VALUE", arg)
		}
		fuses[name] = value
	}
	return fuses, nil
}

// printChipConfig renders a read-back chip config, decoding the fuse words
// symbolically against the chip's declared settings.
func printChipConfig(cfg *protocol.ChipConfig, chip *chipinfo.ChipInfo) {
	fmt.Printf("Chip ID: %d (%#04x)\n", cfg.ChipID, cfg.ChipID)
	fmt.Printf("ID:      %x\n", cfg.ID)
	fmt.Printf("CAL:     %d\n", cfg.Calibrate)
	fmt.Println("Fuses:")

	decoded, err := chip.DecodeFuseData(cfg.Fuses)
	if err != nil {
		fmt.Printf("    (could not decode: %v)\n", err)
		return
	}
	names := make([]string, 0, len(decoded))
	for name := range decoded {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("    %s = %s\n", name, decoded[name])
	}
}
