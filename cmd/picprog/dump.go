package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kitsrus/picprog/bitops"
	"github.com/kitsrus/picprog/hexfile"
	"github.com/kitsrus/picprog/pipeline"
)

var dumpOpts struct {
	port    string
	out     string
	picType string
	icsp    bool
	binary  bool
}

var dumpCmd = &cobra.Command{
	Use:   "dump <rom|eeprom|config>",
	Short: "Read a chip memory region into a file, as Intel-HEX or raw binary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDump(args[0])
	},
}

func init() {
	f := dumpCmd.Flags()
	f.StringVarP(&dumpOpts.port, "port", "p", "", "serial port the programmer is connected to")
	f.StringVarP(&dumpOpts.out, "out", "o", "", "output file to write")
	f.StringVarP(&dumpOpts.picType, "pic-type", "t", "", "chip model to read")
	f.BoolVar(&dumpOpts.icsp, "icsp", false, "read in-circuit instead of in the socket")
	f.BoolVar(&dumpOpts.binary, "binary", false, "write raw binary instead of Intel-HEX")
	dumpCmd.MarkFlagRequired("port")
	dumpCmd.MarkFlagRequired("out")
	dumpCmd.MarkFlagRequired("pic-type")
}

func runDump(memType string) error {
	chip, err := loadChip(dumpOpts.picType)
	if err != nil {
		return err
	}

	d, err := openDriver(dumpOpts.port)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Init(chip, dumpOpts.icsp); err != nil {
		return err
	}

	content, err := readDumpContent(d, memType, chip.HasEEPROM())
	if err != nil {
		return err
	}

	out, err := os.Create(dumpOpts.out)
	if err != nil {
		return fmt.Errorf("creating output file %q: %w", dumpOpts.out, err)
	}
	defer out.Close()

	if dumpOpts.binary {
		if _, err := out.Write(content); err != nil {
			return fmt.Errorf("writing %q: %w", dumpOpts.out, err)
		}
	} else if err := hexfile.Write(out, content); err != nil {
		return err
	}
	fmt.Println("Done!")
	return nil
}

// readDumpContent reads the requested memory region. ROM and EEPROM come
// off the wire as big-endian words and are swapped to the file byte order
// a hex tool expects.
func readDumpContent(d *pipeline.Driver, memType string, hasEEPROM bool) ([]byte, error) {
	switch memType {
	case "rom":
		data, err := d.DumpROM()
		if err != nil {
			return nil, err
		}
		return bitops.Swab(data)
	case "eeprom":
		if !hasEEPROM {
			return nil, fmt.Errorf("this chip has no EEPROM")
		}
		data, err := d.DumpEEPROM()
		if err != nil {
			return nil, err
		}
		return bitops.Swab(data)
	case "config":
		return d.DumpConfig()
	default:
		return nil, fmt.Errorf("unknown memory type %q, expected rom, eeprom or config", memType)
	}
}
