package main

import (
	"github.com/spf13/cobra"
)

var readChipConfigOpts struct {
	port    string
	picType string
	icsp    bool
}

var readChipConfigCmd = &cobra.Command{
	Use:   "read_chip_config",
	Short: "Read and decode a chip's ID, fuses and calibration word",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReadChipConfig()
	},
}

func init() {
	f := readChipConfigCmd.Flags()
	f.StringVarP(&readChipConfigOpts.port, "port", "p", "", "serial port the programmer is connected to")
	f.StringVarP(&readChipConfigOpts.picType, "pic-type", "t", "", "chip model to read")
	f.BoolVar(&readChipConfigOpts.icsp, "icsp", false, "read in-circuit instead of in the socket")
	readChipConfigCmd.MarkFlagRequired("port")
	readChipConfigCmd.MarkFlagRequired("pic-type")
}

func runReadChipConfig() error {
	chip, err := loadChip(readChipConfigOpts.picType)
	if err != nil {
		return err
	}

	d, err := openDriver(readChipConfigOpts.port)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Init(chip, readChipConfigOpts.icsp); err != nil {
		return err
	}

	cfg, err := d.ReadChipConfig()
	if err != nil {
		return err
	}
	printChipConfig(cfg, chip)
	return nil
}
