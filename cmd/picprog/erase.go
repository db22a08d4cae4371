package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var eraseOpts struct {
	port    string
	picType string
	icsp    bool
}

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase a PIC chip",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runErase()
	},
}

func init() {
	f := eraseCmd.Flags()
	f.StringVarP(&eraseOpts.port, "port", "p", "", "serial port the programmer is connected to")
	f.StringVarP(&eraseOpts.picType, "pic-type", "t", "", "chip model to erase")
	f.BoolVar(&eraseOpts.icsp, "icsp", false, "erase in-circuit instead of in the socket")
	eraseCmd.MarkFlagRequired("port")
	eraseCmd.MarkFlagRequired("pic-type")
}

func runErase() error {
	chip, err := loadChip(eraseOpts.picType)
	if err != nil {
		return err
	}

	d, err := openDriver(eraseOpts.port)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Init(chip, eraseOpts.icsp); err != nil {
		return err
	}
	if err := d.Erase(); err != nil {
		return err
	}
	fmt.Println("Done!")
	return nil
}
