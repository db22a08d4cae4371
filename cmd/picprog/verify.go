package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kitsrus/picprog/flashimage"
)

var verifyOpts struct {
	port    string
	hexFile string
	picType string
	icsp    bool
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a PIC chip's contents against a hex file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify()
	},
}

func init() {
	f := verifyCmd.Flags()
	f.StringVarP(&verifyOpts.port, "port", "p", "", "serial port the programmer is connected to")
	f.StringVarP(&verifyOpts.hexFile, "hex-file", "i", "", "hex file to verify against")
	f.StringVarP(&verifyOpts.picType, "pic-type", "t", "", "chip model to verify")
	f.BoolVar(&verifyOpts.icsp, "icsp", false, "verify in-circuit instead of in the socket")
	verifyCmd.MarkFlagRequired("port")
	verifyCmd.MarkFlagRequired("hex-file")
	verifyCmd.MarkFlagRequired("pic-type")
}

func runVerify() error {
	hf, err := loadHexFile(verifyOpts.hexFile)
	if err != nil {
		return err
	}
	chip, err := loadChip(verifyOpts.picType)
	if err != nil {
		return err
	}
	img, err := flashimage.Build(chip, hf, "", nil)
	if err != nil {
		return err
	}

	d, err := openDriver(verifyOpts.port)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Init(chip, verifyOpts.icsp); err != nil {
		return err
	}

	cfg, err := d.ReadChipConfig()
	if err != nil {
		return err
	}
	fmt.Println("==== Chip info ====")
	printChipConfig(cfg, chip)

	if !verifyOpts.icsp && !chip.ICSPOnly {
		if err := d.WaitForChipInsert(); err != nil {
			return err
		}
	}

	ok, err := d.Verify(img)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("verification failed")
	}
	fmt.Println("Done!")
	return nil
}
