package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kitsrus/picprog/chipinfo"
	"github.com/kitsrus/picprog/flashimage"
)

var programOpts struct {
	port    string
	hexFile string
	picType string
	picID   string
	fuses   []string
	icsp    bool
}

var programCmd = &cobra.Command{
	Use:   "program",
	Short: "Erase, program and verify a PIC chip from a hex file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProgram()
	},
}

func init() {
	f := programCmd.Flags()
	f.StringVarP(&programOpts.port, "port", "p", "", "serial port the programmer is connected to")
	f.StringVarP(&programOpts.hexFile, "hex-file", "i", "", "hex file to flash")
	f.StringVarP(&programOpts.picType, "pic-type", "t", "", "chip model to program")
	f.StringVar(&programOpts.picID, "id", "", "PIC user ID to program, as a hex string")
	f.StringArrayVar(&programOpts.fuses, "fuse", nil, "fuse override as NAME:VALUE, repeatable")
	f.BoolVar(&programOpts.icsp, "icsp", false, "program in-circuit instead of in the socket")
	programCmd.MarkFlagRequired("port")
	programCmd.MarkFlagRequired("hex-file")
	programCmd.MarkFlagRequired("pic-type")
}

func runProgram() error {
	fuses, err := parseFuseFlags(programOpts.fuses)
	if err != nil {
		return err
	}

	hf, err := loadHexFile(programOpts.hexFile)
	if err != nil {
		return err
	}
	chip, err := loadChip(programOpts.picType)
	if err != nil {
		return err
	}

	img, err := flashimage.Build(chip, hf, programOpts.picID, fuses)
	if err != nil {
		var fuseErr chipinfo.FuseError
		if errors.As(err, &fuseErr) {
			fmt.Println("Invalid fuse setting. Fuse names and valid settings for this chip are as follows:")
			fmt.Print(chip.FuseDoc())
		}
		return err
	}

	d, err := openDriver(programOpts.port)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Init(chip, programOpts.icsp); err != nil {
		return err
	}

	cfg, err := d.ReadChipConfig()
	if err != nil {
		return err
	}
	fmt.Println("==== Chip info ====")
	printChipConfig(cfg, chip)

	if !programOpts.icsp && !chip.ICSPOnly {
		if err := d.WaitForChipInsert(); err != nil {
			return err
		}
	}

	tx, ok, err := d.Program(img)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("verification failed")
	}
	if tx != nil {
		fmt.Println("Committing 18Fxxxx fuse data.")
		if err := tx.Commit(img.FuseWords()); err != nil {
			return err
		}
	}
	fmt.Println("Done!")
	return nil
}
