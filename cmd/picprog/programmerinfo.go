package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var programmerInfoOpts struct {
	port string
}

var programmerInfoCmd = &cobra.Command{
	Use:   "programmer_info",
	Short: "Print the attached programmer's hardware and protocol versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProgrammerInfo()
	},
}

func init() {
	programmerInfoCmd.Flags().StringVarP(&programmerInfoOpts.port, "port", "p", "", "serial port the programmer is connected to")
	programmerInfoCmd.MarkFlagRequired("port")
}

var programmerModelNames = map[byte]string{
	0: "K128",
	1: "K149-A",
	2: "K149-B",
	3: "K150",
}

func runProgrammerInfo() error {
	d, err := openDriver(programmerInfoOpts.port)
	if err != nil {
		return err
	}
	defer d.Close()

	version, err := d.ProgrammerVersion()
	if err != nil {
		return err
	}
	model, ok := programmerModelNames[version]
	if !ok {
		model = "unknown"
	}
	fmt.Printf("Firmware version: %d (%s)\n", version, model)

	tag, err := d.ProgrammerProtocol()
	if err != nil {
		return err
	}
	fmt.Printf("Protocol version: %s\n", tag)
	return nil
}
