// Command picprog drives kitsrus K128/K149/K150 serial PIC programmers:
// it programs, verifies, dumps and erases chips, and inspects chip-database
// entries, hex files and the attached programmer.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:           "picprog",
	Short:         "Program PIC chips through kitsrus K128/K149/K150 serial programmers",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		programCmd,
		verifyCmd,
		eraseCmd,
		dumpCmd,
		chipInfoCmd,
		readChipConfigCmd,
		hexInfoCmd,
		programmerInfoCmd,
		decodeFusesCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
