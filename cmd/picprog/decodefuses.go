package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var decodeFusesOpts struct {
	picType string
}

var decodeFusesCmd = &cobra.Command{
	Use:   `decode_fuses "w1 w2 ..."`,
	Short: "Decode raw fuse words into symbolic settings for a chip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecodeFuses(args[0])
	},
}

func init() {
	decodeFusesCmd.Flags().StringVarP(&decodeFusesOpts.picType, "pic-type", "t", "", "chip model the fuse words belong to")
	decodeFusesCmd.MarkFlagRequired("pic-type")
}

func runDecodeFuses(wordsArg string) error {
	var words []uint16
	for _, field := range strings.Fields(wordsArg) {
		word, err := strconv.ParseUint(field, 0, 16)
		if err != nil {
			return fmt.Errorf("bad fuse word %q: %w", field, err)
		}
		words = append(words, uint16(word))
	}
	if len(words) == 0 {
		return fmt.Errorf("no fuse words given")
	}

	chip, err := loadChip(decodeFusesOpts.picType)
	if err != nil {
		return err
	}
	if len(words) < len(chip.FuseBlank) {
		return fmt.Errorf("chip %s has %d fuse words, got %d", chip.ChipName, len(chip.FuseBlank), len(words))
	}

	decoded, err := chip.DecodeFuseData(words)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(decoded))
	for name := range decoded {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s = %s\n", name, decoded[name])
	}
	return nil
}
