package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kitsrus/picprog/chipinfo"
)

var chipInfoCmd = &cobra.Command{
	Use:   "chip_info [PIC_TYPE]",
	Short: "Print one chip's database entry (or the whole database) as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		picType := ""
		if len(args) == 1 {
			picType = args[0]
		}
		return runChipInfo(picType)
	},
}

func runChipInfo(picType string) error {
	store, err := loadStore()
	if err != nil {
		return err
	}

	var payload any
	if picType != "" {
		chip, err := store.GetChip(picType)
		if err != nil {
			return err
		}
		payload = chip
	} else {
		all := make(map[string]*chipinfo.ChipInfo, store.Len())
		for _, name := range store.Names() {
			chip, err := store.GetChip(name)
			if err != nil {
				return err
			}
			all[name] = chip
		}
		payload = all
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
