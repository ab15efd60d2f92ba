package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <path>",
	Short: "Print the timeline info as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tl, err := state.openTimeline(cmd, args)
		if err != nil {
			return err
		}
		defer tl.Close()
		info, err := tl.Info()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}

func init() {
	addSyntheticFlag(infoCmd)
}
