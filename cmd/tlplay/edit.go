package main

import (
	"fmt"
	"os"

	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/otio"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit a composition and write the result to stdout",
}

var sliceCmd = &cobra.Command{
	Use:   "slice <in.otio>",
	Short: "Split an item in two at a time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return edit(cmd, args[0], func(c *otio.Composition, ref otio.ItemRef) (*otio.Composition, error) {
			at := otime.FromSeconds(lo.Must(cmd.Flags().GetFloat64("at")), c.Rate())
			return otio.Slice(c, ref, at)
		})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <in.otio>",
	Short: "Remove an item, by default leaving a gap",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return edit(cmd, args[0], func(c *otio.Composition, ref otio.ItemRef) (*otio.Composition, error) {
			return otio.Remove(c, ref, lo.Must(cmd.Flags().GetBool("fill")))
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{sliceCmd, removeCmd} {
		cmd.Flags().Int("track", 0, "Track index")
		cmd.Flags().Int("index", 0, "Item index in the track")
		editCmd.AddCommand(cmd)
	}
	sliceCmd.Flags().Float64("at", 0, "Track time in seconds")
	removeCmd.Flags().Bool("fill", true, "Replace the item with a gap")
}

func edit(cmd *cobra.Command, path string, op func(*otio.Composition, otio.ItemRef) (*otio.Composition, error)) error {
	data, err := afero.ReadFile(afero.NewOsFs(), path)
	if err != nil {
		return err
	}
	c, err := otio.Decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	ref := otio.ItemRef{
		Track: lo.Must(cmd.Flags().GetInt("track")),
		Index: lo.Must(cmd.Flags().GetInt("index")),
	}
	out, err := op(c, ref)
	if err != nil {
		return err
	}
	s, err := out.ToJSONString()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, s)
	return err
}
