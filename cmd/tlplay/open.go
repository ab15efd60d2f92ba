package main

import (
	"errors"
	"time"

	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/reader/fake"
	"github.com/jdeisenh/tlplay/pkg/timeline"
	"github.com/spf13/cobra"
)

// syntheticPath is served by the fake reader in synthetic mode
const syntheticPath = "synthetic." + fake.Extension

func addSyntheticFlag(cmd *cobra.Command) {
	cmd.Flags().Duration("synthetic", 0, "Use generated media of this length instead of a file")
}

// openTimeline opens the path argument, or generated media with --synthetic
func (a *app) openTimeline(cmd *cobra.Command, args []string) (*timeline.Timeline, error) {
	opts := a.settings.Timeline
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	if d, _ := cmd.Flags().GetDuration("synthetic"); d > 0 {
		src := fake.NewSource()
		src.Add(syntheticPath, fake.Media{
			Rate:       otime.Rate24,
			Frames:     otime.FromDuration(d, otime.Rate24).Value,
			Width:      64,
			Height:     36,
			SampleRate: 48000,
			Channels:   2,
			Samples:    otime.FromDuration(d, otime.Rate{Num: 48000, Den: 1}).Value,
			Level:      0.1,
			Delay:      2 * time.Millisecond,
		})
		opts.Registry = timeline.DefaultRegistry()
		opts.Registry.Register(src.Plugin())
		if path == "" {
			path = syntheticPath
		}
	}
	if path == "" {
		return nil, errors.New("missing path, give one or use --synthetic")
	}
	a.logger.Debug().Str("path", path).Msg("Open timeline")
	return timeline.Open(path, opts), nil
}
