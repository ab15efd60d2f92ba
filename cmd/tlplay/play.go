package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jdeisenh/tlplay/pkg/player"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play <path>",
	Short: "Play headless and report frame and audio statistics",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPlay,
}

func init() {
	playCmd.Flags().Duration("for", 0, "Stop after this time, 0 plays until interrupted or stopped")
	playCmd.Flags().Float64("speed", 1, "Playback speed")
	playCmd.Flags().String("loop", "", "Loop mode: once, loop, pingpong")
	playCmd.Flags().Bool("reverse", false, "Play backwards")
	addSyntheticFlag(playCmd)
}

// nullDevice pulls audio like a sound card would and counts what it got
type nullDevice struct {
	pulled  int64
	audible int64
}

func (d *nullDevice) run(ctx context.Context, p *player.Player) {
	const period = 10 * time.Millisecond
	ch := p.Channels()
	buf := make([]float32, p.SampleRate()/100*ch)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n := p.PullAudio(buf)
		d.pulled += int64(n)
		for i := 0; i < n; i++ {
			if buf[i*ch] != 0 {
				d.audible++
			}
		}
	}
}

func runPlay(cmd *cobra.Command, args []string) error {
	logger := state.logger
	tl, err := state.openTimeline(cmd, args)
	if err != nil {
		return err
	}
	defer tl.Close()
	p, err := player.New(tl, state.settings.Player)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("speed") {
		p.SetSpeed(lo.Must(cmd.Flags().GetFloat64("speed")))
	}
	if s, _ := cmd.Flags().GetString("loop"); s != "" {
		loop, err := player.ParseLoop(s)
		if err != nil {
			return err
		}
		p.SetLoop(loop)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if d, _ := cmd.Flags().GetDuration("for"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	if listen := state.settings.Listen; listen != "" {
		go serve(listen, newRouter(p, tl), logger)
	}

	frames, unsubscribe := p.CurrentVideo().Subscribe()
	defer unsubscribe()

	runCtx, cancelRun := context.WithCancel(ctx)
	var wg sync.WaitGroup
	var dev nullDevice
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		dev.run(runCtx, p)
	}()

	direction := player.Forward
	if lo.Must(cmd.Flags().GetBool("reverse")) {
		direction = player.Reverse
		p.End()
	}
	p.SetPlayback(direction)
	playback, unsubscribePlayback := p.Playback().Subscribe()
	defer unsubscribePlayback()

	started := time.Now()
	var shown, null int
forloop:
	for {
		select {
		case <-ctx.Done():
			break forloop
		case v := <-frames:
			if v.ID == uuid.Nil {
				continue
			}
			shown++
			if !v.HasImage() {
				null++
			}
			logger.Debug().Str("id", v.ID.String()).Msgf("Frame %s", v.Time)
		case s := <-playback:
			if s == player.Stop {
				logger.Info().Msg("Playback stopped")
				break forloop
			}
		}
	}
	p.SetPlayback(player.Stop)
	cancelRun()
	wg.Wait()

	status := p.Status()
	stats := tl.Stats()
	logger.Info().
		Dur("played", time.Since(started)).
		Int("frames", shown).
		Int("null", null).
		Int64("samples", dev.pulled).
		Int64("audible", dev.audible).
		Int("underruns", status.Underruns).
		Uint64("decodeErrors", stats.DecodeErrors).
		Uint64("timeouts", stats.Timeouts).
		Uint64("evicted", stats.Evicted).
		Msgf("Played to %s", status.Time)
	return nil
}
