// Package player drives a timeline from a playback clock and publishes the
// current frame and audio to observers.
package player

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jdeisenh/tlplay/pkg/future"
	"github.com/jdeisenh/tlplay/pkg/observer"
	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/timeline"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

type Player struct {
	tl         Timeline
	info       timeline.Info
	opts       Options
	clock      Clock
	logger     zerolog.Logger
	rate       otime.Rate
	sampleRate int
	channels   int

	currentTime     *observer.Value[otime.RationalTime]
	playback        *observer.Value[Playback]
	currentVideo    *observer.Value[timeline.VideoData]
	currentAudio    *observer.Value[timeline.AudioData]
	cachePercentage *observer.Value[CachePercentage]
	speed           *observer.Value[float64]
	loop            *observer.Value[Loop]
	inOutRange      *observer.Value[otime.TimeRange]

	mu    sync.Mutex
	state Playback
	frame int64
	// Clock anchor: frameStart was current at wallStart
	wallStart  time.Time
	frameStart int64
	speedValue float64
	loopMode   Loop
	// In and out point in frames, out is exclusive
	in, out    int64
	volume     float64
	mute       bool
	readAhead  time.Duration
	readBehind time.Duration

	pending      pendingList
	frames       map[int64]timeline.VideoData
	audioPending map[int64]*future.Future[timeline.AudioData]
	ring         map[int64]timeline.AudioData
	audioPos     int64
	underruns    int
}

// New creates a stopped player at the start of tl. It blocks until the
// timeline is loaded and fails if loading failed.
func New(tl Timeline, opts Options) (*Player, error) {
	info, err := tl.Info()
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	rate := info.Rate
	if !rate.IsValid() {
		rate = otime.Rate24
	}
	p := &Player{
		tl:           tl,
		info:         info,
		opts:         opts,
		clock:        opts.Clock,
		logger:       opts.Logger.With().Str("component", "player").Logger(),
		rate:         rate,
		sampleRate:   opts.AudioSampleRate,
		channels:     opts.AudioChannels,
		speedValue:   opts.Speed,
		loopMode:     opts.Loop,
		volume:       lo.Clamp(opts.Volume, 0, 1),
		readAhead:    opts.ReadAhead,
		readBehind:   opts.ReadBehind,
		frames:       make(map[int64]timeline.VideoData),
		audioPending: make(map[int64]*future.Future[timeline.AudioData]),
		ring:         make(map[int64]timeline.AudioData),
	}
	if info.Audio.IsValid() {
		p.sampleRate, p.channels = info.Audio.SampleRate, info.Audio.Channels
	}
	p.in = info.Range.Start.RescaledTo(rate).Value
	p.out = max(info.Range.End().RescaledTo(rate).Value, p.in+1)
	p.frame = p.in
	p.wallStart = p.clock.Now()
	p.frameStart = p.frame
	p.audioPos = p.samplePos(p.frame)

	p.currentTime = observer.NewComparable(p.timeOf(p.frame))
	p.playback = observer.NewComparable(Stop)
	p.currentVideo = observer.NewValue(timeline.VideoData{}).WithEqual(func(a, b timeline.VideoData) bool {
		return a.ID == b.ID
	})
	p.currentAudio = observer.NewValue(timeline.AudioData{}).WithEqual(func(a, b timeline.AudioData) bool {
		return a.ID == b.ID
	})
	p.cachePercentage = observer.NewComparable(CachePercentage{})
	p.speed = observer.NewComparable(p.speedValue)
	p.loop = observer.NewComparable(p.loopMode)
	p.inOutRange = observer.NewComparable(p.inOut())

	tl.SetCacheOptions(p.readAhead, p.readBehind)
	return p, nil
}

func (p *Player) Info() timeline.Info { return p.info }

func (p *Player) CurrentTime() observer.Observable[otime.RationalTime]  { return p.currentTime }
func (p *Player) Playback() observer.Observable[Playback]               { return p.playback }
func (p *Player) CurrentVideo() observer.Observable[timeline.VideoData] { return p.currentVideo }
func (p *Player) CurrentAudio() observer.Observable[timeline.AudioData] { return p.currentAudio }
func (p *Player) CachePercentage() observer.Observable[CachePercentage] { return p.cachePercentage }
func (p *Player) Speed() observer.Observable[float64]                   { return p.speed }
func (p *Player) Loop() observer.Observable[Loop]                       { return p.loop }
func (p *Player) InOutRange() observer.Observable[otime.TimeRange]      { return p.inOutRange }

func (p *Player) timeOf(frame int64) otime.RationalTime {
	return otime.New(frame, p.rate)
}

func (p *Player) inOut() otime.TimeRange {
	return otime.RangeFromStartEnd(p.timeOf(p.in), p.timeOf(p.out))
}

// Run ticks the player until ctx is done
func (p *Player) Run(ctx context.Context) {
	ticker := time.NewTicker(p.opts.TickInterval)
	defer ticker.Stop()
	for {
		p.Tick()
		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("Stop player")
			return
		case <-ticker.C:
		}
	}
}

// Tick advances the clock, collects finished reads, issues new ones and
// publishes what is current
func (p *Player) Tick() {
	p.mu.Lock()
	now := p.clock.Now()
	if p.state != Stop {
		p.advance(now)
	}
	p.collect()
	p.schedule()
	p.publish()
	video, audio := p.tl.CachePercentage()
	p.cachePercentage.SetIfChanged(CachePercentage{Video: video, Audio: audio})
	p.mu.Unlock()
	p.tl.Tick()
}

// clockFrame is the frame under the clock at now, mu held
func (p *Player) clockFrame(now time.Time) int64 {
	elapsed := now.Sub(p.wallStart).Seconds() * p.speedValue * float64(p.state.direction())
	return p.frameStart + int64(math.Round(elapsed*p.rate.Float()))
}

func (p *Player) anchor(now time.Time, frame int64) {
	p.wallStart = now
	p.frameStart = frame
}

// advance moves the current frame with the clock and applies the loop
// mode at the in and out points, mu held
func (p *Player) advance(now time.Time) {
	f := p.clockFrame(now)
	last := p.out - 1
	length := p.out - p.in
	switch {
	case f > last:
		switch p.loopMode {
		case Once:
			f = last
			p.state = Stop
			p.anchor(now, f)
		case Repeat:
			f = p.in + (f-p.out)%length
			p.anchor(now, f)
		case PingPong:
			// The boundary frame is shown before turning around
			f = last
			p.state = Reverse
			p.anchor(now, f)
		}
	case f < p.in:
		switch p.loopMode {
		case Once:
			f = p.in
			p.state = Stop
			p.anchor(now, f)
		case Repeat:
			f = last - (p.in-f-1)%length
			p.anchor(now, f)
		case PingPong:
			f = p.in
			p.state = Forward
			p.anchor(now, f)
		}
	}
	p.frame = f
}

// publish updates the observables from the current state, mu held
func (p *Player) publish() {
	p.currentTime.SetIfChanged(p.timeOf(p.frame))
	p.playback.SetIfChanged(p.state)
	if v, ok := p.frames[p.frame]; ok {
		p.currentVideo.SetIfChanged(v)
	}
	if a, ok := p.ring[p.bucketOf(p.frame)]; ok {
		p.currentAudio.SetIfChanged(a)
	}
}

// SetPlayback starts, reverses or stops playback from the current frame
func (p *Player) SetPlayback(state Playback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock.Now()
	if p.state != Stop {
		p.advance(now)
	}
	p.state = state
	p.anchor(now, p.frame)
	p.audioPos = p.samplePos(p.frame)
	p.publish()
}

// SetCurrentTime seeks to t. Outstanding requests are cancelled and the
// decoded frames dropped, the engine caches are kept.
func (p *Player) SetCurrentTime(t otime.RationalTime) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seek(t.RescaledTo(p.rate).Value)
}

// seek moves to frame, mu held
func (p *Player) seek(frame int64) {
	frame = lo.Clamp(frame, p.in, p.out-1)
	p.tl.CancelRequests()
	p.pending = nil
	clear(p.frames)
	clear(p.audioPending)
	p.frame = frame
	p.anchor(p.clock.Now(), frame)
	p.audioPos = p.samplePos(frame)
	p.logger.Debug().Msgf("Seek to %s", p.timeOf(frame))
	p.schedule()
	p.publish()
}

// SetSpeed changes the speed multiplier without seeking
func (p *Player) SetSpeed(speed float64) {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock.Now()
	if p.state != Stop {
		p.advance(now)
	}
	p.speedValue = speed
	p.anchor(now, p.frame)
	p.speed.SetIfChanged(speed)
	p.publish()
}

func (p *Player) SetLoop(loop Loop) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loopMode = loop
	p.loop.SetIfChanged(loop)
}

// SetInOutRange limits playback to rng, clipped to the composition. The
// current frame is moved inside if needed.
func (p *Player) SetInOutRange(rng otime.TimeRange) {
	rng = p.info.Range.ClampRange(rng)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setInOut(rng.Start.RescaledTo(p.rate).Value, rng.End().RescaledTo(p.rate).Value)
}

// setInOut stores the in and out point, mu held
func (p *Player) setInOut(in, out int64) {
	p.in = in
	p.out = max(out, in+1)
	if p.frame < p.in || p.frame >= p.out {
		p.frame = lo.Clamp(p.frame, p.in, p.out-1)
		p.anchor(p.clock.Now(), p.frame)
		p.audioPos = p.samplePos(p.frame)
	}
	p.inOutRange.SetIfChanged(p.inOut())
	p.publish()
}

func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = lo.Clamp(v, 0, 1)
}

func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) SetMute(mute bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mute = mute
}

func (p *Player) Mute() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mute
}

// SetCacheOptions changes the read window around the current frame
func (p *Player) SetCacheOptions(readAhead, readBehind time.Duration) {
	p.mu.Lock()
	p.readAhead, p.readBehind = max(readAhead, 0), max(readBehind, 0)
	p.mu.Unlock()
	p.tl.SetCacheOptions(readAhead, readBehind)
}

// Start seeks to the in point
func (p *Player) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seek(p.in)
}

// End seeks to the last frame before the out point
func (p *Player) End() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seek(p.out - 1)
}

// FramePrev stops and steps one frame back
func (p *Player) FramePrev() {
	p.step(-1)
}

// FrameNext stops and steps one frame forward
func (p *Player) FrameNext() {
	p.step(1)
}

func (p *Player) step(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Stop
	p.seek(p.frame + n)
}

// SetInPoint makes the current frame the in point
func (p *Player) SetInPoint() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setInOut(p.frame, p.out)
}

// SetOutPoint makes the current frame the last one played
func (p *Player) SetOutPoint() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setInOut(p.in, p.frame+1)
}

func (p *Player) ResetInPoint() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setInOut(p.info.Range.Start.RescaledTo(p.rate).Value, p.out)
}

func (p *Player) ResetOutPoint() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setInOut(p.in, p.info.Range.End().RescaledTo(p.rate).Value)
}

// Status is a snapshot for reporting
type Status struct {
	Time      otime.RationalTime `json:"time"`
	Playback  string             `json:"playback"`
	Speed     float64            `json:"speed"`
	Loop      string             `json:"loop"`
	InOut     otime.TimeRange    `json:"inOut"`
	Volume    float64            `json:"volume"`
	Mute      bool               `json:"mute"`
	Cache     CachePercentage    `json:"cache"`
	Pending   int                `json:"pending"`
	Frames    int                `json:"frames"`
	Underruns int                `json:"underruns"`
}

func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Time:      p.timeOf(p.frame),
		Playback:  p.state.String(),
		Speed:     p.speedValue,
		Loop:      p.loopMode.String(),
		InOut:     p.inOut(),
		Volume:    p.volume,
		Mute:      p.mute,
		Cache:     p.cachePercentage.Get(),
		Pending:   len(p.pending),
		Frames:    len(p.frames),
		Underruns: p.underruns,
	}
}
