package player

import (
	"fmt"
	"strings"
	"time"

	"github.com/jdeisenh/tlplay/pkg/future"
	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/timeline"
	"github.com/rs/zerolog"
)

type Playback int

const (
	Stop Playback = iota
	Forward
	Reverse
)

func (p Playback) String() string {
	switch p {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	}
	return "stop"
}

// direction is +1, -1 or 0
func (p Playback) direction() int64 {
	switch p {
	case Forward:
		return 1
	case Reverse:
		return -1
	}
	return 0
}

type Loop int

const (
	Once Loop = iota
	Repeat
	PingPong
)

var loopNames = map[Loop]string{
	Once:     "once",
	Repeat:   "loop",
	PingPong: "pingpong",
}

func (l Loop) String() string {
	return loopNames[l]
}

func ParseLoop(s string) (Loop, error) {
	for k, v := range loopNames {
		if strings.EqualFold(v, s) {
			return k, nil
		}
	}
	return Once, fmt.Errorf("unknown loop mode %q", s)
}

// CachePercentage is the fill level of the engine caches, 0 to 100
type CachePercentage struct {
	Video float64 `json:"video"`
	Audio float64 `json:"audio"`
}

// Clock is the wall clock the playback position is derived from
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Timeline is what the player needs from the engine
type Timeline interface {
	Info() (timeline.Info, error)
	GetVideo(at otime.RationalTime, layer int) *future.Future[timeline.VideoData]
	GetAudio(rng otime.TimeRange) *future.Future[timeline.AudioData]
	CancelRequests()
	SetCacheOptions(readAhead, readBehind time.Duration)
	CachePercentage() (video, audio float64)
	Tick()
}

var _ Timeline = (*timeline.Timeline)(nil)

type Options struct {
	ReadAhead  time.Duration
	ReadBehind time.Duration
	// TickInterval is the period of Run
	TickInterval time.Duration
	// RequestCount limits outstanding video requests, keep it at or below
	// the engine queue depth
	RequestCount int
	// Audio format used when the composition has no audio
	AudioSampleRate int
	AudioChannels   int

	Speed  float64
	Loop   Loop
	Volume float64

	Clock  Clock
	Logger zerolog.Logger
}

func DefaultOptions() Options {
	return Options{
		ReadAhead:       4 * time.Second,
		ReadBehind:      400 * time.Millisecond,
		TickInterval:    5 * time.Millisecond,
		RequestCount:    16,
		AudioSampleRate: 48000,
		AudioChannels:   2,
		Speed:           1,
		Loop:            Repeat,
		Volume:          1,
		Logger:          zerolog.Nop(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReadAhead < 0 {
		o.ReadAhead = 0
	}
	if o.ReadBehind < 0 {
		o.ReadBehind = 0
	}
	if o.TickInterval <= 0 {
		o.TickInterval = d.TickInterval
	}
	if o.RequestCount <= 0 {
		o.RequestCount = d.RequestCount
	}
	if o.AudioSampleRate <= 0 {
		o.AudioSampleRate = d.AudioSampleRate
	}
	if o.AudioChannels <= 0 {
		o.AudioChannels = d.AudioChannels
	}
	if o.Speed <= 0 {
		o.Speed = d.Speed
	}
	if o.Clock == nil {
		o.Clock = wallClock{}
	}
	return o
}
