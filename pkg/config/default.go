package config

import (
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Field is one recognised option
type Field struct {
	Key         string
	Value       any
	Description string
}

// Env is the environment variable overriding the field
func (f Field) Env() string {
	return EnvPrefix + "_" + strings.ToUpper(EnvKeyReplacer.Replace(f.Key))
}

// Default holds every recognised option by key
var Default = make(map[string]Field)

func init() {
	register := func(k string, v any, desc string) {
		if _, exists := Default[k]; exists {
			panic("Duplicate config key: " + k)
		}
		Default[k] = Field{Key: k, Value: v, Description: desc}
	}

	register(TimelineVideoRequestCount, 16, "Video requests queued in the engine, the oldest is cancelled beyond it")
	register(TimelineAudioRequestCount, 16, "Audio requests queued in the engine")
	register(TimelineRequestTimeout, 5*time.Millisecond, "Engine worker poll interval")
	register(TimelineReadTimeout, time.Duration(0), "Reads taking longer give a null frame, 0 is 8 frame durations")
	register(TimelineFileSequenceAudio, "basename", "Audio for image sequences: none, basename, filename, directory")
	register(TimelineFileSequenceAudioFileName, "", "Audio file for the filename mode")
	register(TimelineFileSequenceAudioDirectory, "", "Directory searched in the directory mode")
	register(TimelineSequenceDefaultSpeed, 24.0, "Frame rate of image sequences")
	register(TimelineIO, map[string]string{}, "Options passed to the readers")
	register(TimelineStatsInterval, 10*time.Second, "Interval of the stats log line")

	register(PlayerReadAhead, 4*time.Second, "Decode ahead of the current frame")
	register(PlayerReadBehind, 400*time.Millisecond, "Keep behind the current frame")
	register(PlayerTickInterval, 5*time.Millisecond, "Player update interval")
	register(PlayerRequestCount, 16, "Outstanding video requests of the player")
	register(PlayerAudioSampleRate, 48000, "Output sample rate without audio in the composition")
	register(PlayerAudioChannels, 2, "Output channels without audio in the composition")
	register(PlayerSpeed, 1.0, "Playback speed multiplier")
	register(PlayerLoop, "loop", "Loop mode: once, loop, pingpong")
	register(PlayerVolume, 1.0, "Volume from 0 to 1")

	register(LogLevel, "info", "Log level: trace, debug, info, warn, error")
	register(LogFormat, "text", "Log format: text or json")

	register(HTTPListen, "", "Address of the status and metrics endpoint, empty disables it")
}

// Keys lists the recognised options in order
func Keys() []string {
	keys := lo.Keys(Default)
	slices.Sort(keys)
	return keys
}
