// Package config loads engine and player options from defaults, an
// optional config file and TLPLAY_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/player"
	"github.com/jdeisenh/tlplay/pkg/timeline"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	Name      = "tlplay"
	EnvPrefix = "TLPLAY"
)

var ErrInvalid = errors.New("invalid configuration")

// EnvKeyReplacer maps keys to environment variable names
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// New returns a viper instance with every default registered and the
// environment bound. A tlplay.{toml,yaml,json} found in one of dirs is
// read, a missing file is not an error.
func New(fs afero.Fs, dirs ...string) (*viper.Viper, error) {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigName(Name)
	for _, dir := range dirs {
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.SetTypeByDefaultValue(true)
	for name, field := range Default {
		v.SetDefault(name, field.Value)
		if err := v.BindEnv(name); err != nil {
			return nil, err
		}
	}

	if len(dirs) == 0 {
		return v, nil
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// ReadFile reads an explicitly named config file into v
func ReadFile(v *viper.Viper, file string) error {
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", file, err)
	}
	return nil
}

// Settings are the typed options of one run
type Settings struct {
	Timeline timeline.Options
	Player   player.Options
	Level    zerolog.Level
	JSON     bool
	Listen   string
}

func invalid(key string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, key, fmt.Sprintf(format, args...))
}

// Load converts the values in v into options. Loggers, filesystem and
// clock are left for the caller.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings

	t := timeline.DefaultOptions()
	t.VideoRequestCount = v.GetInt(TimelineVideoRequestCount)
	t.AudioRequestCount = v.GetInt(TimelineAudioRequestCount)
	t.RequestTimeout = v.GetDuration(TimelineRequestTimeout)
	t.ReadTimeout = v.GetDuration(TimelineReadTimeout)
	t.StatsInterval = v.GetDuration(TimelineStatsInterval)
	for _, k := range []string{TimelineVideoRequestCount, TimelineAudioRequestCount} {
		if n := v.GetInt(k); n <= 0 {
			return s, invalid(k, "%d is not positive", n)
		}
	}
	if t.RequestTimeout <= 0 {
		return s, invalid(TimelineRequestTimeout, "%s is not positive", t.RequestTimeout)
	}
	if t.ReadTimeout < 0 {
		return s, invalid(TimelineReadTimeout, "%s is negative", t.ReadTimeout)
	}
	mode, err := timeline.ParseFileSequenceAudio(v.GetString(TimelineFileSequenceAudio))
	if err != nil {
		return s, invalid(TimelineFileSequenceAudio, "%s", err)
	}
	t.FileSequenceAudio = mode
	t.FileSequenceAudioFileName = v.GetString(TimelineFileSequenceAudioFileName)
	t.FileSequenceAudioDirectory = v.GetString(TimelineFileSequenceAudioDirectory)
	speed := otime.RateFromFloat(v.GetFloat64(TimelineSequenceDefaultSpeed))
	if !speed.IsValid() {
		return s, invalid(TimelineSequenceDefaultSpeed, "%v is not a frame rate", v.Get(TimelineSequenceDefaultSpeed))
	}
	t.SequenceDefaultSpeed = speed
	if io := v.GetStringMapString(TimelineIO); len(io) > 0 {
		t.IOOptions = io
	}

	p := player.DefaultOptions()
	p.ReadAhead = v.GetDuration(PlayerReadAhead)
	p.ReadBehind = v.GetDuration(PlayerReadBehind)
	p.TickInterval = v.GetDuration(PlayerTickInterval)
	p.RequestCount = v.GetInt(PlayerRequestCount)
	p.AudioSampleRate = v.GetInt(PlayerAudioSampleRate)
	p.AudioChannels = v.GetInt(PlayerAudioChannels)
	p.Speed = v.GetFloat64(PlayerSpeed)
	p.Volume = v.GetFloat64(PlayerVolume)
	if p.ReadAhead < 0 || p.ReadBehind < 0 {
		return s, invalid(PlayerReadAhead, "read window %s/%s is negative", p.ReadAhead, p.ReadBehind)
	}
	if p.TickInterval <= 0 {
		return s, invalid(PlayerTickInterval, "%s is not positive", p.TickInterval)
	}
	for k, n := range map[string]int{
		PlayerRequestCount:    p.RequestCount,
		PlayerAudioSampleRate: p.AudioSampleRate,
		PlayerAudioChannels:   p.AudioChannels,
	} {
		if n <= 0 {
			return s, invalid(k, "%d is not positive", n)
		}
	}
	if p.Speed <= 0 {
		return s, invalid(PlayerSpeed, "%v is not positive", p.Speed)
	}
	if p.Volume < 0 || p.Volume > 1 {
		return s, invalid(PlayerVolume, "%v is outside 0..1", p.Volume)
	}
	loop, err := player.ParseLoop(v.GetString(PlayerLoop))
	if err != nil {
		return s, invalid(PlayerLoop, "%s", err)
	}
	p.Loop = loop

	level, err := zerolog.ParseLevel(strings.ToLower(v.GetString(LogLevel)))
	if err != nil || level == zerolog.NoLevel {
		return s, invalid(LogLevel, "unknown level %q", v.GetString(LogLevel))
	}
	switch format := strings.ToLower(v.GetString(LogFormat)); format {
	case "text":
	case "json":
		s.JSON = true
		t.JSONEvents = true
	default:
		return s, invalid(LogFormat, "unknown format %q", format)
	}

	s.Timeline = t
	s.Player = p
	s.Level = level
	s.Listen = v.GetString(HTTPListen)
	return s, nil
}
