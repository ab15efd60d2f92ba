package timeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/reader"
	"github.com/jdeisenh/tlplay/pkg/reader/ppm"
	"github.com/jdeisenh/tlplay/pkg/reader/wav"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// FileSequenceAudio selects how audio is found for an image sequence
type FileSequenceAudio int

const (
	AudioNone FileSequenceAudio = iota
	// AudioBaseName looks for <base>.<audio ext> next to the sequence
	AudioBaseName
	// AudioFileName uses FileSequenceAudioFileName
	AudioFileName
	// AudioDirectory uses the first audio file in FileSequenceAudioDirectory
	AudioDirectory
)

var fileSequenceAudioNames = map[FileSequenceAudio]string{
	AudioNone:      "none",
	AudioBaseName:  "basename",
	AudioFileName:  "filename",
	AudioDirectory: "directory",
}

func (f FileSequenceAudio) String() string {
	return fileSequenceAudioNames[f]
}

func ParseFileSequenceAudio(s string) (FileSequenceAudio, error) {
	for k, v := range fileSequenceAudioNames {
		if strings.EqualFold(v, s) {
			return k, nil
		}
	}
	return AudioNone, fmt.Errorf("unknown file sequence audio mode %q", s)
}

type Options struct {
	// Queue depths, the oldest request is cancelled beyond them
	VideoRequestCount int
	AudioRequestCount int
	// RequestTimeout is the worker poll interval
	RequestTimeout time.Duration
	// ReadTimeout substitutes null frames for reads taking longer, zero is 8 frames
	ReadTimeout time.Duration

	FileSequenceAudio          FileSequenceAudio
	FileSequenceAudioFileName  string
	FileSequenceAudioDirectory string
	// SequenceDefaultSpeed is the frame rate of image sequences
	SequenceDefaultSpeed otime.Rate

	// IOOptions are forwarded to the readers
	IOOptions map[string]string
	// Memory holds the bytes of in-memory media references, keyed by target url
	Memory map[string][]byte

	Fs       afero.Fs
	Registry *reader.Registry
	Logger   zerolog.Logger
	// JSONEvents selects structured event logging instead of text lines
	JSONEvents bool
	// StatsInterval throttles the stats line written by Tick
	StatsInterval time.Duration
}

// DefaultRegistry knows the built-in readers
func DefaultRegistry() *reader.Registry {
	return reader.NewRegistry(ppm.Plugin(), wav.Plugin())
}

func DefaultOptions() Options {
	return Options{
		VideoRequestCount:    16,
		AudioRequestCount:    16,
		RequestTimeout:       5 * time.Millisecond,
		FileSequenceAudio:    AudioBaseName,
		SequenceDefaultSpeed: otime.Rate24,
		StatsInterval:        10 * time.Second,
		Logger:               zerolog.Nop(),
	}
}

// withDefaults fills unset fields
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.VideoRequestCount <= 0 {
		o.VideoRequestCount = d.VideoRequestCount
	}
	if o.AudioRequestCount <= 0 {
		o.AudioRequestCount = d.AudioRequestCount
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = d.RequestTimeout
	}
	if !o.SequenceDefaultSpeed.IsValid() {
		o.SequenceDefaultSpeed = d.SequenceDefaultSpeed
	}
	if o.StatsInterval <= 0 {
		o.StatsInterval = d.StatsInterval
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Registry == nil {
		o.Registry = DefaultRegistry()
	}
	return o
}
