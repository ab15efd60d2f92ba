// Package reader defines the contract of media decoders and keeps them
// open across requests.
package reader

import (
	"errors"
	"fmt"

	"github.com/jdeisenh/tlplay/pkg/future"
	"github.com/jdeisenh/tlplay/pkg/otime"
)

var (
	ErrUnsupported = errors.New("unsupported media")
	ErrClosed      = errors.New("reader closed")
	ErrDecode      = errors.New("decode error")
)

type PixelFormat int

const (
	PixelNone PixelFormat = iota
	PixelL8
	PixelRGB8
	PixelRGBA8
)

func (p PixelFormat) String() string {
	switch p {
	case PixelL8:
		return "L_U8"
	case PixelRGB8:
		return "RGB_U8"
	case PixelRGBA8:
		return "RGBA_U8"
	}
	return "None"
}

// Channels is the number of bytes per pixel
func (p PixelFormat) Channels() int {
	switch p {
	case PixelL8:
		return 1
	case PixelRGB8:
		return 3
	case PixelRGBA8:
		return 4
	}
	return 0
}

type SampleFormat int

const (
	SampleNone SampleFormat = iota
	SampleS16
	SampleS24
	SampleF32
)

func (s SampleFormat) String() string {
	switch s {
	case SampleS16:
		return "S16"
	case SampleS24:
		return "S24"
	case SampleF32:
		return "F32"
	}
	return "None"
}

type VideoInfo struct {
	Name   string      `json:"name"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Format PixelFormat `json:"pixelFormat"`
}

type AudioInfo struct {
	Channels   int          `json:"channels"`
	SampleRate int          `json:"sampleRate"`
	Format     SampleFormat `json:"sampleFormat"`
}

func (a AudioInfo) IsValid() bool {
	return a.Channels > 0 && a.SampleRate > 0
}

// Rate is the sample rate as time base
func (a AudioInfo) Rate() otime.Rate {
	return otime.Rate{Num: int64(a.SampleRate), Den: 1}
}

// Info describes a media file. VideoTime is in frames, AudioTime in samples.
type Info struct {
	Video     []VideoInfo       `json:"video"`
	VideoTime otime.TimeRange   `json:"videoTime"`
	Audio     AudioInfo         `json:"audio"`
	AudioTime otime.TimeRange   `json:"audioTime"`
	Tags      map[string]string `json:"tags,omitempty"`
}

func (i Info) HasVideo() bool { return len(i.Video) > 0 }
func (i Info) HasAudio() bool { return i.Audio.IsValid() }

// Image is a decoded frame with tightly packed rows
type Image struct {
	Width  int
	Height int
	Format PixelFormat
	Data   []byte
}

func NewImage(w, h int, format PixelFormat) *Image {
	return &Image{Width: w, Height: h, Format: format, Data: make([]byte, w*h*format.Channels())}
}

// Audio is interleaved float samples
type Audio struct {
	Channels   int
	SampleRate int
	Samples    []float32
}

func NewAudio(channels, sampleRate, count int) *Audio {
	return &Audio{Channels: channels, SampleRate: sampleRate, Samples: make([]float32, channels*count)}
}

// SampleCount is the number of sample frames
func (a *Audio) SampleCount() int {
	if a == nil || a.Channels == 0 {
		return 0
	}
	return len(a.Samples) / a.Channels
}

type VideoData struct {
	Time  otime.RationalTime
	Layer int
	Image *Image
}

type AudioData struct {
	Time  otime.RationalTime
	Audio *Audio
}

// Options are forwarded from the host untouched, plus the requested layer
type Options struct {
	Layer int
	IO    map[string]string
}

// Reader decodes one media file. Results are delivered through futures; a
// decode failure completes the future with an error wrapping ErrDecode.
// Closing completes all outstanding futures with future.ErrCanceled.
type Reader interface {
	Info() *future.Future[Info]
	ReadVideo(t otime.RationalTime, opts Options) *future.Future[VideoData]
	ReadAudio(r otime.TimeRange, opts Options) *future.Future[AudioData]
	CancelRequests()
	Close() error
}

// Decodef formats a decode failure
func Decodef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}

// DecodeError wraps err as decode failure
func DecodeError(err error) error {
	if err == nil || errors.Is(err, ErrDecode) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDecode, err)
}
