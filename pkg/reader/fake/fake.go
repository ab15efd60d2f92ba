// Package fake provides a synthetic media plugin for tests and dry runs.
package fake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jdeisenh/tlplay/pkg/future"
	"github.com/jdeisenh/tlplay/pkg/mediapath"
	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/reader"
)

// Extension is handled by the fake plugin
const Extension = "fake"

var ErrOpen = errors.New("fake open failure")

// Media describes one synthetic file
type Media struct {
	Rate       otime.Rate
	Frames     int64
	Width      int
	Height     int
	SampleRate int
	Channels   int
	Samples    int64
	Level      float32
	FailOpen   bool
	FailVideo  func(frame int64) bool
	Delay      time.Duration
}

// Source holds the synthetic files and counts what was read
type Source struct {
	mu     sync.Mutex
	media  map[string]Media
	reads  map[string]map[int64]int
	audio  map[string]int
	opens  map[string]int
	closed map[string]int
}

func NewSource() *Source {
	return &Source{
		media:  make(map[string]Media),
		reads:  make(map[string]map[int64]int),
		audio:  make(map[string]int),
		opens:  make(map[string]int),
		closed: make(map[string]int),
	}
}

// Add registers media under name, e.g. "a.fake"
func (s *Source) Add(name string, m Media) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media[name] = m
}

// Plugin returns the plugin serving this source
func (s *Source) Plugin() reader.Plugin {
	return reader.Plugin{
		Name:       "fake",
		Type:       reader.Movie,
		Extensions: []string{Extension},
		Open: func(p mediapath.Path, opts reader.OpenOptions) (reader.Reader, error) {
			return s.open(p.String(), opts)
		},
	}
}

// VideoReads counts ReadVideo calls of name at frame
func (s *Source) VideoReads(name string, frame int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[name][frame]
}

// TotalVideoReads counts all ReadVideo calls of name
func (s *Source) TotalVideoReads(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.reads[name] {
		n += c
	}
	return n
}

func (s *Source) AudioReads(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio[name]
}

func (s *Source) Opens(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens[name]
}

func (s *Source) Closes(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed[name]
}

func (s *Source) open(name string, opts reader.OpenOptions) (reader.Reader, error) {
	s.mu.Lock()
	m, ok := s.media[name]
	s.opens[name]++
	s.mu.Unlock()
	if !ok || m.FailOpen {
		return nil, ErrOpen
	}
	return &fakeReader{
		name:   name,
		media:  m,
		source: s,
		worker: reader.NewWorker(64, 2, opts.Logger),
	}, nil
}

type fakeReader struct {
	name   string
	media  Media
	source *Source
	worker *reader.Worker
}

func (r *fakeReader) info() reader.Info {
	var info reader.Info
	if r.media.Rate.IsValid() {
		info.Video = []reader.VideoInfo{{Name: r.name, Width: max(r.media.Width, 1), Height: max(r.media.Height, 1), Format: reader.PixelL8}}
		info.VideoTime = otime.NewRange(otime.New(0, r.media.Rate), otime.New(r.media.Frames, r.media.Rate))
	}
	if r.media.SampleRate > 0 {
		info.Audio = reader.AudioInfo{Channels: max(r.media.Channels, 1), SampleRate: r.media.SampleRate, Format: reader.SampleF32}
		rate := info.Audio.Rate()
		info.AudioTime = otime.NewRange(otime.New(0, rate), otime.New(r.media.Samples, rate))
	}
	return info
}

func (r *fakeReader) Info() *future.Future[reader.Info] {
	return future.Resolved(r.info())
}

func (r *fakeReader) wait(ctx context.Context) error {
	if r.media.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(r.media.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadVideo returns an image whose first byte is the frame number
func (r *fakeReader) ReadVideo(t otime.RationalTime, opts reader.Options) *future.Future[reader.VideoData] {
	frame := t.FloorTo(r.media.Rate).Value
	r.source.mu.Lock()
	if r.source.reads[r.name] == nil {
		r.source.reads[r.name] = make(map[int64]int)
	}
	r.source.reads[r.name][frame]++
	r.source.mu.Unlock()
	return reader.Submit(r.worker, func(ctx context.Context) (reader.VideoData, error) {
		if err := r.wait(ctx); err != nil {
			return reader.VideoData{}, err
		}
		if r.media.FailVideo != nil && r.media.FailVideo(frame) {
			return reader.VideoData{}, reader.Decodef("%s frame %d", r.name, frame)
		}
		if frame < 0 || frame >= r.media.Frames {
			return reader.VideoData{}, reader.Decodef("%s frame %d out of range", r.name, frame)
		}
		img := reader.NewImage(max(r.media.Width, 1), max(r.media.Height, 1), reader.PixelL8)
		for i := range img.Data {
			img.Data[i] = byte(frame)
		}
		return reader.VideoData{Time: otime.New(frame, r.media.Rate), Layer: opts.Layer, Image: img}, nil
	})
}

// ReadAudio returns constant Level samples, short at the end of the media
func (r *fakeReader) ReadAudio(rng otime.TimeRange, opts reader.Options) *future.Future[reader.AudioData] {
	r.source.mu.Lock()
	r.source.audio[r.name]++
	r.source.mu.Unlock()
	return reader.Submit(r.worker, func(ctx context.Context) (reader.AudioData, error) {
		if err := r.wait(ctx); err != nil {
			return reader.AudioData{}, err
		}
		info := r.info()
		if !info.HasAudio() {
			return reader.AudioData{}, reader.Decodef("%s has no audio", r.name)
		}
		rate := info.Audio.Rate()
		start := rng.Start.RescaledTo(rate).Value
		end := min(rng.End().RescaledTo(rate).Value, r.media.Samples)
		count := max(end-start, 0)
		audio := reader.NewAudio(info.Audio.Channels, info.Audio.SampleRate, int(count))
		for i := range audio.Samples {
			audio.Samples[i] = r.media.Level
		}
		return reader.AudioData{Time: otime.New(start, rate), Audio: audio}, nil
	})
}

func (r *fakeReader) CancelRequests() {
	r.worker.CancelRequests()
}

func (r *fakeReader) Close() error {
	r.worker.Close()
	r.source.mu.Lock()
	r.source.closed[r.name]++
	r.source.mu.Unlock()
	return nil
}
