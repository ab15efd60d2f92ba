// Package ppm reads binary netpbm images and image sequences.
package ppm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/jdeisenh/tlplay/pkg/future"
	"github.com/jdeisenh/tlplay/pkg/mediapath"
	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/reader"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Plugin handles .ppm and .pgm files and sequences of them
func Plugin() reader.Plugin {
	return reader.Plugin{
		Name:       "ppm",
		Type:       reader.Sequence,
		Extensions: []string{"ppm", "pgm"},
		Open:       Open,
	}
}

type ppmReader struct {
	path   mediapath.Path
	fs     afero.Fs
	mem    *mediapath.MemoryRange
	rate   otime.Rate
	logger zerolog.Logger
	worker *reader.Worker

	infoOnce sync.Once
	info     *future.Future[reader.Info]
	first    int64
	last     int64
}

func Open(p mediapath.Path, opts reader.OpenOptions) (reader.Reader, error) {
	r := &ppmReader{
		path:   p,
		fs:     opts.Fs,
		mem:    opts.Memory,
		rate:   opts.DefaultSpeed,
		logger: opts.Logger.With().Str("reader", "ppm").Str("path", p.Key()).Logger(),
	}
	if p.IsSequence() {
		seq, err := mediapath.FindSequence(opts.Fs, p)
		if err != nil {
			return nil, err
		}
		r.first, r.last = seq.First, seq.Last
	} else if _, err := opts.Fs.Stat(p.String()); err != nil && (opts.Memory == nil || !opts.Memory.InMemory()) {
		return nil, err
	}
	r.worker = reader.NewWorker(256, 1, r.logger)
	return r, nil
}

func (r *ppmReader) fileName(frame int64) string {
	if !r.path.IsSequence() {
		return r.path.String()
	}
	return r.path.Get(frame)
}

func (r *ppmReader) Info() *future.Future[reader.Info] {
	r.infoOnce.Do(func() {
		r.info = reader.Submit(r.worker, func(ctx context.Context) (reader.Info, error) {
			img, err := r.decode(r.first, true)
			if err != nil {
				return reader.Info{}, err
			}
			return reader.Info{
				Video:     []reader.VideoInfo{{Name: r.path.Key(), Width: img.Width, Height: img.Height, Format: img.Format}},
				VideoTime: otime.NewRange(otime.New(r.first, r.rate), otime.New(r.last-r.first+1, r.rate)),
			}, nil
		})
	})
	return r.info
}

// ReadVideo decodes the frame at or preceding t
func (r *ppmReader) ReadVideo(t otime.RationalTime, opts reader.Options) *future.Future[reader.VideoData] {
	frame := t.FloorTo(r.rate).Value
	frame = min(max(frame, r.first), r.last)
	return reader.Submit(r.worker, func(ctx context.Context) (reader.VideoData, error) {
		img, err := r.decode(frame, false)
		if err != nil {
			return reader.VideoData{}, err
		}
		return reader.VideoData{Time: otime.New(frame, r.rate), Layer: opts.Layer, Image: img}, nil
	})
}

func (r *ppmReader) ReadAudio(rng otime.TimeRange, opts reader.Options) *future.Future[reader.AudioData] {
	return future.Failed[reader.AudioData](reader.Decodef("%s: no audio", r.path.Key()))
}

func (r *ppmReader) CancelRequests() {
	r.worker.CancelRequests()
}

func (r *ppmReader) Close() error {
	r.worker.Close()
	return nil
}

func (r *ppmReader) decode(frame int64, headerOnly bool) (*reader.Image, error) {
	var mem *mediapath.MemoryRange
	if !r.path.IsSequence() {
		mem = r.mem
	}
	src, err := mediapath.Open(r.fs, r.fileName(frame), mem)
	if err != nil {
		return nil, reader.DecodeError(err)
	}
	defer src.Close()
	img, err := Decode(src, headerOnly)
	if err != nil {
		return nil, reader.DecodeError(fmt.Errorf("%s: %w", r.fileName(frame), err))
	}
	return img, nil
}

// Decode reads a P5 (gray) or P6 (rgb) image with 8 bit samples
func Decode(in io.Reader, headerOnly bool) (*reader.Image, error) {
	br := bufio.NewReader(in)
	var fields [4]int
	magic, err := token(br)
	if err != nil {
		return nil, err
	}
	var format reader.PixelFormat
	switch magic {
	case "P5":
		format = reader.PixelL8
	case "P6":
		format = reader.PixelRGB8
	default:
		return nil, fmt.Errorf("unsupported magic %q", magic)
	}
	for i := 1; i < 4; i++ {
		tok, err := token(br)
		if err != nil {
			return nil, err
		}
		fields[i], err = strconv.Atoi(tok)
		if err != nil || fields[i] <= 0 {
			return nil, fmt.Errorf("bad header field %q", tok)
		}
	}
	if fields[3] > 255 {
		return nil, fmt.Errorf("unsupported maxval %d", fields[3])
	}
	img := &reader.Image{Width: fields[1], Height: fields[2], Format: format}
	if headerOnly {
		return img, nil
	}
	img.Data = make([]byte, img.Width*img.Height*format.Channels())
	if _, err := io.ReadFull(br, img.Data); err != nil {
		return nil, fmt.Errorf("pixel data: %w", err)
	}
	return img, nil
}

// token returns the next header field, skipping comments, and consumes
// the single whitespace following it
func token(br *bufio.Reader) (string, error) {
	var tok []byte
	for {
		c, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && len(tok) > 0 {
				return string(tok), nil
			}
			return "", fmt.Errorf("header: %w", err)
		}
		switch {
		case c == '#' && len(tok) == 0:
			if _, err := br.ReadString('\n'); err != nil {
				return "", fmt.Errorf("header comment: %w", err)
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, c)
		}
	}
}

// Encode writes img as P5 or P6
func Encode(w io.Writer, img *reader.Image) error {
	magic := "P6"
	switch img.Format {
	case reader.PixelL8:
		magic = "P5"
	case reader.PixelRGB8:
	default:
		return fmt.Errorf("cannot encode %s", img.Format)
	}
	if _, err := fmt.Fprintf(w, "%s\n%d %d\n255\n", magic, img.Width, img.Height); err != nil {
		return err
	}
	_, err := w.Write(img.Data)
	return err
}
