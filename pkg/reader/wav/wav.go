// Package wav reads RIFF/WAVE files with integer PCM or float samples.
package wav

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/jdeisenh/tlplay/pkg/future"
	"github.com/jdeisenh/tlplay/pkg/mediapath"
	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/reader"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const (
	formatPCM        = 1
	formatFloat      = 3
	formatExtensible = 0xFFFE
)

func Plugin() reader.Plugin {
	return reader.Plugin{
		Name:       "wav",
		Type:       reader.AudioFile,
		Extensions: []string{"wav", "wave"},
		Open:       Open,
	}
}

// Header is the parsed layout of a wave file
type Header struct {
	Channels   int
	SampleRate int
	Bits       int
	Format     reader.SampleFormat
	DataOffset int64
	DataSize   int64
}

func (h Header) BlockAlign() int {
	return h.Channels * h.Bits / 8
}

// Samples is the number of sample frames in the data chunk
func (h Header) Samples() int64 {
	if h.BlockAlign() == 0 {
		return 0
	}
	return h.DataSize / int64(h.BlockAlign())
}

type wavReader struct {
	path   mediapath.Path
	fs     afero.Fs
	mem    *mediapath.MemoryRange
	logger zerolog.Logger
	worker *reader.Worker

	mu     sync.Mutex
	header *Header
}

func Open(p mediapath.Path, opts reader.OpenOptions) (reader.Reader, error) {
	r := &wavReader{
		path:   p,
		fs:     opts.Fs,
		mem:    opts.Memory,
		logger: opts.Logger.With().Str("reader", "wav").Str("path", p.String()).Logger(),
	}
	if _, err := r.readHeader(); err != nil {
		return nil, err
	}
	r.worker = reader.NewWorker(256, 1, r.logger)
	return r, nil
}

func (r *wavReader) readHeader() (Header, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.header != nil {
		return *r.header, nil
	}
	src, err := mediapath.Open(r.fs, r.path.String(), r.mem)
	if err != nil {
		return Header{}, err
	}
	defer src.Close()
	h, err := ParseHeader(src)
	if err != nil {
		return Header{}, fmt.Errorf("%s: %w", r.path.String(), err)
	}
	r.header = &h
	return h, nil
}

func (r *wavReader) Info() *future.Future[reader.Info] {
	h, err := r.readHeader()
	if err != nil {
		return future.Failed[reader.Info](err)
	}
	audio := reader.AudioInfo{Channels: h.Channels, SampleRate: h.SampleRate, Format: h.Format}
	rate := audio.Rate()
	return future.Resolved(reader.Info{
		Audio:     audio,
		AudioTime: otime.NewRange(otime.New(0, rate), otime.New(h.Samples(), rate)),
	})
}

func (r *wavReader) ReadVideo(t otime.RationalTime, opts reader.Options) *future.Future[reader.VideoData] {
	return future.Failed[reader.VideoData](reader.Decodef("%s: no video", r.path.String()))
}

// ReadAudio returns the samples of rng, short at the end of the file
func (r *wavReader) ReadAudio(rng otime.TimeRange, opts reader.Options) *future.Future[reader.AudioData] {
	return reader.Submit(r.worker, func(ctx context.Context) (reader.AudioData, error) {
		h, err := r.readHeader()
		if err != nil {
			return reader.AudioData{}, reader.DecodeError(err)
		}
		rate := otime.Rate{Num: int64(h.SampleRate), Den: 1}
		start := max(rng.Start.RescaledTo(rate).Value, 0)
		end := min(rng.End().RescaledTo(rate).Value, h.Samples())
		count := max(end-start, 0)
		audio := reader.NewAudio(h.Channels, h.SampleRate, int(count))
		if count == 0 {
			return reader.AudioData{Time: otime.New(start, rate), Audio: audio}, nil
		}
		src, err := mediapath.Open(r.fs, r.path.String(), r.mem)
		if err != nil {
			return reader.AudioData{}, reader.DecodeError(err)
		}
		defer src.Close()
		buf := make([]byte, count*int64(h.BlockAlign()))
		if _, err := src.ReadAt(buf, h.DataOffset+start*int64(h.BlockAlign())); err != nil && err != io.EOF {
			return reader.AudioData{}, reader.DecodeError(err)
		}
		convert(audio.Samples, buf, h)
		return reader.AudioData{Time: otime.New(start, rate), Audio: audio}, nil
	})
}

func (r *wavReader) CancelRequests() {
	r.worker.CancelRequests()
}

func (r *wavReader) Close() error {
	r.worker.Close()
	return nil
}

func convert(dst []float32, buf []byte, h Header) {
	switch h.Format {
	case reader.SampleS16:
		for i := range dst {
			dst[i] = float32(int16(binary.LittleEndian.Uint16(buf[2*i:]))) / 32768
		}
	case reader.SampleS24:
		for i := range dst {
			b := buf[3*i:]
			v := int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
			dst[i] = float32(v) / 8388608
		}
	case reader.SampleF32:
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		}
	}
}

// ParseHeader walks the RIFF chunks up to the data chunk
func ParseHeader(in io.ReadSeeker) (Header, error) {
	var riff [12]byte
	if _, err := io.ReadFull(in, riff[:]); err != nil {
		return Header{}, fmt.Errorf("riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Header{}, fmt.Errorf("not a wave file")
	}
	var h Header
	var haveFmt bool
	pos := int64(12)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(in, chunk[:]); err != nil {
			return Header{}, fmt.Errorf("no data chunk: %w", err)
		}
		pos += 8
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		switch id {
		case "fmt ":
			if size < 16 {
				return Header{}, fmt.Errorf("fmt chunk of %d bytes", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(in, body); err != nil {
				return Header{}, fmt.Errorf("fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			h.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			h.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			h.Bits = int(binary.LittleEndian.Uint16(body[14:16]))
			if format == formatExtensible && size >= 26 {
				format = binary.LittleEndian.Uint16(body[24:26])
			}
			switch {
			case format == formatPCM && h.Bits == 16:
				h.Format = reader.SampleS16
			case format == formatPCM && h.Bits == 24:
				h.Format = reader.SampleS24
			case format == formatFloat && h.Bits == 32:
				h.Format = reader.SampleF32
			default:
				return Header{}, fmt.Errorf("unsupported format %d with %d bits", format, h.Bits)
			}
			if h.Channels <= 0 || h.SampleRate <= 0 {
				return Header{}, fmt.Errorf("bad fmt chunk")
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Header{}, fmt.Errorf("data before fmt")
			}
			h.DataOffset = pos
			h.DataSize = size
			return h, nil
		default:
			if _, err := in.Seek(size, io.SeekCurrent); err != nil {
				return Header{}, err
			}
		}
		pos += size
		if size%2 == 1 {
			if _, err := in.Seek(1, io.SeekCurrent); err != nil {
				return Header{}, err
			}
			pos++
		}
	}
}

// EncodePCM16 writes audio as 16 bit wave
func EncodePCM16(w io.Writer, a *reader.Audio) error {
	dataSize := uint32(len(a.Samples) * 2)
	hdr := make([]byte, 44)
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+dataSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], formatPCM)
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(a.Channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(a.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(a.SampleRate*a.Channels*2))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(a.Channels*2))
	binary.LittleEndian.PutUint16(hdr[34:36], 16)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	body := make([]byte, dataSize)
	for i, s := range a.Samples {
		v := max(min(s, 1), -1)
		binary.LittleEndian.PutUint16(body[2*i:], uint16(int16(math.Round(float64(v)*32767))))
	}
	_, err := w.Write(body)
	return err
}
