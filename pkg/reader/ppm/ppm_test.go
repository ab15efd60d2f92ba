package ppm

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/jdeisenh/tlplay/pkg/mediapath"
	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/reader"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFrame(t *testing.T, fs afero.Fs, name string, value byte) {
	img := reader.NewImage(4, 2, reader.PixelRGB8)
	for i := range img.Data {
		img.Data[i] = value
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, img))
	require.NoError(t, afero.WriteFile(fs, name, buf.Bytes(), 0644))
}

func TestDecode(t *testing.T) {
	data := []byte("P5\n# comment\n2 2\n255\n\x01\x02\x03\x04")
	img, err := Decode(bytes.NewReader(data), false)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Width)
	assert.Equal(t, reader.PixelL8, img.Format)
	assert.Equal(t, []byte{1, 2, 3, 4}, img.Data)

	var testdata = []string{
		"P3\n1 1\n255\n0 0 0",
		"P6\n1 x\n255\n",
		"P6\n1 1\n65535\n",
		"P6\n2 2\n255\n\x00",
	}
	for _, elem := range testdata {
		_, err := Decode(bytes.NewReader([]byte(elem)), false)
		assert.Error(t, err, elem)
	}
}

func TestSequence(t *testing.T) {
	fs := afero.NewMemMapFs()
	for i := 1; i <= 72; i++ {
		writeFrame(t, fs, fmt.Sprintf("seq/test.%04d.ppm", i), byte(i))
	}
	r, err := Open(mediapath.Parse("seq/test.0001.ppm"), reader.OpenOptions{Fs: fs, DefaultSpeed: otime.Rate24, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer r.Close()

	info, err := r.Info().Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, info.Video[0].Width)
	assert.Equal(t, otime.NewRange(otime.New(1, otime.Rate24), otime.New(72, otime.Rate24)), info.VideoTime)

	var testdata = []struct {
		at     otime.RationalTime
		expect byte
	}{
		{otime.New(1, otime.Rate24), 1},
		{otime.New(72, otime.Rate24), 72},
		{otime.New(21, otime.Rate48), 10},
		{otime.New(0, otime.Rate24), 1},
		{otime.New(500, otime.Rate24), 72},
	}
	for _, elem := range testdata {
		vd, err := r.ReadVideo(elem.at, reader.Options{}).Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, elem.expect, vd.Image.Data[0], "at %s", elem.at)
	}
}

func TestSingleFileAndMemory(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFrame(t, fs, "still.ppm", 9)
	data, err := afero.ReadFile(fs, "still.ppm")
	require.NoError(t, err)

	r, err := Open(mediapath.Parse("mem.ppm"), reader.OpenOptions{
		Fs:           fs,
		DefaultSpeed: otime.Rate24,
		Memory:       &mediapath.MemoryRange{Data: append([]byte("junk"), data...), Offset: 4},
	})
	require.NoError(t, err)
	defer r.Close()
	vd, err := r.ReadVideo(otime.New(3, otime.Rate24), reader.Options{}).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(9), vd.Image.Data[0])
	assert.Equal(t, int64(0), vd.Time.Value)

	_, err = Open(mediapath.Parse("missing.ppm"), reader.OpenOptions{Fs: fs, DefaultSpeed: otime.Rate24})
	assert.Error(t, err)
}
