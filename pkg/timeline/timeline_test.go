package timeline

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jdeisenh/tlplay/pkg/future"
	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/otio"
	"github.com/jdeisenh/tlplay/pkg/reader"
	"github.com/jdeisenh/tlplay/pkg/reader/fake"
	"github.com/jdeisenh/tlplay/pkg/reader/ppm"
	"github.com/jdeisenh/tlplay/pkg/reader/wav"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 2 * time.Second

func frame(v int64) otime.RationalTime { return otime.New(v, otime.Rate24) }

func testOptions(t *testing.T, src *fake.Source, fs afero.Fs) Options {
	opts := DefaultOptions()
	opts.Registry = reader.NewRegistry(src.Plugin(), ppm.Plugin(), wav.Plugin())
	opts.Fs = fs
	opts.Logger = zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.WarnLevel)
	opts.ReadTimeout = wait
	return opts
}

func open(t *testing.T, path string, opts Options) *Timeline {
	tl := Open(path, opts)
	t.Cleanup(func() { tl.Close() })
	return tl
}

func clip(name, target string, start, dur int64) *otio.Clip {
	return &otio.Clip{
		ClipName:       name,
		SourceRange:    otime.NewRange(frame(start), frame(dur)),
		MediaReference: otio.MediaReference{Kind: otio.ExternalRef, TargetURL: target},
	}
}

func writeComposition(t *testing.T, fs afero.Fs, name string, c *otio.Composition) {
	s, err := c.ToJSONString()
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, name, []byte(s), 0644))
}

func movie() fake.Media {
	return fake.Media{Rate: otime.Rate24, Frames: 24, SampleRate: 48000, Channels: 2, Samples: 48000, Level: 0.25}
}

func TestSingleMovie(t *testing.T) {
	src := fake.NewSource()
	src.Add("a.fake", movie())
	tl := open(t, "a.fake", testOptions(t, src, afero.NewMemMapFs()))

	info, err := tl.Info()
	require.NoError(t, err)
	assert.Equal(t, otime.NewRange(frame(0), frame(24)), info.Range)
	assert.Equal(t, otime.Rate24, info.Rate)
	require.Len(t, info.Video, 1)
	assert.Equal(t, 48000, info.Audio.SampleRate)
	assert.Equal(t, 2, info.Audio.Channels)

	v, err := tl.GetVideo(frame(12), 0).WaitFor(wait)
	require.NoError(t, err)
	require.Len(t, v.Layers, 1)
	require.NotNil(t, v.Layers[0].Image)
	assert.Equal(t, byte(12), v.Layers[0].Image.Data[0])
	assert.True(t, v.HasImage())
	assert.True(t, frame(12).Equal(v.Time))

	// Outside the composition: null image, clamped time
	var testdata = []struct {
		at     otime.RationalTime
		expect otime.RationalTime
	}{
		{frame(30), frame(23)},
		{frame(-5), frame(0)},
	}
	for _, elem := range testdata {
		v, err := tl.GetVideo(elem.at, 0).WaitFor(wait)
		require.NoError(t, err)
		assert.False(t, v.HasImage(), elem.at)
		assert.True(t, elem.expect.Equal(v.Time), "%s: %s", elem.at, v.Time)
	}
}

func TestSharedReads(t *testing.T) {
	src := fake.NewSource()
	m := movie()
	m.Delay = 50 * time.Millisecond
	src.Add("a.fake", m)
	tl := open(t, "a.fake", testOptions(t, src, afero.NewMemMapFs()))
	_, err := tl.Info()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := tl.GetVideo(frame(5), 0).WaitFor(wait)
			assert.NoError(t, err)
			assert.True(t, v.HasImage())
		}()
	}
	wg.Wait()
	// And once more from the cache
	_, err = tl.GetVideo(frame(5), 0).WaitFor(wait)
	require.NoError(t, err)
	assert.Equal(t, 1, src.VideoReads("a.fake", 5))
	assert.Equal(t, uint64(11), tl.Stats().VideoRequests)
}

func dissolve(t *testing.T, fs afero.Fs) {
	a := clip("A", "a.fake", 0, 24)
	a.Effects = []otio.Effect{{Name: "grade", EffectName: "ColorCorrect"}}
	c := &otio.Composition{
		CompositionName: "dissolve",
		Tracks: []*otio.Track{{
			TrackName: "V1",
			Kind:      otio.Video,
			Children: []otio.Composable{
				a,
				&otio.Transition{InOffset: frame(6), OutOffset: frame(6), Type: otio.Dissolve},
				clip("B", "b.fake", 0, 24),
			},
		}},
	}
	writeComposition(t, fs, "/media/dissolve.otio", c)
}

func TestDissolve(t *testing.T) {
	src := fake.NewSource()
	src.Add("/media/a.fake", movie())
	src.Add("/media/b.fake", movie())
	fs := afero.NewMemMapFs()
	dissolve(t, fs)
	tl := open(t, "/media/dissolve.otio", testOptions(t, src, fs))

	info, err := tl.Info()
	require.NoError(t, err)
	assert.Equal(t, otime.NewRange(frame(0), frame(48)), info.Range)

	v, err := tl.GetVideo(frame(24), 0).WaitFor(wait)
	require.NoError(t, err)
	require.Len(t, v.Layers, 1)
	l := v.Layers[0]
	assert.Equal(t, otio.Dissolve, l.Transition)
	assert.InDelta(t, 0.5, l.TransitionValue, 0.001)
	require.NotNil(t, l.Image)
	require.NotNil(t, l.ImageB)
	assert.Equal(t, byte(23), l.Image.Data[0])
	assert.Equal(t, byte(0), l.ImageB.Data[0])
	assert.Len(t, l.Effects, 1)

	v, err = tl.GetVideo(frame(12), 0).WaitFor(wait)
	require.NoError(t, err)
	l = v.Layers[0]
	require.NotNil(t, l.Image)
	assert.Nil(t, l.ImageB)
	assert.Equal(t, byte(12), l.Image.Data[0])
	assert.Zero(t, l.TransitionValue)
}

func TestDecoderFailure(t *testing.T) {
	src := fake.NewSource()
	m := movie()
	m.Frames = 96
	m.FailVideo = func(f int64) bool { return f >= 48 && f < 72 }
	src.Add("a.fake", m)
	tl := open(t, "a.fake", testOptions(t, src, afero.NewMemMapFs()))

	for f := int64(40); f < 80; f += 4 {
		v, err := tl.GetVideo(frame(f), 0).WaitFor(wait)
		require.NoError(t, err, f)
		assert.Equal(t, f < 48 || f >= 72, v.HasImage(), f)
	}
	assert.Equal(t, uint64(6), tl.Stats().DecodeErrors)
}

func TestPoisonedClip(t *testing.T) {
	src := fake.NewSource()
	src.Add("/media/a.fake", movie())
	fs := afero.NewMemMapFs()
	c := &otio.Composition{Tracks: []*otio.Track{{
		Kind:     otio.Video,
		Children: []otio.Composable{clip("A", "a.fake", 0, 24), clip("M", "missing.fake", 0, 24)},
	}}}
	writeComposition(t, fs, "/media/edit.otio", c)
	tl := open(t, "/media/edit.otio", testOptions(t, src, fs))

	for _, f := range []int64{30, 31, 32} {
		v, err := tl.GetVideo(frame(f), 0).WaitFor(wait)
		require.NoError(t, err)
		assert.False(t, v.HasImage())
	}
	v, err := tl.GetVideo(frame(3), 0).WaitFor(wait)
	require.NoError(t, err)
	assert.True(t, v.HasImage())
	assert.Equal(t, 1, src.Opens("/media/missing.fake"))
	assert.Equal(t, 1, tl.Stats().Poisoned)
}

func TestStructuralError(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/media/bad.otio", []byte(`{"OTIO_SCHEMA": "Timeline.1", "tracks": [{"OTIO_SCHEMA": "Track.1", "children": [{"OTIO_SCHEMA": "Bogus.1"}]}]}`), 0644))

	var testdata = []string{"/media/bad.otio", "/media/absent.otio", "/media/absent.fake"}
	for _, elem := range testdata {
		tl := open(t, elem, testOptions(t, fake.NewSource(), fs))
		_, err := tl.Info()
		assert.ErrorIs(t, err, otio.ErrStructural, elem)
		_, err = tl.GetVideo(frame(0), 0).WaitFor(wait)
		assert.ErrorIs(t, err, otio.ErrStructural, elem)
		_, err = tl.GetAudio(otime.NewRange(frame(0), frame(24))).WaitFor(wait)
		assert.ErrorIs(t, err, otio.ErrStructural, elem)
	}
}

func TestQueueFull(t *testing.T) {
	src := fake.NewSource()
	m := movie()
	m.Delay = 200 * time.Millisecond
	src.Add("a.fake", m)
	opts := testOptions(t, src, afero.NewMemMapFs())
	opts.VideoRequestCount = 2
	tl := open(t, "a.fake", opts)
	_, err := tl.Info()
	require.NoError(t, err)

	first := tl.GetVideo(frame(1), 0)
	second := tl.GetVideo(frame(2), 0)
	third := tl.GetVideo(frame(3), 0)

	_, err = first.WaitFor(wait)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.True(t, future.IsCanceled(err))
	for _, f := range []*future.Future[VideoData]{second, third} {
		v, err := f.WaitFor(wait)
		require.NoError(t, err)
		assert.True(t, v.HasImage())
	}
	assert.Equal(t, uint64(1), tl.Stats().Cancelled)
}

func TestCancelRequests(t *testing.T) {
	src := fake.NewSource()
	m := movie()
	m.Delay = 300 * time.Millisecond
	src.Add("a.fake", m)
	tl := open(t, "a.fake", testOptions(t, src, afero.NewMemMapFs()))
	_, err := tl.Info()
	require.NoError(t, err)

	pending := []*future.Future[VideoData]{tl.GetVideo(frame(1), 0), tl.GetVideo(frame(2), 0)}
	audio := tl.GetAudio(otime.NewRange(frame(0), frame(12)))
	time.Sleep(20 * time.Millisecond)
	tl.CancelRequests()
	for _, f := range pending {
		_, err := f.WaitFor(wait)
		assert.True(t, future.IsCanceled(err))
	}
	_, err = audio.WaitFor(wait)
	assert.True(t, future.IsCanceled(err))

	// The abandoned read is issued again
	v, err := tl.GetVideo(frame(1), 0).WaitFor(wait)
	require.NoError(t, err)
	assert.True(t, v.HasImage())
}

func TestAudioMix(t *testing.T) {
	src := fake.NewSource()
	loud := movie()
	loud.Level = 0.75
	src.Add("/media/a.fake", movie())
	src.Add("/media/b.fake", movie())
	src.Add("/media/loud.fake", loud)
	fs := afero.NewMemMapFs()
	audioClip := func(target string, start, dur int64) *otio.Clip {
		return &otio.Clip{
			SourceRange:    otime.NewRange(otime.New(start, otime.Rate{Num: 48000, Den: 1}), otime.New(dur, otime.Rate{Num: 48000, Den: 1})),
			MediaReference: otio.MediaReference{Kind: otio.ExternalRef, TargetURL: target},
		}
	}
	c := &otio.Composition{Tracks: []*otio.Track{
		{Kind: otio.Video, Children: []otio.Composable{clip("V", "a.fake", 0, 24)}},
		{Kind: otio.Audio, Children: []otio.Composable{audioClip("a.fake", 0, 48000)}},
		{Kind: otio.Audio, Children: []otio.Composable{
			otio.NewGap(otime.New(24000, otime.Rate{Num: 48000, Den: 1})),
			audioClip("b.fake", 0, 24000),
		}},
		{Kind: otio.Audio, Children: []otio.Composable{audioClip("loud.fake", 0, 12000)}},
	}}
	writeComposition(t, fs, "/media/mix.otio", c)
	tl := open(t, "/media/mix.otio", testOptions(t, src, fs))

	a, err := tl.GetAudio(otime.NewRange(frame(0), frame(24))).WaitFor(wait)
	require.NoError(t, err)
	require.NotNil(t, a.Audio)
	assert.Equal(t, 48000, a.Audio.SampleCount())
	assert.Equal(t, 2, a.Audio.Channels)

	var testdata = []struct {
		sample int
		expect float32
	}{
		{0, 1},        // 0.25 + 0.75 clamped
		{11999, 1},    // last loud sample
		{12000, 0.25}, // a only
		{24000, 0.5},  // a and b
		{47999, 0.5},  // last sample
	}
	for _, elem := range testdata {
		assert.InDelta(t, elem.expect, a.Audio.Samples[elem.sample*2], 0.0001, elem.sample)
		assert.InDelta(t, elem.expect, a.Audio.Samples[elem.sample*2+1], 0.0001, elem.sample)
	}

	// Longer requests are cut to one second
	a, err = tl.GetAudio(otime.NewRange(frame(0), frame(72))).WaitFor(wait)
	require.NoError(t, err)
	assert.Equal(t, 48000, a.Audio.SampleCount())
	assert.Equal(t, 1, src.AudioReads("/media/a.fake"))
}

func writeSequence(t *testing.T, fs afero.Fs, frames int, seconds int, audioPath string) {
	for i := 1; i <= frames; i++ {
		img := reader.NewImage(4, 2, reader.PixelRGB8)
		for j := range img.Data {
			img.Data[j] = byte(i)
		}
		var buf bytes.Buffer
		require.NoError(t, ppm.Encode(&buf, img))
		require.NoError(t, afero.WriteFile(fs, fmt.Sprintf("/seq/test.%04d.ppm", i), buf.Bytes(), 0644))
	}
	audio := reader.NewAudio(1, 8000, 8000*seconds)
	for i := range audio.Samples {
		audio.Samples[i] = 0.5
	}
	var buf bytes.Buffer
	require.NoError(t, wav.EncodePCM16(&buf, audio))
	require.NoError(t, afero.WriteFile(fs, audioPath, buf.Bytes(), 0644))
}

func TestImageSequenceWithAudio(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSequence(t, fs, 72, 3, "/seq/test.wav")
	tl := open(t, "/seq/test.0001.ppm", testOptions(t, fake.NewSource(), fs))

	info, err := tl.Info()
	require.NoError(t, err)
	assert.Equal(t, otime.NewRange(frame(1), frame(72)), info.Range)
	assert.Equal(t, 8000, info.Audio.SampleRate)
	assert.Equal(t, 1, info.Audio.Channels)

	for f := int64(1); f <= 72; f++ {
		v, err := tl.GetVideo(frame(f), 0).WaitFor(wait)
		require.NoError(t, err)
		require.True(t, v.HasImage(), f)
		assert.Equal(t, byte(f), v.Layers[0].Image.Data[0])
	}

	total := 0
	for s := int64(0); s < 3; s++ {
		start := frame(1).Add(otime.New(s, otime.Rate{Num: 1, Den: 1}))
		a, err := tl.GetAudio(otime.NewRange(start, otime.New(1, otime.Rate{Num: 1, Den: 1}))).WaitFor(wait)
		require.NoError(t, err)
		total += a.Audio.SampleCount()
		assert.InDelta(t, 0.5, a.Audio.Samples[4000], 0.001)
	}
	assert.InDelta(t, 3*8000, total, 1)
}

func TestSequenceAudioModes(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSequence(t, fs, 24, 1, "/seq/sound/track.wav")

	var testdata = []struct {
		mode     FileSequenceAudio
		fileName string
		hasAudio bool
	}{
		{AudioNone, "", false},
		{AudioBaseName, "", false},
		{AudioFileName, "sound/track.wav", true},
		{AudioDirectory, "", true},
	}
	for _, elem := range testdata {
		opts := testOptions(t, fake.NewSource(), fs)
		opts.FileSequenceAudio = elem.mode
		opts.FileSequenceAudioFileName = elem.fileName
		opts.FileSequenceAudioDirectory = "sound"
		tl := open(t, "/seq/test.0001.ppm", opts)
		info, err := tl.Info()
		require.NoError(t, err)
		assert.Equal(t, elem.hasAudio, info.Audio.IsValid(), elem.mode.String())
	}
}

func TestCacheOptions(t *testing.T) {
	src := fake.NewSource()
	src.Add("a.fake", movie())
	tl := open(t, "a.fake", testOptions(t, src, afero.NewMemMapFs()))
	tl.SetCacheOptions(time.Second, 0)
	video, audio := tl.CachePercentage()
	assert.Zero(t, video)
	assert.Zero(t, audio)

	for f := int64(0); f < 10; f++ {
		_, err := tl.GetVideo(frame(f), 0).WaitFor(wait)
		require.NoError(t, err)
	}
	// The settled reads reach the cache on the next pass
	require.Eventually(t, func() bool {
		video, _ := tl.CachePercentage()
		return video > 0
	}, wait, 5*time.Millisecond)
	assert.Equal(t, Duration(time.Second), tl.Stats().CacheWindow)
}

func TestCacheEvictions(t *testing.T) {
	var testdata = []struct {
		readAhead time.Duration
		frames    int64
		evicted   uint64
	}{
		// One frame window keeps two entries
		{0, 10, 8},
		{time.Second, 10, 0},
	}
	for _, elem := range testdata {
		src := fake.NewSource()
		src.Add("a.fake", movie())
		tl := open(t, "a.fake", testOptions(t, src, afero.NewMemMapFs()))
		tl.SetCacheOptions(elem.readAhead, 0)
		for f := int64(0); f < elem.frames; f++ {
			_, err := tl.GetVideo(frame(f), 0).WaitFor(wait)
			require.NoError(t, err)
		}
		// Settled reads reach the cache on a later pass
		assert.Eventually(t, func() bool {
			return tl.videoCache.Size() == int(elem.frames-int64(elem.evicted)) &&
				tl.Stats().Evicted == elem.evicted
		}, wait, 5*time.Millisecond, elem.readAhead)
		require.NoError(t, tl.Close())
	}
}

func TestClose(t *testing.T) {
	src := fake.NewSource()
	src.Add("a.fake", movie())
	tl := Open("a.fake", testOptions(t, src, afero.NewMemMapFs()))
	_, err := tl.GetVideo(frame(0), 0).WaitFor(wait)
	require.NoError(t, err)
	require.NoError(t, tl.Close())
	require.NoError(t, tl.Close())

	_, err = tl.GetVideo(frame(0), 0).WaitFor(wait)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, src.Opens("a.fake"), src.Closes("a.fake"))
}

func TestCloseWhileLoading(t *testing.T) {
	var testdata = []string{"a.fake", "/media/missing.otio"}
	for _, path := range testdata {
		src := fake.NewSource()
		src.Add("a.fake", movie())
		tl := Open(path, testOptions(t, src, afero.NewMemMapFs()))
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					_, err := tl.GetVideo(frame(int64(j%24)), 0).WaitFor(wait)
					if err != nil {
						assert.True(t, errors.Is(err, ErrClosed) || errors.Is(err, otio.ErrStructural) ||
							future.IsCanceled(err), "%s: %s", path, err)
					}
				}
			}()
		}
		require.NoError(t, tl.Close())
		wg.Wait()
		_, err := tl.GetVideo(frame(0), 0).WaitFor(wait)
		assert.Error(t, err, path)
	}
}

func TestParseFileSequenceAudio(t *testing.T) {
	for _, mode := range []FileSequenceAudio{AudioNone, AudioBaseName, AudioFileName, AudioDirectory} {
		parsed, err := ParseFileSequenceAudio(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}
	_, err := ParseFileSequenceAudio("sidecar")
	assert.Error(t, err)
}
