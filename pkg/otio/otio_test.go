package otio

import (
	"testing"

	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rt(v int64) otime.RationalTime { return otime.New(v, otime.Rate24) }

func rng(start, dur int64) otime.TimeRange { return otime.NewRange(rt(start), rt(dur)) }

const dissolveDoc = `{
  "OTIO_SCHEMA": "Timeline.1",
  "name": "dissolve",
  "global_start_time": null,
  "tracks": {
    "OTIO_SCHEMA": "Stack.1",
    "children": [
      {
        "OTIO_SCHEMA": "Track.1",
        "name": "V1",
        "kind": "Video",
        "children": [
          {
            "OTIO_SCHEMA": "Clip.1",
            "name": "A",
            "source_range": {"OTIO_SCHEMA": "TimeRange.1",
              "start_time": {"OTIO_SCHEMA": "RationalTime.1", "rate": 24, "value": 0},
              "duration": {"OTIO_SCHEMA": "RationalTime.1", "rate": 24, "value": 24}},
            "media_reference": {"OTIO_SCHEMA": "ExternalReference.1", "target_url": "a.ppm"},
            "effects": [{"OTIO_SCHEMA": "Effect.1", "name": "grade", "effect_name": "ColorCorrect"}]
          },
          {
            "OTIO_SCHEMA": "Transition.1",
            "name": "dissolve",
            "in_offset": {"OTIO_SCHEMA": "RationalTime.1", "rate": 24, "value": 6},
            "out_offset": {"OTIO_SCHEMA": "RationalTime.1", "rate": 24, "value": 6},
            "transition_type": "SMPTE_Dissolve"
          },
          {
            "OTIO_SCHEMA": "Clip.2",
            "name": "B",
            "source_range": {"OTIO_SCHEMA": "TimeRange.1",
              "start_time": {"OTIO_SCHEMA": "RationalTime.1", "rate": 24, "value": 100},
              "duration": {"OTIO_SCHEMA": "RationalTime.1", "rate": 24, "value": 24}},
            "media_references": {"DEFAULT_MEDIA": {
              "OTIO_SCHEMA": "ImageSequenceReference.1",
              "target_url_base": "seq/",
              "name_prefix": "b.",
              "name_suffix": ".ppm",
              "start_frame": 1,
              "frame_step": 1,
              "rate": 24,
              "frame_zero_padding": 4}},
            "active_media_reference_key": "DEFAULT_MEDIA"
          },
          {
            "OTIO_SCHEMA": "Gap.1",
            "source_range": {"OTIO_SCHEMA": "TimeRange.1",
              "start_time": {"OTIO_SCHEMA": "RationalTime.1", "rate": 24, "value": 0},
              "duration": {"OTIO_SCHEMA": "RationalTime.1", "rate": 24, "value": 12}}
          }
        ]
      },
      {
        "OTIO_SCHEMA": "Track.1",
        "name": "A1",
        "kind": "Audio",
        "children": [
          {
            "OTIO_SCHEMA": "Clip.1",
            "name": "music",
            "source_range": {"OTIO_SCHEMA": "TimeRange.1",
              "start_time": {"OTIO_SCHEMA": "RationalTime.1", "rate": 24, "value": 0},
              "duration": {"OTIO_SCHEMA": "RationalTime.1", "rate": 24, "value": 48}},
            "media_reference": {"OTIO_SCHEMA": "ExternalReference.1", "target_url": "file://music.wav"}
          }
        ]
      }
    ]
  }
}`

func decodeDissolve(t *testing.T) *Composition {
	c, err := Decode([]byte(dissolveDoc))
	require.NoError(t, err)
	return c
}

func TestDecode(t *testing.T) {
	c := decodeDissolve(t)
	require.Len(t, c.Tracks, 2)
	assert.Equal(t, []int{0}, c.TracksOf(Video))
	assert.Equal(t, []int{1}, c.TracksOf(Audio))
	assert.Equal(t, rt(60), c.Duration())
	assert.Equal(t, rng(0, 60), c.Range())

	a := c.Tracks[0].Children[0].(*Clip)
	assert.Equal(t, "ColorCorrect", a.Effects[0].EffectName)
	assert.Equal(t, "dir/a.ppm", a.MediaReference.Path("dir").String())

	b := c.Tracks[0].Children[2].(*Clip)
	assert.Equal(t, ImageSequenceRef, b.MediaReference.Kind)
	assert.Equal(t, "dir/seq/b.0001.ppm", b.MediaReference.Path("dir").String())

	music := c.Tracks[1].Children[0].(*Clip)
	assert.Equal(t, "music.wav", music.MediaReference.Path("").String())
}

func TestDecodeStructuralErrors(t *testing.T) {
	var testdata = []string{
		`not json`,
		`{"OTIO_SCHEMA": "Timeline.1"}`,
		`{"tracks": [{"kind": "Subtitle", "children": []}]}`,
		`{"tracks": [{"kind": "Video", "children": [{"OTIO_SCHEMA": "Marker.1"}]}]}`,
		`{"tracks": [{"kind": "Video", "children": [{"OTIO_SCHEMA": "Clip.1", "name": "x"}]}]}`,
		`{"tracks": [{"kind": "Video", "children": [{"OTIO_SCHEMA": "Transition.1",
			"in_offset": {"rate": 24, "value": 1}, "out_offset": {"rate": 24, "value": 1}}]}]}`,
		`{"tracks": {"OTIO_SCHEMA": "Track.1", "children": []}}`,
	}
	for _, doc := range testdata {
		_, err := Decode([]byte(doc))
		assert.ErrorIs(t, err, ErrStructural, doc)
	}
}

func TestTrimmedRangeOfChild(t *testing.T) {
	track := decodeDissolve(t).Tracks[0]
	var testdata = []struct {
		index  int
		expect otime.TimeRange
	}{
		{0, rng(0, 24)},
		{1, rng(18, 12)},
		{2, rng(24, 24)},
		{3, rng(48, 12)},
	}
	for _, elem := range testdata {
		got, err := track.TrimmedRangeOfChild(elem.index)
		require.NoError(t, err)
		assert.Equal(t, elem.expect, got, "child %d", elem.index)
	}
	_, err := track.TrimmedRangeOfChild(4)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestClipAt(t *testing.T) {
	track := decodeDissolve(t).Tracks[0]
	var testdata = []struct {
		at    int64
		index int
		ok    bool
	}{
		{0, 0, true},
		{23, 0, true},
		{24, 2, true},
		{47, 2, true},
		{48, -1, false},
		{70, -1, false},
		{-1, -1, false},
	}
	for _, elem := range testdata {
		idx, _, ok := track.ClipAt(rt(elem.at))
		assert.Equal(t, elem.ok, ok, "at %d", elem.at)
		assert.Equal(t, elem.index, idx, "at %d", elem.at)
	}
}

func TestNeighborTransitions(t *testing.T) {
	track := decodeDissolve(t).Tracks[0]
	in, out := track.NeighborTransitions(0)
	assert.True(t, in.IsAbsent())
	assert.Equal(t, "dissolve", out.MustGet().Name())

	in, out = track.NeighborTransitions(2)
	assert.True(t, in.IsPresent())
	assert.True(t, out.IsAbsent())
}

func TestActiveAtDissolve(t *testing.T) {
	c := decodeDissolve(t)

	at := c.ActiveAt(0, rt(24))
	blend, ok := at.Blend.Get()
	require.True(t, ok)
	assert.InDelta(t, 0.5, blend.Value, 1e-9)
	assert.Equal(t, "A", blend.From.MustGet().Clip.Name())
	assert.Equal(t, rt(23), blend.From.MustGet().Media)
	assert.Equal(t, "B", blend.To.MustGet().Clip.Name())
	assert.Equal(t, rt(100), blend.To.MustGet().Media)

	at = c.ActiveAt(0, rt(12))
	assert.True(t, at.Blend.IsAbsent())
	assert.Equal(t, rt(12), at.Sample.MustGet().Media)

	at = c.ActiveAt(0, rt(18))
	assert.InDelta(t, 0.0, at.Blend.MustGet().Value, 1e-9)

	at = c.ActiveAt(0, rt(50))
	assert.True(t, at.Sample.IsAbsent())
	assert.True(t, at.Blend.IsAbsent())
}

func TestRoundTrip(t *testing.T) {
	c := decodeDissolve(t)
	s1, err := c.ToJSONString()
	require.NoError(t, err)
	again, err := Decode([]byte(s1))
	require.NoError(t, err)
	s2, err := again.ToJSONString()
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestSlicePartitions(t *testing.T) {
	c := decodeDissolve(t)
	for _, cut := range []int64{1, 5, 12, 23} {
		out, err := Slice(c, ItemRef{Track: 1, Index: 0}, rt(cut))
		require.NoError(t, err)
		track := out.Tracks[1]
		require.Len(t, track.Children, 2)
		head := track.Children[0].(*Clip)
		tail := track.Children[1].(*Clip)
		assert.Equal(t, rt(48), head.Duration().Add(tail.Duration()))
		assert.Equal(t, head.SourceRange.End(), tail.SourceRange.Start)
		assert.Equal(t, rt(0), head.SourceRange.Start)
		assert.Equal(t, rt(48), tail.SourceRange.End())
		assert.Equal(t, head.MediaReference, tail.MediaReference)
	}

	// the source of c is unchanged
	assert.Len(t, c.Tracks[1].Children, 1)

	_, err := Slice(c, ItemRef{Track: 1, Index: 0}, rt(0))
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = Slice(c, ItemRef{Track: 1, Index: 0}, rt(48))
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = Slice(c, ItemRef{Track: 0, Index: 1}, rt(24))
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestRemovePreservesDuration(t *testing.T) {
	c := decodeDissolve(t)
	before := c.Tracks[0].Duration()
	for i := range c.Tracks[0].Children {
		out, err := Remove(c, ItemRef{Track: 0, Index: i}, true)
		if err != nil {
			// removing a clip framing the transition leaves it without neighbor room
			assert.ErrorIs(t, err, ErrStructural)
			continue
		}
		assert.Equal(t, before, out.Tracks[0].Duration(), "remove %d", i)
	}

	out, err := Remove(c, ItemRef{Track: 0, Index: 3}, true)
	require.NoError(t, err)
	gap, ok := out.Tracks[0].Children[3].(*Gap)
	require.True(t, ok)
	assert.Equal(t, rt(12), gap.Duration())

	_, err = Remove(c, ItemRef{Track: 5, Index: 0}, true)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestInsertThenRemove(t *testing.T) {
	c := decodeDissolve(t)
	orig, err := c.ToJSONString()
	require.NoError(t, err)

	clip := &Clip{
		ClipName:       "inserted",
		SourceRange:    rng(0, 10),
		MediaReference: MediaReference{Kind: ExternalRef, TargetURL: "x.ppm"},
	}
	for _, index := range []int{0, 1} {
		ins, err := Insert(c, clip, 1, index)
		require.NoError(t, err)
		assert.Len(t, ins.Tracks[1].Children, 2)
		back, err := Remove(ins, ItemRef{Track: 1, Index: index}, false)
		require.NoError(t, err)
		got, err := back.ToJSONString()
		require.NoError(t, err)
		assert.Equal(t, orig, got)
	}

	_, err = Insert(c, clip, 1, 3)
	assert.ErrorIs(t, err, ErrOutOfRange)
}
