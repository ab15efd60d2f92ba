package config

import (
	"testing"
	"time"

	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/player"
	"github.com/jdeisenh/tlplay/pkg/timeline"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v, err := New(afero.NewMemMapFs(), "/etc/tlplay")
	require.NoError(t, err)
	s, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 16, s.Timeline.VideoRequestCount)
	assert.Equal(t, 16, s.Timeline.AudioRequestCount)
	assert.Equal(t, 5*time.Millisecond, s.Timeline.RequestTimeout)
	assert.Equal(t, time.Duration(0), s.Timeline.ReadTimeout)
	assert.Equal(t, timeline.AudioBaseName, s.Timeline.FileSequenceAudio)
	assert.Equal(t, otime.Rate24, s.Timeline.SequenceDefaultSpeed)
	assert.Equal(t, 4*time.Second, s.Player.ReadAhead)
	assert.Equal(t, 400*time.Millisecond, s.Player.ReadBehind)
	assert.Equal(t, player.Repeat, s.Player.Loop)
	assert.Equal(t, 1.0, s.Player.Speed)
	assert.Equal(t, zerolog.InfoLevel, s.Level)
	assert.False(t, s.JSON)
	assert.Empty(t, s.Listen)
}

func TestConfigFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/tlplay/tlplay.toml", []byte(`
[timeline]
video_request_count = 4
file_sequence_audio = "directory"
file_sequence_audio_directory = "/audio"
sequence_default_speed = 23.976

[timeline.io]
threads = "2"

[player]
read_ahead = "2s"
loop = "pingpong"
volume = 0.5

[log]
level = "debug"
format = "json"
`), 0644))
	v, err := New(fs, "/etc/tlplay")
	require.NoError(t, err)
	s, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 4, s.Timeline.VideoRequestCount)
	assert.Equal(t, timeline.AudioDirectory, s.Timeline.FileSequenceAudio)
	assert.Equal(t, "/audio", s.Timeline.FileSequenceAudioDirectory)
	assert.Equal(t, otime.Rate23_976, s.Timeline.SequenceDefaultSpeed)
	assert.Equal(t, map[string]string{"threads": "2"}, s.Timeline.IOOptions)
	assert.Equal(t, 2*time.Second, s.Player.ReadAhead)
	assert.Equal(t, player.PingPong, s.Player.Loop)
	assert.Equal(t, 0.5, s.Player.Volume)
	assert.Equal(t, zerolog.DebugLevel, s.Level)
	assert.True(t, s.JSON)
	assert.True(t, s.Timeline.JSONEvents)
}

func TestReadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tmp/run.yaml", []byte("player:\n  speed: 2\n"), 0644))
	v, err := New(fs)
	require.NoError(t, err)
	require.NoError(t, ReadFile(v, "/tmp/run.yaml"))
	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 2.0, s.Player.Speed)

	assert.Error(t, ReadFile(v, "/tmp/missing.yaml"))
}

func TestEnvironment(t *testing.T) {
	t.Setenv("TLPLAY_PLAYER_LOOP", "once")
	t.Setenv("TLPLAY_TIMELINE_READ_TIMEOUT", "250ms")
	t.Setenv("TLPLAY_HTTP_LISTEN", ":9090")
	v, err := New(afero.NewMemMapFs())
	require.NoError(t, err)
	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, player.Once, s.Player.Loop)
	assert.Equal(t, 250*time.Millisecond, s.Timeline.ReadTimeout)
	assert.Equal(t, ":9090", s.Listen)
}

func TestInvalid(t *testing.T) {
	var testdata = []struct {
		key   string
		value any
	}{
		{TimelineVideoRequestCount, 0},
		{TimelineRequestTimeout, "-1s"},
		{TimelineFileSequenceAudio, "nearby"},
		{TimelineSequenceDefaultSpeed, -24},
		{PlayerTickInterval, "0s"},
		{PlayerAudioChannels, 0},
		{PlayerSpeed, 0},
		{PlayerVolume, 1.5},
		{PlayerLoop, "bounce"},
		{LogLevel, "loud"},
		{LogFormat, "xml"},
	}
	for _, elem := range testdata {
		v, err := New(afero.NewMemMapFs())
		require.NoError(t, err)
		v.Set(elem.key, elem.value)
		_, err = Load(v)
		assert.ErrorIs(t, err, ErrInvalid, elem.key)
		assert.ErrorContains(t, err, elem.key)
	}
}

func TestFields(t *testing.T) {
	f := Default[PlayerReadAhead]
	assert.Equal(t, "TLPLAY_PLAYER_READ_AHEAD", f.Env())
	keys := Keys()
	assert.Len(t, keys, len(Default))
	assert.Contains(t, keys, HTTPListen)
	assert.IsNonDecreasing(t, keys)
}
