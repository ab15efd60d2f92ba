package timeline

import (
	"time"

	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/reader"
	"github.com/rs/zerolog"
)

// textEventLogger logs in human-readable text format
type textEventLogger struct {
	logger zerolog.Logger
}

func NewTextEventLogger(logger zerolog.Logger) EventLogger {
	return &textEventLogger{logger: logger}
}

func (o *textEventLogger) LogLoaded(path string, info Info) {
	o.logger.Info().Msgf("Loaded %s range %s at %s fps, %d video layers, audio %d Hz/%d ch",
		path, info.Range, info.Rate, len(info.Video), info.Audio.SampleRate, info.Audio.Channels)
}

func (o *textEventLogger) LogReaderOpen(path string, info reader.Info) {
	if info.HasVideo() {
		v := info.Video[0]
		o.logger.Debug().Msgf("Open %s %dx%d %s frames %s", path, v.Width, v.Height, v.Format, info.VideoTime)
	}
	if info.HasAudio() {
		o.logger.Debug().Msgf("Open %s audio %d Hz %d ch %s", path, info.Audio.SampleRate, info.Audio.Channels, info.Audio.Format)
	}
}

func (o *textEventLogger) LogReaderFailed(path string, err error) {
	o.logger.Warn().Err(err).Msgf("Reader for %s failed, clip disabled", path)
}

func (o *textEventLogger) LogDecodeError(path string, at otime.RationalTime, err error) {
	o.logger.Warn().Err(err).Msgf("Decode %s at %s", path, at)
}

func (o *textEventLogger) LogTimeout(path string, at otime.RationalTime, waited time.Duration) {
	o.logger.Warn().Msgf("Timeout %s at %s after %s", path, at, otime.Round(waited))
}

func (o *textEventLogger) LogSampleRateMismatch(path string, want, got int) {
	o.logger.Warn().Msgf("Dropping audio of %s: %d Hz, playing at %d Hz", path, got, want)
}

func (o *textEventLogger) LogStats(s Stats) {
	o.logger.Info().Msgf("Video %d/%d Audio %d/%d Readers %d Cache %.0f%%/%.0f%% Errors %d Timeouts %d",
		s.VideoQueued, s.VideoInProgress, s.AudioQueued, s.AudioInProgress, s.Readers,
		s.VideoCache, s.AudioCache, s.DecodeErrors, s.Timeouts)
}
