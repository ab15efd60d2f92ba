package timeline

import (
	"time"

	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/reader"
	"github.com/rs/zerolog"
)

// jsonEventLogger logs in structured JSON format
type jsonEventLogger struct {
	logger zerolog.Logger
}

func NewJsonEventLogger(logger zerolog.Logger) EventLogger {
	return &jsonEventLogger{logger: logger}
}

func (o *jsonEventLogger) LogLoaded(path string, info Info) {
	o.logger.Info().Str("path", path).Interface("info", info).Msg("loaded")
}

func (o *jsonEventLogger) LogReaderOpen(path string, info reader.Info) {
	o.logger.Debug().Str("path", path).Interface("info", info).Msg("reader open")
}

func (o *jsonEventLogger) LogReaderFailed(path string, err error) {
	o.logger.Warn().Str("path", path).Err(err).Msg("reader failed")
}

func (o *jsonEventLogger) LogDecodeError(path string, at otime.RationalTime, err error) {
	o.logger.Warn().Str("path", path).Stringer("at", at).Err(err).Msg("decode error")
}

func (o *jsonEventLogger) LogTimeout(path string, at otime.RationalTime, waited time.Duration) {
	o.logger.Warn().Str("path", path).Stringer("at", at).Dur("waited", waited).Str("tag", "timeout").Msg("decode error")
}

func (o *jsonEventLogger) LogSampleRateMismatch(path string, want, got int) {
	o.logger.Warn().Str("path", path).Int("want", want).Int("got", got).Msg("sample rate mismatch")
}

func (o *jsonEventLogger) LogStats(s Stats) {
	o.logger.Info().Interface("stats", s).Msg("stats")
}
