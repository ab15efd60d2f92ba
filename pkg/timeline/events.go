package timeline

import (
	"time"

	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/reader"
)

// EventLogger reports engine events, as text lines or as JSON
type EventLogger interface {
	LogLoaded(path string, info Info)
	LogReaderOpen(path string, info reader.Info)
	LogReaderFailed(path string, err error)
	LogDecodeError(path string, at otime.RationalTime, err error)
	LogTimeout(path string, at otime.RationalTime, waited time.Duration)
	LogSampleRateMismatch(path string, want, got int)
	LogStats(s Stats)
}
