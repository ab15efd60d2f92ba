package cache

import "github.com/jdeisenh/tlplay/pkg/otime"

// VideoKey addresses a decoded frame by media and media-local time
type VideoKey struct {
	Path  string
	Layer int
	Time  otime.RationalTime
}

// AudioKey addresses one second of decoded audio
type AudioKey struct {
	Path   string
	Second int64
}
