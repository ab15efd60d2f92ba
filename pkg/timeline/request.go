package timeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/jdeisenh/tlplay/pkg/cache"
	"github.com/jdeisenh/tlplay/pkg/future"
	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/otio"
	"github.com/jdeisenh/tlplay/pkg/reader"
)

// Requests are created by the caller and then owned by the worker. Other
// goroutines only complete the promise.

type videoRequest struct {
	id      uuid.UUID
	time    otime.RationalTime
	layer   int
	promise *future.Future[VideoData]

	state      requestState
	dispatched time.Time
	result     VideoData
	reads      []*videoRead
	releases   []func()
}

// videoRead fills one image of one layer
type videoRead struct {
	layer  int
	second bool
	sample otio.Sample
	path   string
	key    cache.VideoKey
	f      *future.Future[reader.VideoData]
}

type audioRequest struct {
	id      uuid.UUID
	rng     otime.TimeRange
	promise *future.Future[AudioData]

	state      requestState
	dispatched time.Time
	reads      []*audioRead
	releases   []func()
}

// audioRead is one second of one clip. Media sample m of the bucket lands
// on request sample m - offset.
type audioRead struct {
	ref    otio.ItemRef
	clip   *otio.Clip
	path   string
	key    cache.AudioKey
	offset int64
	// from, to limit the output samples covered by the clip
	from, to int
	f        *future.Future[reader.AudioData]
}

func (r *videoRequest) release() {
	for _, fn := range r.releases {
		fn()
	}
	r.releases = nil
}

func (r *audioRequest) release() {
	for _, fn := range r.releases {
		fn()
	}
	r.releases = nil
}

func (r *videoRequest) ready() bool {
	for _, rd := range r.reads {
		if !rd.f.Ready() {
			return false
		}
	}
	return true
}

func (r *audioRequest) ready() bool {
	for _, rd := range r.reads {
		if !rd.f.Ready() {
			return false
		}
	}
	return true
}
