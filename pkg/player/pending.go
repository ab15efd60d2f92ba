package player

import (
	"github.com/jdeisenh/tlplay/pkg/future"
	"github.com/jdeisenh/tlplay/pkg/timeline"
)

type pendingFrame struct {
	frame int64
	f     *future.Future[timeline.VideoData]
}

// pendingList holds the outstanding video requests in request order
type pendingList []pendingFrame

// Has reports whether frame is already requested
func (pl pendingList) Has(frame int64) bool {
	for _, e := range pl {
		if e.frame == frame {
			return true
		}
	}
	return false
}

// AddIfNew adds the request for frame, if not already there
func (pl *pendingList) AddIfNew(frame int64, f *future.Future[timeline.VideoData]) bool {
	if pl.Has(frame) {
		return false
	}
	*pl = append(*pl, pendingFrame{frame, f})
	return true
}

// Expire drops requests for frames outside the window. Their results
// are not needed any more.
func (pl *pendingList) Expire(keep func(frame int64) bool) {
	nl := make(pendingList, 0, len(*pl))
	for _, e := range *pl {
		if keep(e.frame) {
			nl = append(nl, e)
		}
	}
	*pl = nl
}

// TakeReady removes and returns the completed requests, oldest first
func (pl *pendingList) TakeReady() pendingList {
	var ready pendingList
	nl := make(pendingList, 0, len(*pl))
	for _, e := range *pl {
		if e.f.Ready() {
			ready = append(ready, e)
		} else {
			nl = append(nl, e)
		}
	}
	*pl = nl
	return ready
}
