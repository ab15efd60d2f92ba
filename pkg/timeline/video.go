package timeline

import (
	"slices"
	"time"

	"github.com/jdeisenh/tlplay/pkg/cache"
	"github.com/jdeisenh/tlplay/pkg/future"
	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/otio"
	"github.com/jdeisenh/tlplay/pkg/reader"
)

// dispatchVideo resolves the active clips of every video track and
// starts the reads. Requests outside the composition complete at once.
func (t *Timeline) dispatchVideo(r *videoRequest) {
	if r.promise.Ready() {
		r.state = stateCancelled
		return
	}
	tracks := t.comp.TracksOf(otio.Video)
	r.result = VideoData{ID: r.id, Time: r.time, Layers: make([]Layer, len(tracks))}
	rng := t.info.Range
	if !rng.Contains(r.time) {
		r.result.Time = rng.Clamp(r.time)
		r.state = stateFailedNull
		r.promise.Set(r.result)
		return
	}
	trackTime := r.time.Sub(rng.Start)
	for li, ti := range tracks {
		active := t.comp.ActiveAt(ti, trackTime)
		layer := &r.result.Layers[li]
		if blend, ok := active.Blend.Get(); ok {
			layer.Transition = blend.Transition.Type
			layer.TransitionValue = blend.Value
			if from, ok := blend.From.Get(); ok {
				layer.Effects = from.Clip.Effects
				t.readVideo(r, li, false, from)
			}
			if to, ok := blend.To.Get(); ok {
				t.readVideo(r, li, true, to)
			}
			continue
		}
		if s, ok := active.Sample.Get(); ok {
			layer.Effects = s.Clip.Effects
			t.readVideo(r, li, false, s)
		}
	}
	r.state = stateDispatched
	r.dispatched = time.Now()
}

// readVideo adds the read of sample to r. Poisoned and missing clips stay empty.
func (t *Timeline) readVideo(r *videoRequest, layer int, second bool, s otio.Sample) {
	if t.poisoned[s.Ref] || s.Clip.MediaReference.Kind == otio.MissingRef {
		return
	}
	p := s.Clip.MediaReference.Path(t.dir)
	rd := &videoRead{
		layer:  layer,
		second: second,
		sample: s,
		path:   p.String(),
		key:    cache.VideoKey{Path: t.readers.MediaKey(p), Layer: r.layer, Time: s.Media},
	}
	f, ok := t.videoFuture(r, rd)
	if !ok {
		return
	}
	rd.f = f
	r.reads = append(r.reads, rd)
}

// videoFuture looks in the cache, then at reads in flight, and only then
// asks the reader
func (t *Timeline) videoFuture(r *videoRequest, rd *videoRead) (*future.Future[reader.VideoData], bool) {
	if v, ok := t.videoCache.Get(rd.key).Get(); ok {
		CacheHits.WithLabelValues("video").Inc()
		return future.Resolved(v), true
	}
	CacheMisses.WithLabelValues("video").Inc()
	if f, ok := t.inflightVideo[rd.key]; ok {
		return f, true
	}
	rdr, release, ok := t.acquire(rd.sample.Ref, rd.sample.Clip)
	if !ok {
		return nil, false
	}
	r.releases = append(r.releases, release)
	f := rdr.ReadVideo(rd.sample.Media, reader.Options{Layer: r.layer, IO: t.opts.IOOptions})
	t.inflightVideo[rd.key] = f
	go t.wakeOn(f.Done())
	return f, true
}

// settleVideo moves finished reads into the cache
func (t *Timeline) settleVideo() {
	for key, f := range t.inflightVideo {
		v, err, ok := f.Result()
		if !ok {
			continue
		}
		delete(t.inflightVideo, key)
		if err == nil {
			t.videoCache.Add(key, v)
		}
	}
}

// pollVideo completes in progress requests in order. A request waits for
// the ones before it unless they are finished or timed out.
func (t *Timeline) pollVideo() {
	t.mu.Lock()
	list := slices.Clone(t.videoInProgress)
	t.mu.Unlock()

	now := time.Now()
	finished := make(map[*videoRequest]bool)
	for _, r := range list {
		if r.promise.Ready() {
			if !r.state.terminal() {
				r.state = stateCancelled
			}
			r.release()
			finished[r] = true
			continue
		}
		t.retryVideo(r)
		timedOut := t.readTimeout > 0 && now.Sub(r.dispatched) > t.readTimeout
		if !r.ready() && !timedOut {
			break
		}
		r.state = stateAssembling
		t.assembleVideo(r, now)
		r.release()
		finished[r] = true
	}
	if len(finished) == 0 {
		return
	}
	t.mu.Lock()
	t.videoInProgress = slices.DeleteFunc(t.videoInProgress, func(r *videoRequest) bool {
		return finished[r]
	})
	t.mu.Unlock()
}

// retryVideo reissues reads cancelled underneath a live request
func (t *Timeline) retryVideo(r *videoRequest) {
	for _, rd := range r.reads {
		if _, err, ok := rd.f.Result(); ok && future.IsCanceled(err) {
			if f, ok := t.videoFuture(r, rd); ok {
				rd.f = f
			}
		}
	}
}

// assembleVideo fills the layers from the reads, anything missing stays null
func (t *Timeline) assembleVideo(r *videoRequest, now time.Time) {
	failed := false
	for _, rd := range r.reads {
		v, err, ok := rd.f.Result()
		switch {
		case !ok:
			failed = true
			t.counters.timeouts.Add(1)
			Timeouts.WithLabelValues("video").Inc()
			t.logError(func() { t.events.LogTimeout(rd.path, rd.sample.Media, now.Sub(r.dispatched)) })
			continue
		case err != nil:
			failed = true
			t.decodeFailed(rd.path, rd.sample.Media, "video", err)
			continue
		}
		layer := &r.result.Layers[rd.layer]
		if rd.second {
			layer.ImageB = v.Image
		} else {
			layer.Image = v.Image
		}
	}
	if failed {
		r.state = stateFailedNull
	} else {
		r.state = stateFulfilled
	}
	r.promise.Set(r.result)
}

// decodeFailed counts and logs a read error. Cancellations are not errors.
func (t *Timeline) decodeFailed(path string, at otime.RationalTime, kind string, err error) {
	if future.IsCanceled(err) {
		return
	}
	t.counters.decodeErrors.Add(1)
	DecodeErrors.WithLabelValues(kind).Inc()
	err = reader.DecodeError(err)
	t.logError(func() { t.events.LogDecodeError(path, at, err) })
}
