package timeline

import (
	"slices"
	"time"

	"github.com/jdeisenh/tlplay/pkg/cache"
	"github.com/jdeisenh/tlplay/pkg/future"
	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/otio"
	"github.com/jdeisenh/tlplay/pkg/reader"
	"github.com/samber/lo"
)

const (
	defaultSampleRate = 48000
	defaultChannels   = 2
)

func (t *Timeline) outputRate() otime.Rate {
	return otime.Rate{Num: int64(t.sampleRate), Den: 1}
}

// samples is the number of output samples of r
func (t *Timeline) samples(r *audioRequest) int {
	return int(max(r.rng.Duration.RescaledTo(t.outputRate()).Value, 0))
}

// dispatchAudio reads the one second buckets of every audio clip that
// overlaps the request
func (t *Timeline) dispatchAudio(r *audioRequest) {
	if r.promise.Ready() {
		r.state = stateCancelled
		return
	}
	sr := int64(t.sampleRate)
	rate := t.outputRate()
	start := r.rng.Start.RescaledTo(rate).Value
	count := int64(t.samples(r))
	global := t.info.Range.Start
	for _, ti := range t.comp.TracksOf(otio.Audio) {
		track := t.comp.Tracks[ti]
		for i, child := range track.Children {
			clip, ok := child.(*otio.Clip)
			if !ok || clip.MediaReference.Kind == otio.MissingRef {
				continue
			}
			ref := otio.ItemRef{Track: ti, Index: i}
			if t.poisoned[ref] {
				continue
			}
			trimmed, err := track.TrimmedRangeOfChild(i)
			if err != nil {
				continue
			}
			gs := global.Add(trimmed.Start).RescaledTo(rate).Value
			ge := global.Add(trimmed.End()).RescaledTo(rate).Value
			from, to := max(gs, start)-start, min(ge, start+count)-start
			if from >= to {
				continue
			}
			// Output sample i plays media sample i + offset
			offset := start + clip.SourceRange.Start.RescaledTo(rate).Value - gs
			p := clip.MediaReference.Path(t.dir)
			first, last := max(floorDiv(from+offset, sr), 0), floorDiv(to-1+offset, sr)
			for b := first; b <= last; b++ {
				rd := &audioRead{
					ref:    ref,
					clip:   clip,
					path:   p.String(),
					key:    cache.AudioKey{Path: t.readers.MediaKey(p), Second: b},
					offset: offset,
					from:   int(max(from, b*sr-offset)),
					to:     int(min(to, (b+1)*sr-offset)),
				}
				f, ok := t.audioFuture(r, rd)
				if !ok {
					break
				}
				rd.f = f
				r.reads = append(r.reads, rd)
			}
		}
	}
	r.state = stateDispatched
	r.dispatched = time.Now()
}

func (t *Timeline) audioFuture(r *audioRequest, rd *audioRead) (*future.Future[reader.AudioData], bool) {
	if v, ok := t.audioCache.Get(rd.key).Get(); ok {
		CacheHits.WithLabelValues("audio").Inc()
		return future.Resolved(v), true
	}
	CacheMisses.WithLabelValues("audio").Inc()
	if f, ok := t.inflightAudio[rd.key]; ok {
		return f, true
	}
	rdr, release, ok := t.acquire(rd.ref, rd.clip)
	if !ok {
		return nil, false
	}
	r.releases = append(r.releases, release)
	f := rdr.ReadAudio(otime.BucketRange(rd.key.Second, t.outputRate()), reader.Options{IO: t.opts.IOOptions})
	t.inflightAudio[rd.key] = f
	go t.wakeOn(f.Done())
	return f, true
}

func (t *Timeline) settleAudio() {
	for key, f := range t.inflightAudio {
		v, err, ok := f.Result()
		if !ok {
			continue
		}
		delete(t.inflightAudio, key)
		if err == nil {
			t.audioCache.Add(key, v)
		}
	}
}

func (t *Timeline) pollAudio() {
	t.mu.Lock()
	list := slices.Clone(t.audioInProgress)
	t.mu.Unlock()

	now := time.Now()
	finished := make(map[*audioRequest]bool)
	for _, r := range list {
		if r.promise.Ready() {
			if !r.state.terminal() {
				r.state = stateCancelled
			}
			r.release()
			finished[r] = true
			continue
		}
		t.retryAudio(r)
		timedOut := t.readTimeout > 0 && now.Sub(r.dispatched) > t.readTimeout
		if !r.ready() && !timedOut {
			break
		}
		r.state = stateAssembling
		t.assembleAudio(r, now)
		r.release()
		finished[r] = true
	}
	if len(finished) == 0 {
		return
	}
	t.mu.Lock()
	t.audioInProgress = slices.DeleteFunc(t.audioInProgress, func(r *audioRequest) bool {
		return finished[r]
	})
	t.mu.Unlock()
}

func (t *Timeline) retryAudio(r *audioRequest) {
	for _, rd := range r.reads {
		if _, err, ok := rd.f.Result(); ok && future.IsCanceled(err) {
			if f, ok := t.audioFuture(r, rd); ok {
				rd.f = f
			}
		}
	}
}

// assembleAudio mixes the buckets additively and clamps the sum. Regions
// without data stay silent.
func (t *Timeline) assembleAudio(r *audioRequest, now time.Time) {
	out := reader.NewAudio(t.channels, t.sampleRate, t.samples(r))
	failed := false
	rate := t.outputRate()
	for _, rd := range r.reads {
		v, err, ok := rd.f.Result()
		switch {
		case !ok:
			failed = true
			t.counters.timeouts.Add(1)
			Timeouts.WithLabelValues("audio").Inc()
			at := otime.New(rd.key.Second, otime.Rate{Num: 1, Den: 1})
			t.logError(func() { t.events.LogTimeout(rd.path, at, now.Sub(r.dispatched)) })
			continue
		case err != nil:
			failed = true
			t.decodeFailed(rd.path, otime.New(rd.key.Second, otime.Rate{Num: 1, Den: 1}), "audio", err)
			continue
		case v.Audio == nil || v.Audio.Channels == 0:
			continue
		case v.Audio.SampleRate != t.sampleRate:
			t.logError(func() { t.events.LogSampleRateMismatch(rd.path, t.sampleRate, v.Audio.SampleRate) })
			continue
		}
		mix(out, v.Audio, v.Time.RescaledTo(rate).Value, rd)
	}
	for i, s := range out.Samples {
		out.Samples[i] = lo.Clamp(s, -1, 1)
	}
	if failed {
		r.state = stateFailedNull
	} else {
		r.state = stateFulfilled
	}
	r.promise.Set(AudioData{ID: r.id, Range: r.rng, Audio: out})
}

// mix adds the samples of a, whose first sample is media sample base, to out
func mix(out, a *reader.Audio, base int64, rd *audioRead) {
	n := int64(a.SampleCount())
	for i := rd.from; i < rd.to; i++ {
		j := int64(i) + rd.offset - base
		if j < 0 || j >= n {
			continue
		}
		for c := 0; c < out.Channels; c++ {
			out.Samples[i*out.Channels+c] += a.Samples[int(j)*a.Channels+c%a.Channels]
		}
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
