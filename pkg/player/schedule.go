package player

import (
	"math"

	"github.com/jdeisenh/tlplay/pkg/future"
	"github.com/jdeisenh/tlplay/pkg/otime"
)

var second = otime.Rate{Num: 1, Den: 1}

// frames converts a read window to a frame count
func (p *Player) windowFrames(seconds float64) int64 {
	return int64(math.Ceil(seconds * p.rate.Float()))
}

// wrap maps a frame outside the in/out range to the frame played there
// under the loop mode
func (p *Player) wrap(frame int64) (int64, bool) {
	if frame >= p.in && frame < p.out {
		return frame, true
	}
	length := p.out - p.in
	switch p.loopMode {
	case Repeat:
		return p.in + mod(frame-p.in, length), true
	case PingPong:
		if length == 1 {
			return p.in, true
		}
		period := 2 * (length - 1)
		m := mod(frame-p.in, period)
		if m >= length {
			m = period - m
		}
		return p.in + m, true
	}
	return 0, false
}

// window lists the frames to keep around the current one, nearest first:
// the current frame, read ahead in playback direction, then read behind
func (p *Player) window() []int64 {
	dir := p.state.direction()
	if dir == 0 {
		dir = 1
	}
	ahead := p.windowFrames(p.readAhead.Seconds())
	behind := p.windowFrames(p.readBehind.Seconds())
	out := make([]int64, 0, 1+ahead+behind)
	seen := make(map[int64]bool, cap(out))
	add := func(f int64) {
		if w, ok := p.wrap(f); ok && !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	add(p.frame)
	for k := int64(1); k <= ahead; k++ {
		add(p.frame + dir*k)
	}
	for k := int64(1); k <= behind; k++ {
		add(p.frame - dir*k)
	}
	return out
}

// collect moves finished reads into the frame and audio rings, mu held
func (p *Player) collect() {
	for _, e := range p.pending.TakeReady() {
		v, err, _ := e.f.Result()
		if err != nil {
			if !future.IsCanceled(err) {
				p.logger.Debug().Err(err).Msgf("Frame %d", e.frame)
			}
			continue
		}
		p.frames[e.frame] = v
	}
	for b, f := range p.audioPending {
		a, err, ok := f.Result()
		if !ok {
			continue
		}
		delete(p.audioPending, b)
		if err == nil {
			p.ring[b] = a
		}
	}
}

// schedule drops what fell out of the window and requests what is
// missing in it, nearest first, mu held
func (p *Player) schedule() {
	frames := p.window()
	keep := make(map[int64]bool, len(frames))
	for _, f := range frames {
		keep[f] = true
	}
	p.pending.Expire(func(f int64) bool { return keep[f] })
	for f := range p.frames {
		if !keep[f] {
			delete(p.frames, f)
		}
	}
	for _, f := range frames {
		if len(p.pending) >= p.opts.RequestCount {
			break
		}
		if _, ok := p.frames[f]; ok || p.pending.Has(f) {
			continue
		}
		p.pending.AddIfNew(f, p.tl.GetVideo(p.timeOf(f), 0))
	}
	p.scheduleAudio()
}

func (p *Player) bucketOf(frame int64) int64 {
	return otime.SecondBucket(p.timeOf(frame))
}

// scheduleAudio keeps the current second and the next one requested.
// Reverse playback is silent and reads no audio.
func (p *Player) scheduleAudio() {
	b := p.bucketOf(p.frame)
	for k := range p.ring {
		if k < b-1 || k > b+2 {
			delete(p.ring, k)
		}
	}
	if p.state == Reverse || !p.info.Audio.IsValid() {
		return
	}
	for _, k := range []int64{b, b + 1} {
		rng := otime.NewRange(otime.New(k, second), otime.New(1, second))
		if !rng.Intersects(p.info.Range) {
			continue
		}
		if _, ok := p.ring[k]; ok {
			continue
		}
		if _, ok := p.audioPending[k]; ok {
			continue
		}
		p.audioPending[k] = p.tl.GetAudio(rng)
	}
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
