package player

import (
	"math"

	"github.com/jdeisenh/tlplay/pkg/otime"
)

// Audio is pulled by the device at the engine sample rate. Positions are
// sample frames on the global timeline.

func (p *Player) sampleRateOf() otime.Rate {
	return otime.Rate{Num: int64(p.sampleRate), Den: 1}
}

// samplePos is the first audio sample of frame
func (p *Player) samplePos(frame int64) int64 {
	return p.timeOf(frame).RescaledTo(p.sampleRateOf()).Value
}

// clockSample is the sample under the clock at the current time, not
// rounded to frames, mu held
func (p *Player) clockSample() int64 {
	elapsed := p.clock.Now().Sub(p.wallStart).Seconds() * p.speedValue * float64(p.state.direction())
	return p.samplePos(p.frameStart) + int64(math.Round(elapsed*float64(p.sampleRate)))
}

// ringCovers reports whether the ring holds every second of n samples from pos
func (p *Player) ringCovers(pos, n int64) bool {
	sr := int64(p.sampleRate)
	for b := floorDiv(pos, sr); b <= floorDiv(pos+n-1, sr); b++ {
		if _, ok := p.ring[b]; !ok {
			return false
		}
	}
	return true
}

// SampleRate and Channels describe the buffers PullAudio fills
func (p *Player) SampleRate() int { return p.sampleRate }
func (p *Player) Channels() int   { return p.channels }

// PullAudio fills buf with interleaved samples following the clock and
// returns the number of sample frames written. Missing audio, reverse
// and stopped playback are silent. At speeds other than 1 the position
// jumps to follow the clock.
func (p *Player) PullAudio(buf []float32) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := p.channels
	n := len(buf) / ch
	clear(buf[:n*ch])
	if p.state != Forward || n == 0 {
		return n
	}
	sr := int64(p.sampleRate)
	if pos := p.clockSample(); abs(pos-p.audioPos) > sr/10 {
		p.logger.Debug().Msgf("Audio resync %d samples", pos-p.audioPos)
		p.audioPos = pos
	}
	pos := p.audioPos
	p.audioPos += int64(n)
	if !p.ringCovers(pos, int64(n)) {
		p.underruns++
		p.logger.Debug().Msgf("Audio underrun at %d", pos)
	}
	if p.mute {
		return n
	}
	gain := float32(p.volume)
	for i := 0; i < n; i++ {
		s := pos + int64(i)
		b := floorDiv(s, sr)
		chunk, ok := p.ring[b]
		if !ok || chunk.Audio == nil || chunk.Audio.Channels == 0 {
			continue
		}
		j := s - b*sr
		if j >= int64(chunk.Audio.SampleCount()) {
			continue
		}
		for c := 0; c < ch; c++ {
			buf[i*ch+c] = chunk.Audio.Samples[int(j)*chunk.Audio.Channels+c%chunk.Audio.Channels] * gain
		}
	}
	return n
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func abs(a int64) int64 {
	if a < 0 {
		return -a
	}
	return a
}
