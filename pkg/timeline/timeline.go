// Package timeline schedules reads of a composition and assembles video
// frames and mixed audio on a single worker goroutine.
package timeline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jdeisenh/tlplay/pkg/cache"
	"github.com/jdeisenh/tlplay/pkg/future"
	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/otio"
	"github.com/jdeisenh/tlplay/pkg/reader"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

const (
	maxAudioRequest  = time.Second
	minReaderIdle    = time.Second
	defaultVideoKeep = 96
	defaultAudioKeep = 10
)

// Timeline owns a composition, its readers and caches. All reads run
// through one worker goroutine started by Open.
type Timeline struct {
	path   string
	opts   Options
	logger zerolog.Logger
	events EventLogger

	readers    *reader.Cache
	videoCache *cache.LRU[cache.VideoKey, reader.VideoData]
	audioCache *cache.LRU[cache.AudioKey, reader.AudioData]

	// Set by the worker before loaded is closed
	loaded  chan struct{}
	comp    *otio.Composition
	dir     string
	info    Info
	loadErr error

	// Guarded by mu: queues, in progress lists and stopped
	mu              sync.Mutex
	videoRequests   []*videoRequest
	audioRequests   []*audioRequest
	videoInProgress []*videoRequest
	audioInProgress []*audioRequest
	stopped         bool
	cacheWindow     time.Duration
	lastStats       time.Time

	wake      chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	// Worker only
	poisoned      map[otio.ItemRef]bool
	inflightVideo map[cache.VideoKey]*future.Future[reader.VideoData]
	inflightAudio map[cache.AudioKey]*future.Future[reader.AudioData]
	sampleRate    int
	channels      int
	readTimeout   time.Duration

	errorLog *rate.Limiter
	started  time.Time
	counters struct {
		videoRequests atomic.Uint64
		audioRequests atomic.Uint64
		cancelled     atomic.Uint64
		decodeErrors  atomic.Uint64
		timeouts      atomic.Uint64
		evicted       atomic.Uint64
		poisoned      atomic.Int64
	}
}

// Open starts loading path in the background. A path ending in .otio is
// parsed as composition, anything else is wrapped in a single clip.
func Open(path string, opts Options) *Timeline {
	opts = opts.withDefaults()
	logger := opts.Logger.With().Str("component", "timeline").Logger()
	tl := &Timeline{
		path:          path,
		opts:          opts,
		logger:        logger,
		videoCache:    cache.NewLRU[cache.VideoKey, reader.VideoData](defaultVideoKeep),
		audioCache:    cache.NewLRU[cache.AudioKey, reader.AudioData](defaultAudioKeep),
		loaded:        make(chan struct{}),
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		poisoned:      make(map[otio.ItemRef]bool),
		inflightVideo: make(map[cache.VideoKey]*future.Future[reader.VideoData]),
		inflightAudio: make(map[cache.AudioKey]*future.Future[reader.AudioData]),
		errorLog:      rate.NewLimiter(rate.Limit(1), 5),
		started:       time.Now(),
		cacheWindow:   minReaderIdle,
	}
	tl.videoCache.OnEvict(func(cache.VideoKey, reader.VideoData) {
		tl.counters.evicted.Add(1)
		Evictions.WithLabelValues("video").Inc()
	})
	tl.audioCache.OnEvict(func(cache.AudioKey, reader.AudioData) {
		tl.counters.evicted.Add(1)
		Evictions.WithLabelValues("audio").Inc()
	})
	if opts.JSONEvents {
		tl.events = NewJsonEventLogger(logger)
	} else {
		tl.events = NewTextEventLogger(logger)
	}
	tl.readers = reader.NewCache(opts.Registry, reader.OpenOptions{
		Fs:           opts.Fs,
		Logger:       logger,
		DefaultSpeed: opts.SequenceDefaultSpeed,
		IO:           opts.IOOptions,
	})
	ctx, cancel := context.WithCancel(context.Background())
	tl.cancel = cancel
	go tl.run(ctx)
	return tl
}

// Info blocks until the composition is loaded. A structural error is
// returned here and makes every later operation fail.
func (t *Timeline) Info() (Info, error) {
	<-t.loaded
	return t.info, t.loadErr
}

// Composition returns the loaded composition, nil before loading finished
func (t *Timeline) Composition() *otio.Composition {
	select {
	case <-t.loaded:
		return t.comp
	default:
		return nil
	}
}

// failed returns the load error once loading is over
func (t *Timeline) failed() error {
	select {
	case <-t.loaded:
		return t.loadErr
	default:
		return nil
	}
}

// wakeOn wakes the worker once done is closed
func (t *Timeline) wakeOn(done <-chan struct{}) {
	select {
	case <-done:
		t.signal()
	case <-t.done:
	}
}

func (t *Timeline) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// GetVideo requests the frame at global time at. The layer is forwarded
// to readers of multi-layer media.
func (t *Timeline) GetVideo(at otime.RationalTime, layer int) *future.Future[VideoData] {
	if err := t.failed(); err != nil {
		return future.Failed[VideoData](err)
	}
	req := &videoRequest{
		id:      uuid.New(),
		time:    at,
		layer:   layer,
		promise: future.New[VideoData](),
	}
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return future.Failed[VideoData](t.stoppedErr())
	}
	for t.liveVideo() >= t.opts.VideoRequestCount {
		t.dropOldestVideo()
	}
	t.videoRequests = append(t.videoRequests, req)
	t.mu.Unlock()
	t.counters.videoRequests.Add(1)
	Requests.WithLabelValues("video").Inc()
	t.signal()
	return req.promise
}

// GetAudio requests the mix of all audio tracks over rng, which is cut to one second
func (t *Timeline) GetAudio(rng otime.TimeRange) *future.Future[AudioData] {
	if err := t.failed(); err != nil {
		return future.Failed[AudioData](err)
	}
	if rng.Duration.ToDuration() > maxAudioRequest {
		rng.Duration = otime.FromDuration(maxAudioRequest, rng.Duration.Rate)
	}
	req := &audioRequest{
		id:      uuid.New(),
		rng:     rng,
		promise: future.New[AudioData](),
	}
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return future.Failed[AudioData](t.stoppedErr())
	}
	for t.liveAudio() >= t.opts.AudioRequestCount {
		t.dropOldestAudio()
	}
	t.audioRequests = append(t.audioRequests, req)
	t.mu.Unlock()
	t.counters.audioRequests.Add(1)
	Requests.WithLabelValues("audio").Inc()
	t.signal()
	return req.promise
}

// stoppedErr is the error for requests after Close or a failed load, mu held
func (t *Timeline) stoppedErr() error {
	if t.loadErr != nil {
		return t.loadErr
	}
	return fmt.Errorf("%w: %w", future.ErrCanceled, ErrClosed)
}

var errQueueFull = fmt.Errorf("%w: %w", future.ErrCanceled, ErrQueueFull)

// liveVideo counts queued and unfinished requests, mu held
func (t *Timeline) liveVideo() int {
	return len(t.videoRequests) + lo.CountBy(t.videoInProgress, func(r *videoRequest) bool {
		return !r.promise.Ready()
	})
}

func (t *Timeline) liveAudio() int {
	return len(t.audioRequests) + lo.CountBy(t.audioInProgress, func(r *audioRequest) bool {
		return !r.promise.Ready()
	})
}

// dropOldestVideo fails the oldest live request, mu held. Requests in
// progress are older than queued ones and are left to the worker to clean up.
func (t *Timeline) dropOldestVideo() {
	if victim, ok := lo.Find(t.videoInProgress, func(r *videoRequest) bool { return !r.promise.Ready() }); ok {
		victim.promise.Fail(errQueueFull)
	} else if len(t.videoRequests) > 0 {
		victim := t.videoRequests[0]
		t.videoRequests = t.videoRequests[1:]
		victim.promise.Fail(errQueueFull)
	}
	t.counters.cancelled.Add(1)
	Cancelled.WithLabelValues("video").Inc()
	t.logger.Debug().Msg("Video queue full, dropping oldest request")
}

func (t *Timeline) dropOldestAudio() {
	if victim, ok := lo.Find(t.audioInProgress, func(r *audioRequest) bool { return !r.promise.Ready() }); ok {
		victim.promise.Fail(errQueueFull)
	} else if len(t.audioRequests) > 0 {
		victim := t.audioRequests[0]
		t.audioRequests = t.audioRequests[1:]
		victim.promise.Fail(errQueueFull)
	}
	t.counters.cancelled.Add(1)
	Cancelled.WithLabelValues("audio").Inc()
	t.logger.Debug().Msg("Audio queue full, dropping oldest request")
}

// CancelRequests cancels everything queued or in progress and asks the
// readers to abandon their work
func (t *Timeline) CancelRequests() {
	video, audio := 0, 0
	t.mu.Lock()
	for _, r := range t.videoRequests {
		r.promise.Cancel()
		video++
	}
	for _, r := range t.audioRequests {
		r.promise.Cancel()
		audio++
	}
	t.videoRequests, t.audioRequests = nil, nil
	for _, r := range t.videoInProgress {
		if r.promise.Cancel() {
			video++
		}
	}
	for _, r := range t.audioInProgress {
		if r.promise.Cancel() {
			audio++
		}
	}
	t.mu.Unlock()
	t.counters.cancelled.Add(uint64(video + audio))
	Cancelled.WithLabelValues("video").Add(float64(video))
	Cancelled.WithLabelValues("audio").Add(float64(audio))
	t.readers.CancelRequests()
	t.signal()
}

// SetCacheOptions sizes the caches for a read window around the playhead
func (t *Timeline) SetCacheOptions(readAhead, readBehind time.Duration) {
	window := readAhead + readBehind
	info, err := t.Info()
	if err != nil {
		return
	}
	layers := 0
	audioTracks := 0
	if t.comp != nil {
		layers = len(t.comp.TracksOf(otio.Video))
		audioTracks = len(t.comp.TracksOf(otio.Audio))
	}
	// Transitions read two frames per layer
	frames := int(math.Ceil(window.Seconds()*info.Rate.Float())) + 1
	t.videoCache.SetMax(max(frames*max(layers, 1)*2, 1))
	buckets := int(math.Ceil(window.Seconds())) + 2
	t.audioCache.SetMax(max(buckets*max(audioTracks, 1)*2, 1))
	t.mu.Lock()
	t.cacheWindow = max(window, minReaderIdle)
	t.mu.Unlock()
}

// CachePercentage returns the fill level of the video and audio cache
func (t *Timeline) CachePercentage() (video, audio float64) {
	return t.videoCache.PercentageUsed(), t.audioCache.PercentageUsed()
}

// Stats returns a snapshot of the engine state
func (t *Timeline) Stats() Stats {
	t.mu.Lock()
	s := Stats{
		VideoQueued:     len(t.videoRequests),
		VideoInProgress: t.liveVideo() - len(t.videoRequests),
		AudioQueued:     len(t.audioRequests),
		AudioInProgress: t.liveAudio() - len(t.audioRequests),
		CacheWindow:     Duration(t.cacheWindow),
	}
	t.mu.Unlock()
	s.Uptime = Duration(time.Since(t.started))
	s.Readers = t.readers.Len()
	s.VideoCache, s.AudioCache = t.CachePercentage()
	s.VideoRequests = t.counters.videoRequests.Load()
	s.AudioRequests = t.counters.audioRequests.Load()
	s.Cancelled = t.counters.cancelled.Load()
	s.DecodeErrors = t.counters.decodeErrors.Load()
	s.Timeouts = t.counters.timeouts.Load()
	s.Evicted = t.counters.evicted.Load()
	s.Poisoned = int(t.counters.poisoned.Load())
	return s
}

// Tick writes the stats line at most once per StatsInterval
func (t *Timeline) Tick() {
	now := time.Now()
	t.mu.Lock()
	due := now.Sub(t.lastStats) >= t.opts.StatsInterval
	if due {
		t.lastStats = now
	}
	t.mu.Unlock()
	if due {
		s := t.Stats()
		t.events.LogStats(s)
		CacheEntries.WithLabelValues("video").Set(float64(t.videoCache.Size()))
		CacheEntries.WithLabelValues("audio").Set(float64(t.audioCache.Size()))
	}
}

// Close stops the worker, cancels outstanding requests and closes the readers
func (t *Timeline) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		t.mu.Unlock()
		t.cancel()
		<-t.done
		t.CancelRequests()
		t.readers.Close()
		ReadersOpen.Set(0)
	})
	return nil
}

// run is the worker loop: splice new requests, dispatch, poll, sweep, sleep
func (t *Timeline) run(ctx context.Context) {
	defer close(t.done)
	t.load(ctx)
	if t.loadErr != nil {
		t.failAll(t.loadErr)
		return
	}
	ticker := time.NewTicker(t.opts.RequestTimeout)
	defer ticker.Stop()
	lastSweep := time.Now()
forloop:
	for {
		t.mu.Lock()
		if t.stopped {
			t.mu.Unlock()
			break forloop
		}
		newVideo, newAudio := t.videoRequests, t.audioRequests
		t.videoRequests, t.audioRequests = nil, nil
		t.videoInProgress = append(t.videoInProgress, newVideo...)
		t.audioInProgress = append(t.audioInProgress, newAudio...)
		window := t.cacheWindow
		t.mu.Unlock()

		t.settleInflight()
		for _, r := range newVideo {
			t.dispatchVideo(r)
		}
		for _, r := range newAudio {
			t.dispatchAudio(r)
		}
		t.settleInflight()
		t.pollVideo()
		t.pollAudio()

		if now := time.Now(); now.Sub(lastSweep) >= window {
			lastSweep = now
			if n := t.readers.Sweep(window); n > 0 {
				t.logger.Debug().Msgf("Closed %d idle readers", n)
			}
			ReadersOpen.Set(float64(t.readers.Len()))
		}

		select {
		case <-ctx.Done():
			break forloop
		case <-t.wake:
		case <-ticker.C:
		}
	}
	t.logger.Debug().Msg("Close worker")
}

func (t *Timeline) settleInflight() {
	t.settleVideo()
	t.settleAudio()
}

// failAll resolves every request with err after a failed load
func (t *Timeline) failAll(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for _, r := range append(t.videoRequests, t.videoInProgress...) {
		r.promise.Fail(err)
	}
	for _, r := range append(t.audioRequests, t.audioInProgress...) {
		r.promise.Fail(err)
	}
	t.videoRequests, t.videoInProgress = nil, nil
	t.audioRequests, t.audioInProgress = nil, nil
}

// logError writes decode and timeout events through the rate limiter
func (t *Timeline) logError(fn func()) {
	if t.errorLog.Allow() {
		fn()
	}
}
