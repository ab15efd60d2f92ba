package reader

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/jdeisenh/tlplay/pkg/future"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// decodeSlots bounds concurrent decoding over all readers of the process
var decodeSlots = semaphore.NewWeighted(int64(runtime.NumCPU()))

type job struct {
	id  uint64
	run func(ctx context.Context)
}

// Worker executes the jobs of one reader on its own goroutines, in
// submission order when running with a single goroutine
type Worker struct {
	queue   chan job
	ctx     context.Context
	cancel  context.CancelFunc
	logger  zerolog.Logger
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	nextID  uint64
	pending map[uint64]func()
}

func NewWorker(depth, workers int, logger zerolog.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		queue:   make(chan job, depth),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		pending: make(map[uint64]func()),
	}
	for i := 0; i < max(workers, 1); i++ {
		w.wg.Add(1)
		go w.fetcher()
	}
	return w
}

// Submit queues fn and returns its future. A closed worker or a full queue
// yields a cancelled future.
func Submit[T any](w *Worker, fn func(ctx context.Context) (T, error)) *future.Future[T] {
	f := future.New[T]()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		f.Fail(fmt.Errorf("%w: %w", future.ErrCanceled, ErrClosed))
		return f
	}
	id := w.nextID
	w.nextID++
	j := job{id: id, run: func(ctx context.Context) {
		defer w.forget(id)
		if f.Ready() {
			return
		}
		if err := decodeSlots.Acquire(ctx, 1); err != nil {
			f.Cancel()
			return
		}
		defer decodeSlots.Release(1)
		v, err := fn(ctx)
		if err != nil {
			f.Fail(err)
			return
		}
		f.Set(v)
	}}
	select {
	case w.queue <- j:
		w.pending[id] = func() { f.Cancel() }
	default:
		w.logger.Warn().Int("depth", cap(w.queue)).Msg("Queue full")
		f.Fail(fmt.Errorf("%w: reader queue full", future.ErrCanceled))
	}
	return f
}

func (w *Worker) forget(id uint64) {
	w.mu.Lock()
	delete(w.pending, id)
	w.mu.Unlock()
}

// CancelRequests completes all outstanding futures as cancelled. Jobs
// already running finish but their result is dropped.
func (w *Worker) CancelRequests() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, cancel := range w.pending {
		cancel()
		delete(w.pending, id)
	}
}

// Close cancels everything outstanding and waits for the goroutines to end
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	for id, cancel := range w.pending {
		cancel()
		delete(w.pending, id)
	}
	close(w.queue)
	w.mu.Unlock()
	w.cancel()
	w.wg.Wait()
}

// fetcher executes queued jobs until the queue is closed
func (w *Worker) fetcher() {
	defer w.wg.Done()
	for j := range w.queue {
		j.run(w.ctx)
	}
	w.logger.Trace().Msg("Close Fetcher")
}
