package future

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOnce(t *testing.T) {
	f := New[int]()
	assert.False(t, f.Ready())
	_, _, ok := f.Result()
	assert.False(t, ok)

	assert.True(t, f.Set(1))
	assert.False(t, f.Set(2))
	assert.False(t, f.Cancel())

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.True(t, f.Ready())
}

func TestCancel(t *testing.T) {
	f := New[string]()
	f.Cancel()
	_, err := f.Get(context.Background())
	assert.ErrorIs(t, err, ErrCanceled)
	assert.True(t, IsCanceled(err))

	wrapped := Failed[string](fmt.Errorf("%w: queue full", ErrCanceled))
	_, err, ok := wrapped.Result()
	assert.True(t, ok)
	assert.True(t, IsCanceled(err))
	assert.False(t, IsCanceled(errors.New("other")))
}

func TestWaitFor(t *testing.T) {
	f := New[int]()
	_, err := f.WaitFor(time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	go func() {
		time.Sleep(5 * time.Millisecond)
		f.Set(7)
	}()
	v, err := f.WaitFor(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = Resolved(3).WaitFor(0)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestGetContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New[int]().Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentComplete(t *testing.T) {
	f := New[int]()
	var wg sync.WaitGroup
	wins := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if f.Set(i) {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)
	assert.Len(t, wins, 1)
	v, _ := f.Get(context.Background())
	assert.Equal(t, <-wins, v)
}
