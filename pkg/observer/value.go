// Package observer broadcasts the latest value of a variable to any number
// of subscribers.
package observer

import "sync"

// Value holds the last value and its subscribers. A slow subscriber only
// ever sees the most recent value, intermediate ones are dropped.
type Value[T any] struct {
	mu    sync.Mutex
	value T
	equal func(a, b T) bool
	subs  map[uint64]chan T
	next  uint64
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{value: initial, subs: make(map[uint64]chan T)}
}

// NewComparable returns a Value whose SetIfChanged compares with ==
func NewComparable[T comparable](initial T) *Value[T] {
	v := NewValue(initial)
	v.equal = func(a, b T) bool { return a == b }
	return v
}

// WithEqual sets the comparison used by SetIfChanged
func (v *Value[T]) WithEqual(equal func(a, b T) bool) *Value[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.equal = equal
	return v
}

func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Set stores x and publishes it to every subscriber
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = x
	for _, ch := range v.subs {
		publish(ch, x)
	}
}

// SetIfChanged publishes x only if it differs from the current value
func (v *Value[T]) SetIfChanged(x T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.equal != nil && v.equal(v.value, x) {
		return false
	}
	v.value = x
	for _, ch := range v.subs {
		publish(ch, x)
	}
	return true
}

// Subscribe returns a channel receiving the current value right away and
// every later one. The returned function unsubscribes and closes the channel.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.next
	v.next++
	ch := make(chan T, 1)
	ch <- v.value
	v.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.subs, id)
			close(ch)
		})
	}
}

// Observers is the number of subscribers
func (v *Value[T]) Observers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// publish replaces a value not yet received, mu held
func publish[T any](ch chan T, x T) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- x:
	default:
	}
}

// Observable is the read side of a Value
type Observable[T any] interface {
	Get() T
	Subscribe() (<-chan T, func())
}

var _ Observable[int] = (*Value[int])(nil)
