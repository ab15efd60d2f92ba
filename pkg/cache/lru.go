// Package cache holds decoded frames and audio buckets in bounded LRU maps.
package cache

import (
	"container/heap"
	"sync"

	"github.com/samber/mo"
)

type entry[K comparable, V any] struct {
	key     K
	value   V
	touched uint64 // counter value of the last access
	heapIdx int    // maintained by heap.Interface for Fix/Remove
}

// evictionHeap orders entries by last access, oldest first
type evictionHeap[K comparable, V any] []*entry[K, V]

func (h evictionHeap[K, V]) Len() int           { return len(h) }
func (h evictionHeap[K, V]) Less(i, j int) bool { return h[i].touched < h[j].touched }
func (h evictionHeap[K, V]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *evictionHeap[K, V]) Push(x any) {
	e := x.(*entry[K, V])
	e.heapIdx = len(*h)
	*h = append(*h, e)
}

func (h *evictionHeap[K, V]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIdx = -1
	*h = old[:n-1]
	return e
}

// LRU is a bounded map evicting the least recently accessed entry.
// Every Add and Get increments a counter, so ties cannot occur and
// entries never read are evicted in insertion order.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	max     int
	counter uint64
	items   map[K]*entry[K, V]
	order   evictionHeap[K, V]
	onEvict func(K, V)
}

func NewLRU[K comparable, V any](n int) *LRU[K, V] {
	return &LRU[K, V]{
		max:   n,
		items: make(map[K]*entry[K, V]),
	}
}

// OnEvict registers a callback run for entries dropped to make room.
// It runs with the cache locked and must not call back into the cache.
func (c *LRU[K, V]) OnEvict(fn func(K, V)) {
	c.mu.Lock()
	c.onEvict = fn
	c.mu.Unlock()
}

func (c *LRU[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Get returns the value and marks it most recently used
func (c *LRU[K, V]) Get(key K) mo.Option[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return mo.None[V]()
	}
	c.touch(e)
	return mo.Some(e.value)
}

// Add inserts or replaces key and evicts down to the maximum
func (c *LRU[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		e.value = value
		c.touch(e)
		c.evict()
		return
	}
	c.counter++
	e := &entry[K, V]{key: key, value: value, touched: c.counter}
	c.items[key] = e
	heap.Push(&c.order, e)
	c.evict()
}

// Remove drops key, other keys are unaffected
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return false
	}
	heap.Remove(&c.order, e.heapIdx)
	delete(c.items, key)
	return true
}

// SetMax changes the capacity, shrinking evicts immediately
func (c *LRU[K, V]) SetMax(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.max = n
	c.evict()
}

func (c *LRU[K, V]) Max() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.max
}

func (c *LRU[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// PercentageUsed is Size relative to Max, 0..100
func (c *LRU[K, V]) PercentageUsed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.max <= 0 {
		return 0
	}
	return float64(len(c.items)) / float64(c.max) * 100
}

func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*entry[K, V])
	c.order = nil
}

// Keys returns the keys from least to most recently used
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Pop from copies, heapIdx of the live entries must not change
	h := make(evictionHeap[K, V], len(c.order))
	for i, e := range c.order {
		cp := *e
		cp.heapIdx = i
		h[i] = &cp
	}
	keys := make([]K, 0, len(h))
	for h.Len() > 0 {
		keys = append(keys, heap.Pop(&h).(*entry[K, V]).key)
	}
	return keys
}

func (c *LRU[K, V]) touch(e *entry[K, V]) {
	c.counter++
	e.touched = c.counter
	heap.Fix(&c.order, e.heapIdx)
}

func (c *LRU[K, V]) evict() {
	for len(c.items) > c.max && c.order.Len() > 0 {
		oldest := heap.Pop(&c.order).(*entry[K, V])
		delete(c.items, oldest.key)
		if c.onEvict != nil {
			c.onEvict(oldest.key, oldest.value)
		}
	}
}
