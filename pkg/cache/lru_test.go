package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvictLeastRecentlyTouched(t *testing.T) {
	c := NewLRU[int, string](3)
	c.Add(1, "a")
	c.Add(2, "b")
	c.Add(3, "c")
	assert.Equal(t, "a", c.Get(1).MustGet())
	c.Add(4, "d")

	assert.ElementsMatch(t, []int{1, 3, 4}, c.Keys())
	assert.False(t, c.Contains(2))
	assert.Equal(t, 3, c.Size())
}

func TestInsertionOrderWithoutReads(t *testing.T) {
	c := NewLRU[int, int](2)
	for i := 0; i < 5; i++ {
		c.Add(i, i*i)
	}
	assert.Equal(t, []int{3, 4}, c.Keys())
}

func TestSizeAndRetention(t *testing.T) {
	var testdata = []struct {
		max     int
		inserts int
		size    int
	}{
		{10, 5, 5},
		{10, 10, 10},
		{10, 25, 10},
		{1, 3, 1},
	}
	for _, elem := range testdata {
		c := NewLRU[string, int](elem.max)
		for i := 0; i < elem.inserts; i++ {
			c.Add(fmt.Sprint(i), i)
		}
		assert.Equal(t, elem.size, c.Size())
		// The retained keys are the most recently touched ones
		for i := elem.inserts - elem.size; i < elem.inserts; i++ {
			assert.True(t, c.Contains(fmt.Sprint(i)))
		}
	}
}

func TestGetReturnsAdded(t *testing.T) {
	c := NewLRU[VideoKey, []byte](4)
	k := VideoKey{Path: "a.ppm"}
	c.Add(k, []byte{1, 2, 3})
	assert.Equal(t, []byte{1, 2, 3}, c.Get(k).OrEmpty())
	assert.True(t, c.Get(VideoKey{Path: "b.ppm"}).IsAbsent())

	c.Add(k, []byte{4})
	assert.Equal(t, []byte{4}, c.Get(k).OrEmpty())
	assert.Equal(t, 1, c.Size())
}

func TestRemoveLeavesOthers(t *testing.T) {
	c := NewLRU[int, int](5)
	for i := 0; i < 5; i++ {
		c.Add(i, i)
	}
	assert.True(t, c.Remove(2))
	assert.False(t, c.Remove(2))
	assert.Equal(t, []int{0, 1, 3, 4}, c.Keys())
	c.Add(5, 5)
	c.Add(6, 6)
	assert.Equal(t, []int{1, 3, 4, 5, 6}, c.Keys())
}

func TestSetMaxAndClear(t *testing.T) {
	c := NewLRU[int, int](4)
	var evicted []int
	c.OnEvict(func(k, _ int) { evicted = append(evicted, k) })
	for i := 0; i < 4; i++ {
		c.Add(i, i)
	}
	assert.Equal(t, 100.0, c.PercentageUsed())
	c.Get(0)
	c.SetMax(2)
	assert.Equal(t, []int{1, 2}, evicted)
	assert.Equal(t, []int{3, 0}, c.Keys())
	assert.Equal(t, 2, c.Max())

	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, 0.0, c.PercentageUsed())
	c.Add(9, 9)
	assert.True(t, c.Contains(9))
	assert.Equal(t, 0.0, NewLRU[int, int](0).PercentageUsed())
}

func TestConcurrentAccess(t *testing.T) {
	c := NewLRU[int, int](50)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := w*1000 + i
				c.Add(k, k)
				if v, ok := c.Get(k).Get(); ok {
					assert.Equal(t, k, v)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 50, c.Size())
}
