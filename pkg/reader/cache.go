package reader

import (
	"fmt"
	"sync"
	"time"

	"github.com/jdeisenh/tlplay/pkg/mediapath"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	reader  Reader
	lastUse time.Time
	refs    int
}

// Cache keeps readers open between requests. Concurrent opens of the same
// media share a single open.
type Cache struct {
	mu       sync.Mutex
	readers  map[string]*cacheEntry
	group    singleflight.Group
	registry *Registry
	opts     OpenOptions
	logger   zerolog.Logger
	now      func() time.Time
}

func NewCache(registry *Registry, opts OpenOptions) *Cache {
	return &Cache{
		readers:  make(map[string]*cacheEntry),
		registry: registry,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "readercache").Logger(),
		now:      time.Now,
	}
}

// MediaKey names the media of p: all frames of a sequence share one key
func (c *Cache) MediaKey(p mediapath.Path) string {
	if c.registry.TypeOf(p) == Sequence {
		return p.Key()
	}
	return p.String()
}

func (c *Cache) cacheKey(p mediapath.Path, mem *mediapath.MemoryRange) string {
	if mem == nil {
		return c.MediaKey(p)
	}
	return fmt.Sprintf("%s@%d+%d", c.MediaKey(p), mem.Offset, mem.Size)
}

// Acquire returns the reader for p together with a release function. The
// reader is not closed by Sweep while acquired.
func (c *Cache) Acquire(p mediapath.Path, mem *mediapath.MemoryRange) (Reader, func(), error) {
	key := c.cacheKey(p, mem)
	_, err, shared := c.group.Do(key, func() (any, error) {
		c.mu.Lock()
		_, ok := c.readers[key]
		c.mu.Unlock()
		if ok {
			return nil, nil
		}
		opts := c.opts
		opts.Memory = mem
		r, err := c.registry.Open(p, opts)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.readers[key] = &cacheEntry{reader: r, lastUse: c.now()}
		c.mu.Unlock()
		c.logger.Debug().Str("path", p.String()).Msg("Open reader")
		return nil, nil
	})
	if err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.readers[key]
	if !ok {
		// Swept between open and here, rare enough to just fail the request
		return nil, nil, fmt.Errorf("%s: %w", key, ErrClosed)
	}
	if shared {
		c.logger.Trace().Str("path", key).Msg("Shared open")
	}
	e.refs++
	e.lastUse = c.now()
	var once sync.Once
	release := func() {
		once.Do(func() {
			c.mu.Lock()
			e.refs--
			e.lastUse = c.now()
			c.mu.Unlock()
		})
	}
	return e.reader, release, nil
}

// Sweep closes readers unused for longer than idle, returns how many
func (c *Cache) Sweep(idle time.Duration) int {
	now := c.now()
	c.mu.Lock()
	victims := make([]Reader, 0)
	for key, e := range c.readers {
		if e.refs > 0 || now.Sub(e.lastUse) <= idle {
			continue
		}
		victims = append(victims, e.reader)
		delete(c.readers, key)
		c.logger.Debug().Str("path", key).Msg("Close idle reader")
	}
	c.mu.Unlock()
	for _, r := range victims {
		r.Close()
	}
	return len(victims)
}

// Len is the number of open readers
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.readers)
}

// CancelRequests forwards to every open reader
func (c *Cache) CancelRequests() {
	c.mu.Lock()
	readers := make([]Reader, 0, len(c.readers))
	for _, e := range c.readers {
		readers = append(readers, e.reader)
	}
	c.mu.Unlock()
	for _, r := range readers {
		r.CancelRequests()
	}
}

// Close closes all readers
func (c *Cache) Close() {
	c.mu.Lock()
	readers := c.readers
	c.readers = make(map[string]*cacheEntry)
	c.mu.Unlock()
	for _, e := range readers {
		e.reader.Close()
	}
}
