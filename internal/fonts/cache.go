package fonts

import (
	"os"
	"sync"
)

// Finder performs an uncached font lookup.
type Finder interface {
	Locate() (*Font, error)
}

// Cache memoizes a Finder's result. The whole check-then-populate sequence
// runs under one lock, so concurrent callers trigger a single lookup.
// Failed lookups are not cached.
type Cache struct {
	finder Finder

	mu      sync.Mutex
	font    *Font
	lookups int
}

// NewCache returns a cache in front of finder.
func NewCache(finder Finder) *Cache {
	return &Cache{finder: finder}
}

// Get returns the cached font, locating it on first use or when the cached
// file has since disappeared from disk.
func (c *Cache) Get() (*Font, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.font != nil && c.stillValid() {
		return c.font, nil
	}

	c.lookups++
	f, err := c.finder.Locate()
	if err != nil {
		c.font = nil
		return nil, err
	}
	c.font = f
	return f, nil
}

// Reset drops the cached font so the next Get looks again.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.font = nil
}

// Lookups returns how many times the Finder has been consulted.
func (c *Cache) Lookups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookups
}

func (c *Cache) stillValid() bool {
	if c.font.Embedded() {
		return true
	}
	_, err := os.Stat(c.font.Path)
	return err == nil
}
