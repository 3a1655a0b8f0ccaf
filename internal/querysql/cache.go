package querysql

import (
	"context"
	"sync"

	"github.com/objectledge/coral/internal/event"
)

// Cache memoizes compiled queries by statement text. Any schema change
// published on the hub drops every entry, since compiled SQL embeds class
// ids, attribute ids and join layout.
type Cache struct {
	compiler *Compiler

	mu      sync.Mutex
	entries map[string]*CompiledQuery
	gen     uint64 // bumped by Purge
	hits    uint64
	misses  uint64

	unregister func()
}

// NewCache creates a cache in front of compiler. When hub is non-nil the
// cache registers for every schema event on it.
func NewCache(compiler *Compiler, hub *event.Hub) *Cache {
	c := &Cache{
		compiler: compiler,
		entries:  make(map[string]*CompiledQuery),
	}
	if hub != nil {
		c.unregister = hub.RegisterAll(event.ListenerFunc(func(_ context.Context, e event.Event) {
			c.Purge()
			compiler.log.Debugw("query cache purged", "event", e.Kind.String(), "class", e.Class)
		}))
	}
	return c
}

// CompileText returns the cached compilation of text, compiling it on a
// miss. Failed compilations are not cached.
func (c *Cache) CompileText(text string) (*CompiledQuery, error) {
	c.mu.Lock()
	if cq, ok := c.entries[text]; ok {
		c.hits++
		c.mu.Unlock()
		return cq, nil
	}
	c.misses++
	gen := c.gen
	c.mu.Unlock()

	cq, err := c.compiler.CompileText(text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// a purge during compilation means cq may already be stale
	if c.gen == gen {
		c.entries[text] = cq
	}
	c.mu.Unlock()
	return cq, nil
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[string]*CompiledQuery)
}

// Len returns the number of cached statements.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Close unregisters the cache from the hub.
func (c *Cache) Close() {
	if c.unregister != nil {
		c.unregister()
		c.unregister = nil
	}
}
