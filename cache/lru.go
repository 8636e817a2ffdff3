package cache

import (
	"container/list"
	"context"
	"sync"

	"github.com/n0madic/go-discrete-choice/model"
)

// LRU is a bounded in-memory front over another Store. Stored frames are
// copied. Loaded frames are shared between callers and must not be
// modified.
type LRU struct {
	mu       sync.Mutex
	next     Store
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front is most recently used
	writes   uint64     // bumped by Store and Clear

	hits, misses int
}

type lruEntry struct {
	name  string
	frame Frame
}

// NewLRU returns a cache of at most capacity frames in front of next.
func NewLRU(next Store, capacity int) *LRU {
	return &LRU{
		next:     next,
		capacity: max(1, capacity),
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func lruName(topic string, ci model.ComplexIndex) string { return ci.Name(topic) }

// Store writes through and refreshes the cached frame.
func (c *LRU) Store(ctx context.Context, topic string, ci model.ComplexIndex, f Frame) error {
	err := c.next.Store(ctx, topic, ci, f)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	if err != nil {
		c.remove(lruName(topic, ci))
		return err
	}
	c.put(lruName(topic, ci), f.Clone())
	return nil
}

func (c *LRU) Load(ctx context.Context, topic string, ci model.ComplexIndex) (Frame, error) {
	name := lruName(topic, ci)
	c.mu.Lock()
	if elem, ok := c.entries[name]; ok {
		c.order.MoveToFront(elem)
		c.hits++
		f := elem.Value.(*lruEntry).frame
		c.mu.Unlock()
		return f, nil
	}
	c.misses++
	writes := c.writes
	c.mu.Unlock()

	f, err := c.next.Load(ctx, topic, ci)
	if err != nil {
		return Frame{}, err
	}
	c.mu.Lock()
	// A write during the load may have made f stale.
	if c.writes == writes {
		c.put(name, f)
	}
	c.mu.Unlock()
	return f, nil
}

func (c *LRU) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.writes++
	c.mu.Unlock()
	return c.next.Clear(ctx)
}

func (c *LRU) Close() error { return c.next.Close() }

// Len returns the number of cached frames.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns the number of cache hits and misses.
func (c *LRU) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *LRU) put(name string, f Frame) {
	if elem, ok := c.entries[name]; ok {
		elem.Value.(*lruEntry).frame = f
		c.order.MoveToFront(elem)
		return
	}
	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		delete(c.entries, oldest.Value.(*lruEntry).name)
		c.order.Remove(oldest)
	}
	c.entries[name] = c.order.PushFront(&lruEntry{name: name, frame: f})
}

func (c *LRU) remove(name string) {
	if elem, ok := c.entries[name]; ok {
		delete(c.entries, name)
		c.order.Remove(elem)
	}
}
