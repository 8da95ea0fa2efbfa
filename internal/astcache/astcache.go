// Package astcache keeps parsed syntax trees for reuse across passes
// under an LRU policy bounded by entry count and total source bytes.
//
// Callers check trees out and release them when done. A checkout pins the
// tree: eviction removes it from the cache immediately but the underlying
// tree is only closed once the last checkout is released. A miss after
// eviction is transparent — the caller's parse function runs again.
package astcache

import (
	"container/list"
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

const (
	DefaultMaxEntries = 512
	DefaultMaxBytes   = 256 << 20
)

type entry struct {
	key     string
	tree    *tree_sitter.Tree
	source  []byte
	size    int64
	refs    int
	evicted bool
	elem    *list.Element
}

// Cache is a bounded LRU of parsed trees keyed by file path.
// Safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	maxBytes   int64
	curBytes   int64
	ll         *list.List // front = most recently used
	items      map[string]*entry

	hits      int64
	misses    int64
	evictions int64
}

// New creates a cache bounded by maxEntries and maxBytes of source text.
// Zero values select the defaults.
func New(maxEntries int, maxBytes int64) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Cache{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		ll:         list.New(),
		items:      make(map[string]*entry),
	}
}

// Checkout is a pinned reference to a cached tree. Release it when done;
// using Tree or Source after Release is a bug.
type Checkout struct {
	Tree   *tree_sitter.Tree
	Source []byte

	c *Cache
	e *entry
}

// Release unpins the checkout. The tree is closed here if it was evicted
// while checked out and this was the last reference.
func (co *Checkout) Release() {
	if co.c == nil {
		return
	}
	co.c.release(co.e)
	co.c = nil
	co.e = nil
}

// ParseFunc produces a tree and the source it was parsed from.
// The cache owns both on success.
type ParseFunc func() (*tree_sitter.Tree, []byte, error)

// Acquire returns a checked-out tree for key, parsing on miss.
func (c *Cache) Acquire(key string, parse ParseFunc) (*Checkout, error) {
	c.mu.Lock()
	if e, ok := c.items[key]; ok {
		c.hits++
		c.ll.MoveToFront(e.elem)
		e.refs++
		c.mu.Unlock()
		return &Checkout{Tree: e.tree, Source: e.source, c: c, e: e}, nil
	}
	c.misses++
	c.mu.Unlock()

	// Parse outside the lock; CPU-bound work must not serialize workers.
	tree, source, err := parse()
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, fmt.Errorf("parse returned nil tree for %s", key)
	}

	e := &entry{key: key, tree: tree, source: source, size: int64(len(source)), refs: 1}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another worker may have raced us in; prefer the cached one.
	if prev, ok := c.items[key]; ok {
		c.ll.MoveToFront(prev.elem)
		prev.refs++
		tree.Close()
		return &Checkout{Tree: prev.tree, Source: prev.source, c: c, e: prev}, nil
	}

	e.elem = c.ll.PushFront(e)
	c.items[key] = e
	c.curBytes += e.size
	c.evictLocked()

	return &Checkout{Tree: e.tree, Source: e.source, c: c, e: e}, nil
}

// evictLocked drops least-recently-used entries until both bounds hold.
// Entries still checked out are dropped from the index but closed lazily.
func (c *Cache) evictLocked() {
	for c.ll.Len() > c.maxEntries || c.curBytes > c.maxBytes {
		back := c.ll.Back()
		if back == nil {
			return
		}
		e := back.Value.(*entry)
		c.ll.Remove(back)
		delete(c.items, e.key)
		c.curBytes -= e.size
		c.evictions++
		e.evicted = true
		e.elem = nil
		if e.refs == 0 {
			e.tree.Close()
		}
	}
}

func (c *Cache) release(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.refs--
	if e.refs == 0 && e.evicted {
		e.tree.Close()
	}
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Bytes returns the resident source byte total.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}

// Stats reports hit/miss/eviction counters.
func (c *Cache) Stats() (hits, misses, evictions int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}

// Purge closes every unreferenced tree and empties the cache.
// Call at the end of a run.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.items {
		delete(c.items, key)
		e.evicted = true
		e.elem = nil
		if e.refs == 0 {
			e.tree.Close()
		}
	}
	c.ll.Init()
	c.curBytes = 0
}
