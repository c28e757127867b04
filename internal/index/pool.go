package index

import (
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"

	"github.com/outfitter-dev/blz/internal/blzerrors"
)

// lruCacheSize is the number of recent query results cached per
// reader (spec §4.4 "a small (e.g. 16-slot) LRU of recent query
// results").
const lruCacheSize = 16

// entry is a process-wide, reference-counted search-index snapshot.
// Writer commits publish a new directory; Invalidate swaps the pool's
// map entry atomically, and callers that already hold a reference via
// acquire/release keep working against the snapshot they were handed
// until they release it — they never observe a torn index.
type entry struct {
	idx   bleve.Index
	dir   string
	refs  atomic.Int32
	stale atomic.Bool
	cache *queryCache
}

func (e *entry) acquire() *entry {
	e.refs.Add(1)
	return e
}

func (e *entry) release() {
	if e.refs.Add(-1) == 0 && e.stale.Load() {
		_ = e.idx.Close()
	}
}

// Pool is the process-wide reader pool described in spec §4.4 and §5:
// a read-mostly map from source to reader snapshot, with a short
// writer lock on invalidation/open.
type Pool struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewPool creates an empty reader pool.
func NewPool() *Pool {
	return &Pool{entries: make(map[string]*entry)}
}

// Handle is a caller's lease on a pool entry. Callers must call
// Release when done; the underlying bleve.Index stays valid for the
// lifetime of the Handle regardless of concurrent Invalidate calls.
type Handle struct {
	e *entry
}

// Index returns the bleve.Index snapshot. Valid until Release.
func (h *Handle) Index() bleve.Index { return h.e.idx }

// Cache returns the handle's attached query-result LRU.
func (h *Handle) Cache() *queryCache { return h.e.cache }

// Release drops this caller's reference.
func (h *Handle) Release() { h.e.release() }

// Acquire returns a Handle for source, opening dir lazily if this is
// the first access since the process started or since the last
// Invalidate.
func (p *Pool) Acquire(source, dir string) (*Handle, error) {
	p.mu.RLock()
	if e, ok := p.entries[source]; ok {
		h := &Handle{e: e.acquire()}
		p.mu.RUnlock()
		return h, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[source]; ok { // re-check after acquiring the write lock
		return &Handle{e: e.acquire()}, nil
	}

	idx, err := bleve.Open(dir)
	if err != nil {
		return nil, blzerrors.NewIndexError(source, "open", err)
	}
	e := &entry{idx: idx, dir: dir, cache: newQueryCache(lruCacheSize)}
	e.refs.Store(1) // the pool's own reference
	p.entries[source] = e
	return &Handle{e: e.acquire()}, nil
}

// Invalidate removes source's cached snapshot so the next Acquire
// reopens it. Any Handles already issued keep working against their
// snapshot until released (spec §4.4: "any reader pool entry for that
// source is invalidated so that the next search re-opens").
func (p *Pool) Invalidate(source string) {
	p.mu.Lock()
	e, ok := p.entries[source]
	if ok {
		delete(p.entries, source)
	}
	p.mu.Unlock()

	if ok {
		e.stale.Store(true)
		e.release() // drop the pool's own reference
	}
}

// Sources returns every source currently cached in the pool (not the
// same as every indexed source on disk — only those that have been
// searched at least once since the process started or last
// invalidated).
func (p *Pool) Sources() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.entries))
	for s := range p.entries {
		out = append(out, s)
	}
	return out
}

// queryCache is a tiny fixed-capacity LRU keyed by the raw query
// string, caching already-merged hit slices for a single source.
// Optimization only — a miss just re-executes the query.
type queryCache struct {
	mu       sync.Mutex
	capacity int
	order    []string
	values   map[string]any
}

func newQueryCache(capacity int) *queryCache {
	return &queryCache{capacity: capacity, values: make(map[string]any, capacity)}
}

func (c *queryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if ok {
		c.touch(key)
	}
	return v, ok
}

func (c *queryCache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.values[key]; !exists && len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.values, oldest)
	}
	c.values[key] = value
	c.touch(key)
}

func (c *queryCache) touch(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, key)
}
