package embedding

import (
	"container/list"
	"context"
	"slices"
	"strings"
	"sync"
)

// CachedEmbedder wraps an Embedder with an LRU of results keyed by text. Repeated
// queries and unchanged chunks are embedded once per process.
type CachedEmbedder struct {
	Embedder

	capacity int
	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List
	hits     int
}

type cacheEntry struct {
	key    string
	result Result
}

// NewCachedEmbedder wraps e with a cache holding up to capacity results. A non-positive
// capacity returns e unchanged.
func NewCachedEmbedder(e Embedder, capacity int) Embedder {
	if capacity <= 0 {
		return e
	}
	return &CachedEmbedder{
		Embedder: e,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func (c *CachedEmbedder) get(text string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[text]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	c.hits++
	r := elem.Value.(*cacheEntry).result
	r.Vector = slices.Clone(r.Vector)
	return &r, true
}

func (c *CachedEmbedder) set(text string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[text]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).result = cloneResult(r)
		return
	}
	c.entries[text] = c.lru.PushFront(&cacheEntry{key: text, result: cloneResult(r)})
	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func cloneResult(r *Result) Result {
	out := *r
	out.Vector = slices.Clone(r.Vector)
	return out
}

// Embed returns the cached result for text or embeds and caches it. Errors are not cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (*Result, error) {
	if r, ok := c.get(text); ok {
		r.Index = 0
		return r, nil
	}
	r, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.set(text, r)
	return r, nil
}

// EmbedBatch serves cached texts locally and sends only the misses upstream, in one call.
// Result order and Index follow the wrapped embedder's contract.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]*Result, error) {
	byPos := make(map[int]*Result, len(texts))
	var (
		misses    []string
		positions []int
	)
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		if r, ok := c.get(t); ok {
			r.Index = i
			byPos[i] = r
			continue
		}
		misses = append(misses, t)
		positions = append(positions, i)
	}
	if len(misses) > 0 {
		fetched, err := c.Embedder.EmbedBatch(ctx, misses)
		if err != nil {
			return nil, err
		}
		for _, r := range fetched {
			if r.Index < 0 || r.Index >= len(positions) {
				continue
			}
			c.set(misses[r.Index], r)
			r.Index = positions[r.Index]
			byPos[r.Index] = r
		}
	}
	results := make([]*Result, 0, len(byPos))
	for i := range texts {
		if r, ok := byPos[i]; ok {
			results = append(results, r)
		}
	}
	return results, nil
}

// Len returns the number of cached results.
func (c *CachedEmbedder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Hits returns how many calls were answered from the cache.
func (c *CachedEmbedder) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}
