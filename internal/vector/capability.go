package vector

import (
	"context"
	"sync"
)

// Capabilities is what a backend probe learned about a datastore.
type Capabilities struct {
	Native    bool
	IndexKind IndexKind
	Version   string
}

// ProbeFunc inspects a datastore.
type ProbeFunc func(ctx context.Context) (Capabilities, error)

// CapabilityCache memoizes probe results per connection descriptor.
//
// Entries never expire. If the datastore changes underneath (an extension is
// installed or an index is built) call Invalidate and reopen the store.
// Failed probes are not cached.
type CapabilityCache struct {
	mu      sync.Mutex
	entries map[string]Capabilities
	probes  int
}

// NewCapabilityCache returns an empty cache.
func NewCapabilityCache() *CapabilityCache {
	return &CapabilityCache{entries: make(map[string]Capabilities)}
}

// Resolve returns the cached capabilities for descriptor, running probe on a miss.
// A nil cache always probes.
func (c *CapabilityCache) Resolve(ctx context.Context, descriptor string, probe ProbeFunc) (Capabilities, error) {
	if c == nil {
		return probe(ctx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if caps, ok := c.entries[descriptor]; ok {
		return caps, nil
	}
	caps, err := probe(ctx)
	c.probes++
	if err != nil {
		return Capabilities{}, err
	}
	c.entries[descriptor] = caps
	return caps, nil
}

// Invalidate drops every cached entry.
func (c *CapabilityCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Capabilities)
}
