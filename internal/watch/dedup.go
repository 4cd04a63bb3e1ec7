package watch

// DedupCache is a bounded, insertion-ordered set of recently seen item
// identifiers, used by sources whose listing API carries no cursoring
// guarantee. Eviction is strict FIFO by insertion order: an identifier
// leaving the cache means it has aged out of the recall window.
//
// Not safe for concurrent use; each source owns its cache and mutates it
// only from its own guarded scan.
type DedupCache struct {
	capacity int
	order    []string
	seen     map[string]struct{}
}

func NewDedupCache(capacity int) *DedupCache {
	if capacity < 1 {
		capacity = 1
	}
	return &DedupCache{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

// Seen reports whether id is inside the current recall window.
func (c *DedupCache) Seen(id string) bool {
	_, ok := c.seen[id]
	return ok
}

// Add records id, evicting the earliest-inserted identifier when the cache
// is full. Adding an identifier already present is a no-op; insertion order
// is not refreshed.
func (c *DedupCache) Add(id string) {
	if _, ok := c.seen[id]; ok {
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.seen, oldest)
	}
	c.order = append(c.order, id)
	c.seen[id] = struct{}{}
}

// Len returns the number of identifiers currently held.
func (c *DedupCache) Len() int {
	return len(c.order)
}

// Snapshot returns the held identifiers oldest first.
func (c *DedupCache) Snapshot() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}
