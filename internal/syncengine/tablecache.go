package syncengine

import (
	"sync"
	"time"
)

// tableCache remembers which remote tables reported "relation does not
// exist" so the engine degrades to local-only behavior instead of
// failing every call.
//
// The cache is owned by the engine instance, never process-global, and
// entries expire after a TTL so a table created later is picked up
// without a restart. Invalidate clears an entry explicitly.
type tableCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	missing map[string]time.Time // table -> deadline after which to recheck
	now     func() time.Time
}

func newTableCache(ttl time.Duration) *tableCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &tableCache{
		ttl:     ttl,
		missing: make(map[string]time.Time),
		now:     time.Now,
	}
}

// MarkMissing records that a table does not exist remotely.
func (c *tableCache) MarkMissing(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missing[table] = c.now().Add(c.ttl)
}

// IsMissing reports whether the table is known to be missing and the
// knowledge has not expired yet.
func (c *tableCache) IsMissing(table string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline, ok := c.missing[table]
	if !ok {
		return false
	}
	if c.now().After(deadline) {
		delete(c.missing, table)
		return false
	}
	return true
}

// Invalidate forgets the cached state for a table.
func (c *tableCache) Invalidate(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.missing, table)
}
