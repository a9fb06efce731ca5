// Package uploadcache holds parsed uploads between the preview and confirm
// steps. Entries live in process memory with a TTL and are expired lazily on
// read; a multi-instance deployment would need an external store instead.
package uploadcache

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"royaltydesk/internal/model"
)

// DefaultTTL is how long a pending upload stays claimable.
const DefaultTTL = 15 * time.Minute

// PendingUpload is one parsed report awaiting confirmation.
type PendingUpload struct {
	ID         string
	ContractID string
	Filename   string
	Sheet      *model.ParsedSheet
	Mapping    model.ColumnMapping
	Sources    map[string]model.MappingSource
	CreatedAt  time.Time
}

// Cache is a TTL arena keyed by generated upload ids. Each upload creates a
// fresh key, so there is at most one writer per key.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*PendingUpload
	now     func() time.Time
}

// New creates a Cache. A non-positive ttl falls back to DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]*PendingUpload),
		now:     time.Now,
	}
}

// Put stores a pending upload under a fresh id and returns the id.
func (c *Cache) Put(upload *PendingUpload) string {
	id := uuid.NewString()
	upload.ID = id
	upload.CreatedAt = c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = upload
	return id
}

// Get returns the pending upload for id, expiring it lazily if its TTL has
// passed. Expired or unknown ids report not found.
func (c *Cache) Get(id string) (*PendingUpload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.CreatedAt) > c.ttl {
		delete(c.entries, id)
		return nil, false
	}
	return entry, true
}

// Delete removes a pending upload, typically after confirmation.
func (c *Cache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Len reports how many entries are currently held, counting entries whose
// TTL has passed but which no read has evicted yet.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
