package dedupe

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/k544228/for-news/internal/models"
)

type entry struct {
	id string
	ts time.Time
}

type version struct {
	fingerprint string
	ts          time.Time
}

// Cache remembers which version of each news item was indexed last, bounded by
// capacity and ttl. The oldest ids are forgotten first.
type Cache struct {
	mu       sync.Mutex
	items    map[string]version
	order    []entry
	capacity int
	ttl      time.Duration
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		items:    make(map[string]version, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Fingerprint hashes the full content of an item.
func Fingerprint(item models.NewsItem) string {
	data, err := json.Marshal(item)
	if err != nil {
		return ""
	}
	s := sha1.Sum(data)
	return hex.EncodeToString(s[:])
}

// IsCurrent reports whether item was recorded with identical content inside the ttl window.
// It does not record anything; use MarkIndexed() after a successful write.
func (c *Cache) IsCurrent(item models.NewsItem) bool {
	fp := Fingerprint(item)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.items[item.ID]
	return ok && v.fingerprint == fp && now.Sub(v.ts) <= c.ttl
}

// MarkIndexed records the content currently indexed for item.ID.
func (c *Cache) MarkIndexed(item models.NewsItem) {
	fp := Fingerprint(item)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[item.ID] = version{fingerprint: fp, ts: now}
	c.order = append(c.order, entry{id: item.ID, ts: now})
	c.compact(now)
}

// Forget drops id, used when the item is deleted from the index.
func (c *Cache) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, id)
}

// Len reports how many ids are remembered.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

func (c *Cache) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		if v, ok := c.items[oldest.id]; ok && v.ts.Equal(oldest.ts) {
			delete(c.items, oldest.id)
		}
	}
}
