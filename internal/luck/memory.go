package luck

import (
	"context"
	"sync"
	"time"
)

type memKey struct {
	user int64
	day  string
}

// MemoryCache keeps scores in process. Entries of older days are dropped as
// soon as a newer day is seen.
type MemoryCache struct {
	mu      sync.Mutex
	day     string
	entries map[memKey]int
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[memKey]int{}}
}

func (c *MemoryCache) Claim(_ context.Context, userID int64, day string, score int, _ time.Duration) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if day > c.day {
		for k := range c.entries {
			if k.day < day {
				delete(c.entries, k)
			}
		}
		c.day = day
	}
	k := memKey{user: userID, day: day}
	if v, ok := c.entries[k]; ok {
		return v, false, nil
	}
	c.entries[k] = score
	return score, true, nil
}

// Len reports the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
