package backend

import (
	"time"

	"github.com/patrickmn/go-cache"

	"mortar/lib/model"
)

// CachedStatus is the last status successfully polled from a backend
type CachedStatus struct {
	Data      *model.StatusDocument
	Raw       []byte // status json as received
	FetchedAt time.Time
}

// StatusCache holds one CachedStatus per backend address.
// Entries older than the cache ttl are not returned.
type StatusCache struct {
	items *cache.Cache
	ttl   time.Duration
}

// NewStatusCache returns a status cache whose entries are fresh for ttl
func NewStatusCache(ttl time.Duration) *StatusCache {
	return &StatusCache{
		items: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// Get returns the fresh cached status of addr
func (sc *StatusCache) Get(addr string) (*CachedStatus, bool) {
	item, ok := sc.items.Get(addr)
	if !ok {
		return nil, false
	}
	return item.(*CachedStatus), true
}

// Set stores the status of addr, fresh from now for the cache ttl
func (sc *StatusCache) Set(addr string, status *CachedStatus) {
	sc.items.Set(addr, status, cache.DefaultExpiration)
}

// Flush removes every entry
func (sc *StatusCache) Flush() {
	sc.items.Flush()
}

// Len returns the number of entries (expired entries not yet purged included)
func (sc *StatusCache) Len() int {
	return sc.items.ItemCount()
}

// TTL returns the freshness window of the cache
func (sc *StatusCache) TTL() time.Duration {
	return sc.ttl
}
