// Package headercache keeps Last-Modified response headers around for a
// few minutes so page analysis can consult them without refetching.
package headercache

import (
	"time"

	"github.com/coocood/freecache"

	"github.com/stalehq/staleness/internal/freshness"
)

const (
	// defaultTTL matches the auto-purge window of captured headers.
	defaultTTL = 5 * time.Minute
	// cacheSize bounds memory at 1MB; header strings are tiny.
	cacheSize = 1024 * 1024
)

// Cache is a transient, bounded store of raw Last-Modified header values
// keyed by normalized URL. It is owned by the engine and cleared on
// restart; nothing here is persisted.
type Cache struct {
	cache *freecache.Cache
	ttl   time.Duration
}

// New creates a Cache with the default TTL.
func New() *Cache {
	return NewWithTTL(defaultTTL)
}

// NewWithTTL creates a Cache with a custom TTL.
func NewWithTTL(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		cache: freecache.NewCache(cacheSize),
		ttl:   ttl,
	}
}

// Record stores the raw Last-Modified value for a URL. Unnormalizable URLs
// and empty values are ignored.
func (c *Cache) Record(rawURL, lastModified string) {
	if lastModified == "" {
		return
	}
	normalized, err := freshness.NormalizeURL(rawURL)
	if err != nil {
		return
	}
	_ = c.cache.Set([]byte(normalized), []byte(lastModified), int(c.ttl.Seconds()))
}

// Lookup returns the recorded header value for a URL, if still present.
func (c *Cache) Lookup(rawURL string) (string, bool) {
	normalized, err := freshness.NormalizeURL(rawURL)
	if err != nil {
		return "", false
	}
	val, err := c.cache.Get([]byte(normalized))
	if err != nil {
		return "", false
	}
	return string(val), true
}
