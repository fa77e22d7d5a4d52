package registry

// CacheEntry is one memoized lookup. A nil Release with an empty Version
// records that nothing qualified, which is a result like any other.
type CacheEntry struct {
	Release *ReleaseInfo
	// Version holds Homebrew lookups, which have no ReleaseInfo
	Version string
}

// Cache memoizes lookups for the lifetime of one run, keyed by
// Source.Key(). Failed lookups are never stored so a later call retries.
// A Cache is not safe for concurrent use.
type Cache struct {
	entries map[string]CacheEntry
	hits    int
	misses  int
}

// NewCache creates an empty per-run cache
func NewCache() *Cache {
	return &Cache{entries: make(map[string]CacheEntry)}
}

// Get returns the memoized entry for key
func (c *Cache) Get(key string) (CacheEntry, bool) {
	entry, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return entry, ok
}

// Set stores entry under key, replacing any previous value
func (c *Cache) Set(key string, entry CacheEntry) {
	c.entries[key] = entry
}

// Len returns the number of entries in the cache
func (c *Cache) Len() int {
	return len(c.entries)
}

// Stats returns the number of hits and misses observed by Get
func (c *Cache) Stats() (hits, misses int) {
	return c.hits, c.misses
}
