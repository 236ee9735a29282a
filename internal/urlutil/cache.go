package urlutil

import (
	"container/list"
	"sync"
)

// DefaultCacheSize bounds a Cache when no explicit capacity is given.
const DefaultCacheSize = 1024

// Cache memoizes URL decomposition results. It is owned by the caller and
// passed explicitly to the code that needs it; there is no hidden package
// state. Safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	cap   int
	order *list.List
	items map[string]*list.Element
}

type cacheEntry struct {
	url    string
	domain string
	path   string
	err    error
}

// NewCache creates a bounded cache. A capacity of zero or less uses
// DefaultCacheSize.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Cache{
		cap:   capacity,
		order: list.New(),
		items: make(map[string]*list.Element, capacity),
	}
}

// Split behaves like SplitDomainPath with memoization, including negative
// results. Least recently used entries are evicted once the cache is full.
func (c *Cache) Split(rawURL string) (string, string, error) {
	c.mu.Lock()
	if elem, ok := c.items[rawURL]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		c.mu.Unlock()
		return entry.domain, entry.path, entry.err
	}
	c.mu.Unlock()

	domain, path, err := SplitDomainPath(rawURL)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[rawURL]; !ok {
		c.items[rawURL] = c.order.PushFront(&cacheEntry{rawURL, domain, path, err})
		if c.order.Len() > c.cap {
			oldest := c.order.Back()
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).url)
		}
	}
	return domain, path, err
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element, c.cap)
}
