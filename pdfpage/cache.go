package pdfpage

import (
	"container/list"
	"image"
)

// DefaultCapacity is the number of rendered pages kept in memory.
const DefaultCapacity = 5

// Cache is a fixed-capacity page cache with strict least-recently-used
// eviction. Both Get and Put refresh an entry's recency.
//
// A Cache is not safe for concurrent use. The pipeline only touches it from
// the dispatcher goroutine.
type Cache struct {
	capacity int
	order    *list.List // front = most recently used
	entries  map[int]*list.Element
}

type cacheEntry struct {
	page int
	img  image.Image
}

// NewCache returns an empty cache holding at most capacity pages. A
// non-positive capacity selects DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[int]*list.Element, capacity+1),
	}
}

// Capacity returns the maximum number of entries.
func (c *Cache) Capacity() int { return c.capacity }

// Get returns the bitmap for page and marks it most recently used.
func (c *Cache) Get(page int) (image.Image, bool) {
	el, ok := c.entries[page]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).img, true
}

// Contains reports whether page is cached without touching its recency.
func (c *Cache) Contains(page int) bool {
	_, ok := c.entries[page]
	return ok
}

// Put stores img for page as the most recently used entry. If the cache is
// over capacity afterwards, the least recently used entry is evicted and its
// page number returned.
func (c *Cache) Put(page int, img image.Image) (evicted int, ok bool) {
	if el, exists := c.entries[page]; exists {
		el.Value.(*cacheEntry).img = img
		c.order.MoveToFront(el)
		return 0, false
	}
	c.entries[page] = c.order.PushFront(&cacheEntry{page: page, img: img})
	if c.order.Len() <= c.capacity {
		return 0, false
	}
	oldest := c.order.Back()
	c.order.Remove(oldest)
	e := oldest.Value.(*cacheEntry)
	delete(c.entries, e.page)
	return e.page, true
}

// Len returns the number of cached pages.
func (c *Cache) Len() int { return c.order.Len() }

// Keys returns the cached pages from most to least recently used.
func (c *Cache) Keys() []int {
	keys := make([]int, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*cacheEntry).page)
	}
	return keys
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.order.Init()
	clear(c.entries)
}
