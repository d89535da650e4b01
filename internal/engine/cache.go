package engine

import (
	"container/list"
	"sync"
)

// cacheCapacity is the bounded LRU's capacity, per spec.md §3.
const cacheCapacity = 1024

type cacheItem struct {
	key   string
	value string
}

// lruCache is a doubly-linked recency list plus a hash index keyed by
// string, per spec.md §3/§4's read cache. On hit, the item moves to the
// front; on a miss insert, the tail is evicted once capacity is reached.
// mu guards both the list and the index, per spec.md §5's cache_mutex.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	list     *list.List
	index    map[string]*list.Element
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		list:     list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		return "", false
	}
	c.list.MoveToFront(el)
	return el.Value.(*cacheItem).value, true
}

// put inserts or updates key, splicing to the front on either path.
func (c *lruCache) put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		el.Value.(*cacheItem).value = value
		c.list.MoveToFront(el)
		return
	}
	if c.list.Len() >= c.capacity {
		tail := c.list.Back()
		if tail != nil {
			c.list.Remove(tail)
			delete(c.index, tail.Value.(*cacheItem).key)
		}
	}
	el := c.list.PushFront(&cacheItem{key: key, value: value})
	c.index[key] = el
}

func (c *lruCache) evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.list.Remove(el)
		delete(c.index, key)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}
