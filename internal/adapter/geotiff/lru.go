package geotiff

import "sync"

// lruCache keeps a bounded set of open raster handles keyed by path.
// Evicted handles are returned to the caller, which closes them outside the
// cache lock.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value *handle
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (*handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

// putIfAbsent stores value unless key is already cached. It returns the
// handle now cached under key and any handles that must be closed: the
// evicted tail, or value itself when it lost the race.
func (c *lruCache) putIfAbsent(key string, value *handle) (*handle, []*handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.moveToFront(e)
		return e.value, []*handle{value}
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	var evicted []*handle
	for len(c.entries) > c.maxEntries {
		evicted = append(evicted, c.evictTail())
	}
	return value, evicted
}

// drain empties the cache and returns every handle it held.
func (c *lruCache) drain() []*handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*handle, 0, len(c.entries))
	for c.tail != nil {
		out = append(out, c.evictTail())
	}
	return out
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() *handle {
	t := c.tail
	delete(c.entries, t.key)
	c.remove(t)
	return t.value
}
