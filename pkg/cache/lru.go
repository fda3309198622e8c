package cache

import "sync"

type lruNode[K comparable, V any] struct {
	key        K
	value      V
	prev, next *lruNode[K, V]
}

// LRU is a fixed-capacity map that evicts the least recently used key.
// It is safe for concurrent use.
//
// The evict callback runs for every entry leaving the cache (capacity
// eviction, Remove and Purge) while the LRU's lock is held, so it must not
// call back into the same LRU.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	nodes    map[K]*lruNode[K, V]
	// root.next is the most recently used node, root.prev the least.
	root    lruNode[K, V]
	onEvict func(K, V)
}

// NewLRU panics if capacity is not positive. onEvict may be nil.
func NewLRU[K comparable, V any](capacity int, onEvict func(K, V)) *LRU[K, V] {
	if capacity <= 0 {
		panic("cache: LRU capacity must be positive")
	}
	c := &LRU[K, V]{
		capacity: capacity,
		nodes:    make(map[K]*lruNode[K, V], capacity),
		onEvict:  onEvict,
	}
	c.root.next = &c.root
	c.root.prev = &c.root
	return c
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.unlink(n)
	c.pushFront(n)
	return n.value, true
}

// Peek returns the value for key without touching its recency.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.nodes[key]; ok {
		return n.value, true
	}
	var zero V
	return zero, false
}

// Add stores value under key and reports whether an older entry had to be
// evicted to make room. Replacing a key does not invoke the evict callback.
func (c *LRU[K, V]) Add(key K, value V) (evicted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.nodes[key]; ok {
		n.value = value
		c.unlink(n)
		c.pushFront(n)
		return false
	}

	n := &lruNode[K, V]{key: key, value: value}
	c.nodes[key] = n
	c.pushFront(n)
	if len(c.nodes) <= c.capacity {
		return false
	}
	c.drop(c.root.prev)
	return true
}

func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[key]
	if ok {
		c.drop(n)
	}
	return ok
}

// Keys lists keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.nodes))
	for n := c.root.next; n != &c.root; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nodes)
}

// Purge removes every entry.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.root.next != &c.root {
		c.drop(c.root.next)
	}
}

func (c *LRU[K, V]) drop(n *lruNode[K, V]) {
	c.unlink(n)
	delete(c.nodes, n.key)
	if c.onEvict != nil {
		c.onEvict(n.key, n.value)
	}
}

func (c *LRU[K, V]) unlink(n *lruNode[K, V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
}

func (c *LRU[K, V]) pushFront(n *lruNode[K, V]) {
	n.prev = &c.root
	n.next = c.root.next
	c.root.next.prev = n
	c.root.next = n
}
