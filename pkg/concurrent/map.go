// Package concurrent holds containers safe for use from several goroutines.
package concurrent

import "sync"

// Map is a map guarded by a read-write lock.
type Map[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{m: map[K]V{}}
}

func (c *Map[K, V]) Load(key K) (V, bool) {
	c.mu.RLock()
	v, ok := c.m[key]
	c.mu.RUnlock()
	return v, ok
}

func (c *Map[K, V]) Store(key K, value V) {
	c.mu.Lock()
	c.m[key] = value
	c.mu.Unlock()
}

func (c *Map[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

// LoadAndDelete removes key and returns the value it held, so that exactly
// one caller gets it.
func (c *Map[K, V]) LoadAndDelete(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.m[key]
	if ok {
		delete(c.m, key)
	}
	return v, ok
}

func (c *Map[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
