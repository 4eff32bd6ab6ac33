package tools

import (
	"sync"
)

type ConcurrentMap[K comparable, V any] struct {
	m map[K]V
	sync.RWMutex
}

func NewConcurrentMap[K comparable, V any]() *ConcurrentMap[K, V] {
	return &ConcurrentMap[K, V]{
		m: make(map[K]V),
	}
}

func (c *ConcurrentMap[K, V]) Get(k K) (V, bool) {
	c.RLock()
	defer c.RUnlock()
	v, ok := c.m[k]
	return v, ok
}

func (c *ConcurrentMap[K, V]) Set(k K, v V) {
	c.Lock()
	defer c.Unlock()
	c.m[k] = v
}

// GetOrCreate returns the value of k, creating it with create if absent.
// create runs at most once per key.
func (c *ConcurrentMap[K, V]) GetOrCreate(k K, create func() V) V {
	c.RLock()
	v, ok := c.m[k]
	c.RUnlock()
	if ok {
		return v
	}

	c.Lock()
	defer c.Unlock()
	if v, ok := c.m[k]; ok {
		return v
	}
	v = create()
	c.m[k] = v
	return v
}

func (c *ConcurrentMap[K, V]) DoAndSet(k K, do func(V, bool) V) {
	c.Lock()
	defer c.Unlock()
	v, ok := c.m[k]
	newV := do(v, ok)
	c.m[k] = newV
}

// Values returns a snapshot of the values
func (c *ConcurrentMap[K, V]) Values() []V {
	c.RLock()
	defer c.RUnlock()
	values := make([]V, 0, len(c.m))
	for _, v := range c.m {
		values = append(values, v)
	}
	return values
}

func (c *ConcurrentMap[K, V]) Len() int {
	c.RLock()
	defer c.RUnlock()
	return len(c.m)
}
