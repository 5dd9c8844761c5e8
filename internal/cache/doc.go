// Package cache provides a generic, thread-safe LRU cache.
//
//	c := cache.New[string, *Texture](64)
//	c.OnEvict(func(key string, t *Texture) { t.release() })
//	c.Put("logo.png", tex)
//	t, ok := c.Get("logo.png")
//
// Eviction is strict least-recently-used. The eviction callback runs after
// the cache lock is released, so it may call back into the cache.
//
// A Cache must not be copied after creation (it contains a mutex).
package cache
