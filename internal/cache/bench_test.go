package cache

import (
	"strconv"
	"testing"
)

func BenchmarkCacheGet(b *testing.B) {
	c := New[string, int](1000)
	for i := range 100 {
		c.Put(strconv.Itoa(i), i)
	}
	for b.Loop() {
		c.Get("50")
	}
}

func BenchmarkCachePut(b *testing.B) {
	c := New[string, int](64)
	i := 0
	for b.Loop() {
		c.Put(strconv.Itoa(i%100), i)
		i++
	}
}
