package cache

import (
	"errors"
	"slices"
	"strconv"
	"sync"
	"testing"
)

func TestCacheGetPut(t *testing.T) {
	c := New[string, int](4)
	if _, ok := c.Get("a"); ok {
		t.Fatal("Get on empty cache should miss")
	}
	c.Put("a", 1)
	c.Put("b", 2)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	c.Put("a", 3)
	if v, _ := c.Get("a"); v != 3 {
		t.Errorf("Get(a) after replace = %d, want 3", v)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](3)
	var gone []string
	c.OnEvict(func(k string, _ int) { gone = append(gone, k) })

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	c.Get("a") // b is now the oldest
	c.Put("d", 4)

	if !slices.Equal(gone, []string{"b"}) {
		t.Errorf("evicted %v, want [b]", gone)
	}
	if got := c.Keys(); !slices.Equal(got, []string{"d", "a", "c"}) {
		t.Errorf("Keys() = %v", got)
	}
	if s := c.Stats(); s.Evictions != 1 || s.Len != 3 || s.Capacity != 3 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestCacheRemoveAndClear(t *testing.T) {
	c := New[int, string](0)
	if c.Capacity() != DefaultCapacity {
		t.Errorf("Capacity() = %d, want %d", c.Capacity(), DefaultCapacity)
	}
	var released int
	c.OnEvict(func(int, string) { released++ })
	for i := range 5 {
		c.Put(i, strconv.Itoa(i))
	}
	if !c.Remove(2) || c.Remove(2) {
		t.Error("Remove should report presence exactly once")
	}
	c.Clear()
	if c.Len() != 0 || released != 5 {
		t.Errorf("after Clear: Len=%d released=%d", c.Len(), released)
	}
}

func TestCacheGetOrCreate(t *testing.T) {
	c := New[string, int](8)
	calls := 0
	create := func() (int, error) { calls++; return 7, nil }
	for range 3 {
		v, err := c.GetOrCreate("k", create)
		if err != nil || v != 7 {
			t.Fatalf("GetOrCreate() = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrCreate("bad", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if _, ok := c.Peek("bad"); ok {
		t.Error("failed create must not be cached")
	}
}

func TestCacheStats(t *testing.T) {
	c := New[string, int](2)
	c.Put("a", 1)
	c.Get("a")
	c.Get("zz")
	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.HitRate != 0.5 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := New[int, int](32)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				k := (g*200 + i) % 64
				c.Put(k, i)
				c.Get(k)
			}
		}()
	}
	wg.Wait()
	if c.Len() > 32 {
		t.Errorf("Len() = %d exceeds capacity", c.Len())
	}
}

func TestCacheRecencyOrder(t *testing.T) {
	c := New[string, int](3)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	c.Get("a")
	c.Put("d", 4) // evicts b
	if got := c.Keys(); !slices.Equal(got, []string{"d", "a", "c"}) {
		t.Errorf("Keys() = %v, want [d a c]", got)
	}
	c.Remove("a")
	c.Put("e", 5)
	c.Put("f", 6) // evicts c
	if got := c.Keys(); !slices.Equal(got, []string{"f", "e", "d"}) {
		t.Errorf("Keys() = %v, want [f e d]", got)
	}
	c.Clear()
	c.Put("g", 7)
	if got := c.Keys(); !slices.Equal(got, []string{"g"}) {
		t.Errorf("Keys() after Clear = %v", got)
	}
}
