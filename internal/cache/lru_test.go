package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLRU_GetSet(t *testing.T) {
	c := New[string, int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v; want 1, true", v, ok)
	}

	// "b" is now least recently used
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestLRU_Expiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string, string](10, 5*time.Minute).WithClock(clock.Now)

	c.Set("catalog", "v1")
	clock.Advance(4 * time.Minute)
	if _, ok := c.Get("catalog"); !ok {
		t.Fatal("entry expired too early")
	}

	clock.Advance(2 * time.Minute)
	if _, ok := c.Get("catalog"); ok {
		t.Fatal("entry should have expired")
	}
}

func TestLRU_PeekStale(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string, string](10, time.Minute).WithClock(clock.Now)

	c.Set("k", "v")
	clock.Advance(2 * time.Minute)

	v, present, fresh := c.Peek("k")
	if !present || fresh || v != "v" {
		t.Errorf("Peek() = %q, %v, %v; want v, true, false", v, present, fresh)
	}
}

func TestLRU_CleanupExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[int, int](10, time.Minute).WithClock(clock.Now)

	for i := 0; i < 5; i++ {
		c.Set(i, i)
	}
	clock.Advance(2 * time.Minute)
	c.Set(99, 99)

	if removed := c.CleanupExpired(); removed != 5 {
		t.Errorf("CleanupExpired() = %d, want 5", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestLRU_Stats(t *testing.T) {
	c := New[string, int](3, time.Minute)
	c.Set("a", 1)
	c.Get("a")
	c.Get("missing")

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Size != 1 || s.Capacity != 3 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := New[int, int](100, time.Minute)
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Set(g*1000+i, i)
				c.Get(g*1000 + i)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 100 {
		t.Errorf("Len() = %d, exceeds capacity", c.Len())
	}
}
