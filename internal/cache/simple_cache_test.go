package cache

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSimpleCache_SetGet_NoTTL(t *testing.T) {
	c := NewSimpleCache[string, int]()
	c.Set("a", 1, 0)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected hit with value 1, got ok=%v v=%v", ok, v)
	}
	if c.Len() != 1 {
		t.Fatalf("expected Len=1, got %d", c.Len())
	}
}

func TestSimpleCache_TTL_Expiry(t *testing.T) {
	c := NewSimpleCache[string, string]()

	// Freeze time via now indirection
	base := time.Now()
	now = func() time.Time { return base }
	t.Cleanup(func() { now = time.Now })

	c.Set("k", "v", time.Second)
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("expected hit before expiry")
	}

	// advance time beyond TTL
	base = base.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected miss after expiry")
	}
	c.PurgeExpired()
	if c.Len() != 0 {
		t.Fatalf("expected Len=0 after purge, got %d", c.Len())
	}
}

func TestSimpleCache_DeleteFunc(t *testing.T) {
	c := NewSimpleCache[string, int]()
	c.Set("cache:students:limit=1", 1, 0)
	c.Set("cache:students:limit=2", 2, 0)
	c.Set("cache:student:student_id=1", 3, 0)

	n := c.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, "cache:students:") })
	if n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if _, ok := c.Get("cache:student:student_id=1"); !ok {
		t.Fatalf("unrelated key must survive")
	}
	c.Delete("cache:student:student_id=1")
	if c.Len() != 0 {
		t.Fatalf("expected Len=0, got %d", c.Len())
	}
}

func TestSimpleCache_ConcurrentAccess(t *testing.T) {
	keys := 100
	rounds := 200

	c := NewSimpleCache[int, int]()
	var wg sync.WaitGroup
	for i := 0; i < keys; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				c.Set(i, r, 0)
				_, _ = c.Get(i)
				if r%50 == 0 {
					c.DeleteFunc(func(k int) bool { return k == -1 })
				}
			}
		}()
	}
	wg.Wait()
	for i := 0; i < keys; i++ {
		if v, ok := c.Get(i); !ok || v != rounds-1 {
			t.Fatalf("key %d: expected %d, got ok=%v v=%v", i, rounds-1, ok, v)
		}
	}
}
