package cache

import (
	"testing"
	"time"
)

func TestCache_GetSet(t *testing.T) {
	c := New[string, int](time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get on empty cache should miss")
	}

	c.Set("a", 1)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v, want 1, true", v, ok)
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New[string, string](30 * time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Set("k", "v")

	c.now = func() time.Time { return base.Add(29 * time.Minute) }
	if _, ok := c.Get("k"); !ok {
		t.Error("entry inside TTL should hit")
	}

	c.now = func() time.Time { return base.Add(31 * time.Minute) }
	if _, ok := c.Get("k"); ok {
		t.Error("entry past TTL should miss")
	}
	if c.Len() != 0 {
		t.Error("expired entry should be dropped on access")
	}
}

func TestCache_SetRefreshesTTL(t *testing.T) {
	c := New[string, int](time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Set("k", 1)

	c.now = func() time.Time { return base.Add(50 * time.Second) }
	c.Set("k", 2)

	c.now = func() time.Time { return base.Add(100 * time.Second) }
	v, ok := c.Get("k")
	if !ok || v != 2 {
		t.Errorf("re-set entry should live a full TTL from the second Set, got %d, %v", v, ok)
	}
}

func TestCache_Prune(t *testing.T) {
	c := New[int, int](time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Set(1, 1)
	c.Set(2, 2)

	c.now = func() time.Time { return base.Add(30 * time.Second) }
	c.Set(3, 3)

	c.now = func() time.Time { return base.Add(70 * time.Second) }
	if removed := c.Prune(); removed != 2 {
		t.Errorf("Prune() = %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d after prune, want 1", c.Len())
	}
}

func TestCache_Delete(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Set("k", 1)
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("deleted entry should miss")
	}
}

func TestCache_Clear(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after clear, want 0", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("cleared entry should miss")
	}

	c.Set("a", 3)
	if v, ok := c.Get("a"); !ok || v != 3 {
		t.Errorf("cache should accept writes after clear, got %d, %v", v, ok)
	}
}
