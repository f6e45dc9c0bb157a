package moderation

import "testing"

func TestLRUCache(t *testing.T) {
	c := newLRUCache[int, string](2)
	c.Put(1, "one")
	c.Put(2, "two")

	if v, ok := c.Get(1); !ok || v != "one" {
		t.Fatalf("Get(1) = %q, %v", v, ok)
	}

	// 2 is now least recently used.
	c.Put(3, "three")
	if _, ok := c.Get(2); ok {
		t.Error("expected 2 to be evicted")
	}
	if _, ok := c.Get(1); !ok {
		t.Error("expected 1 to survive")
	}

	c.Put(1, "uno")
	if v, _ := c.Get(1); v != "uno" {
		t.Errorf("update lost: %q", v)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestLRUCache_MinimumCapacity(t *testing.T) {
	c := newLRUCache[string, int](0)
	c.Put("a", 1)
	c.Put("b", 2)
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}
