package lru

import "testing"

// Capacity 1 keeps only the most recent key.
func TestLRU_SingleSlotReplaces(t *testing.T) {
	t.Parallel()

	r := New[string, int](1)
	r.Put("cell_type--study", 1)
	r.Put("cluster--cluster", 2)

	if _, ok := r.Get("cell_type--study"); ok {
		t.Fatal("old key must be discarded")
	}
	if v, ok := r.Get("cluster--cluster"); !ok || v != 2 {
		t.Fatalf("want 2, got %v ok=%v", v, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("Len want 1, got %d", r.Len())
	}
}

// Re-putting an existing key replaces its value in place.
func TestLRU_PutSameKeyUpdates(t *testing.T) {
	t.Parallel()

	r := New[string, string](1)
	r.Put("k", "pending")
	r.Put("k", "ready")
	if v, _ := r.Get("k"); v != "ready" {
		t.Fatalf("want ready, got %q", v)
	}
}

// Get promotes: with capacity 2, touching "a" makes "b" the victim.
func TestLRU_GetPromotes(t *testing.T) {
	t.Parallel()

	r := New[string, int](2)
	r.Put("a", 1)
	r.Put("b", 2)
	r.Get("a")
	r.Put("c", 3)

	if _, ok := r.Get("b"); ok {
		t.Fatal("b must be evicted")
	}
	if _, ok := r.Get("a"); !ok {
		t.Fatal("a must survive")
	}
}

func TestLRU_Remove(t *testing.T) {
	t.Parallel()

	r := New[string, int](0) // clamped to 1
	r.Put("a", 1)
	r.Remove("a")
	if r.Len() != 0 {
		t.Fatal("Remove must delete")
	}
	r.Remove("missing")
}
