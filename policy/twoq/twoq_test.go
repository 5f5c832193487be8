package twoq

import "testing"

// Size below MinSize is clamped rather than failing.
func TestTwoQ_ClampsSize(t *testing.T) {
	t.Parallel()

	r := New[string, int](1)
	r.Put("a", 1)
	r.Put("b", 2)
	if r.Len() != 2 {
		t.Fatalf("want 2 retained with clamped size, got %d", r.Len())
	}
}

// A frequently used key survives a scan of one-off keys.
func TestTwoQ_FrequentSurvivesScan(t *testing.T) {
	t.Parallel()

	r := New[string, int](4)
	r.Put("hot", 1)
	r.Get("hot") // promote to the frequent queue

	for _, k := range []string{"s1", "s2", "s3", "s4", "s5", "s6"} {
		r.Put(k, 0)
	}
	if _, ok := r.Get("hot"); !ok {
		t.Fatal("hot key must survive a scan")
	}
	if r.Len() > 4 {
		t.Fatalf("Len must stay bounded, got %d", r.Len())
	}
}

func TestTwoQ_Remove(t *testing.T) {
	t.Parallel()

	r := New[string, int](4)
	r.Put("a", 1)
	r.Put("b", 2)
	r.Remove("a")
	if _, ok := r.Get("a"); ok {
		t.Fatal("a must be removed")
	}
	if r.Len() != 1 {
		t.Fatalf("want b only, got %d keys", r.Len())
	}
}
