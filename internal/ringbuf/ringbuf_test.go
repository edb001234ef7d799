package ringbuf

import "testing"

func TestRing_Values(t *testing.T) {
	r := New[int](5)

	for i := 1; i <= 3; i++ {
		r.Push(i)
	}

	got := r.Values()
	if len(got) != 3 {
		t.Fatalf("Values: expected 3, got %d", len(got))
	}
	for i, v := range got {
		if v != i+1 {
			t.Errorf("Values[%d] = %d, want %d", i, v, i+1)
		}
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New[int](5)

	// Push 8 entries — first 3 should be evicted
	for i := 1; i <= 8; i++ {
		r.Push(i)
	}

	if r.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", r.Len())
	}

	got := r.Values()
	if got[0] != 4 {
		t.Errorf("oldest entry = %d, want 4", got[0])
	}
	if got[4] != 8 {
		t.Errorf("newest entry = %d, want 8", got[4])
	}
}

func TestRing_Last(t *testing.T) {
	r := New[int](10)
	for i := 1; i <= 6; i++ {
		r.Push(i)
	}

	got := r.Last(3)
	if len(got) != 3 {
		t.Fatalf("Last(3): expected 3, got %d", len(got))
	}
	if got[0] != 4 || got[2] != 6 {
		t.Errorf("Last(3) = %v, want [4 5 6]", got)
	}

	all := r.Last(100)
	if len(all) != 6 {
		t.Errorf("Last(100): expected 6, got %d", len(all))
	}
}

func TestRing_Newest(t *testing.T) {
	r := New[string](3)

	if _, ok := r.Newest(); ok {
		t.Fatal("Newest on empty ring should return false")
	}

	r.Push("a")
	r.Push("b")
	v, ok := r.Newest()
	if !ok || v != "b" {
		t.Errorf("Newest = %q/%v, want \"b\"/true", v, ok)
	}
}
