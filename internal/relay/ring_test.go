package relay

import "testing"

func TestRing_PushUnderCapacity(t *testing.T) {
	r := NewRing[int](3)
	r.Push(1)
	r.Push(2)

	got := r.Last(0)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("expected [1 2], got %v", got)
	}
}

func TestRing_EvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		evicted := r.Push(i)
		if i <= 3 && evicted {
			t.Errorf("push %d should not evict", i)
		}
		if i > 3 && !evicted {
			t.Errorf("push %d should evict", i)
		}
	}

	got := r.Last(0)
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRing_LastN(t *testing.T) {
	r := NewRing[int](10)
	for i := 1; i <= 12; i++ {
		r.Push(i)
	}

	got := r.Last(2)
	if len(got) != 2 || got[0] != 11 || got[1] != 12 {
		t.Errorf("expected [11 12], got %v", got)
	}
	if all := r.Last(50); len(all) != 10 || all[0] != 3 {
		t.Errorf("expected 10 entries starting at 3, got %v", all)
	}
}

func TestRing_Reset(t *testing.T) {
	r := NewRing[string](2)
	r.Push("a")
	r.Push("b")
	r.Reset()

	if r.Len() != 0 {
		t.Errorf("expected empty ring, got %d", r.Len())
	}
	r.Push("c")
	if got := r.Last(0); len(got) != 1 || got[0] != "c" {
		t.Errorf("expected [c], got %v", got)
	}
}
