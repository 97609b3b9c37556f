package buffer

import (
	"sync"
	"testing"
)

func TestRingBelowCapacity(t *testing.T) {
	r := RingN[int](4)
	r.Add(1)
	r.Add(2)

	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
	got := r.Snapshot()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("Snapshot = %v, want [1 2]", got)
	}
}

func TestRingEvictsOldest(t *testing.T) {
	r := RingN[int](3)
	for i := 1; i <= 5; i++ {
		r.Add(i)
	}

	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	got := r.Snapshot()
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Snapshot = %v, want %v", got, want)
		}
	}
}

func TestRingEmpty(t *testing.T) {
	r := RingN[string](2)
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0", r.Len())
	}
	if got := r.Snapshot(); len(got) != 0 {
		t.Fatalf("Snapshot = %v, want empty", got)
	}
}

func TestRingConcurrentAdd(t *testing.T) {
	r := RingN[int](8)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Add(j)
			}
		}()
	}
	wg.Wait()

	if r.Len() != 8 {
		t.Fatalf("Len = %d, want 8", r.Len())
	}
}
