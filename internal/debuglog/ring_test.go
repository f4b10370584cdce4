package debuglog

import (
	"strconv"
	"sync"
	"testing"
)

func TestRing_OrderBeforeWrap(t *testing.T) {
	r := NewRing(4, nil)
	r.Log("a", nil, false)
	r.Log("b", nil, false)

	got := r.Entries()
	if len(got) != 2 || got[0].Type != "a" || got[1].Type != "b" {
		t.Fatalf("Unexpected entries: %+v", got)
	}
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := NewRing(3, nil)
	for i := 0; i < 5; i++ {
		r.Log(strconv.Itoa(i), i, false)
	}

	got := r.Entries()
	if r.Len() != 3 || len(got) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(got))
	}
	for i, want := range []string{"2", "3", "4"} {
		if got[i].Type != want {
			t.Errorf("entry %d: expected %s, got %s", i, want, got[i].Type)
		}
	}
}

func TestRing_Reset(t *testing.T) {
	r := NewRing(2, nil)
	r.Log("a", nil, true)
	r.Reset()
	if r.Len() != 0 || len(r.Entries()) != 0 {
		t.Error("Expected empty ring after reset")
	}
	if r.Capacity() != 2 {
		t.Errorf("Expected capacity 2, got %d", r.Capacity())
	}
}

func TestRing_NilSafe(t *testing.T) {
	var r *Ring
	r.Log("ignored", nil, false)
}

func TestRing_ConcurrentLog(t *testing.T) {
	r := NewRing(16, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Log("x", j, false)
			}
		}()
	}
	wg.Wait()
	if r.Len() != 16 {
		t.Errorf("Expected full ring, got %d", r.Len())
	}
}
