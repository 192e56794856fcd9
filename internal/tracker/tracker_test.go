package tracker

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"stockwatch/internal/model"
)

func rec(item string, available bool) model.AvailabilityRecord {
	return model.AvailabilityRecord{ItemID: item, Available: available}
}

func TestObserveSequences(t *testing.T) {
	tests := []struct {
		name     string
		sequence []bool
		want     []bool
	}{
		{name: "first observation available never fires", sequence: []bool{true}, want: []bool{false}},
		{name: "first observation unavailable", sequence: []bool{false}, want: []bool{false}},
		{name: "rising edge", sequence: []bool{false, false, true}, want: []bool{false, false, true}},
		{name: "stays available", sequence: []bool{false, true, true, true}, want: []bool{false, true, false, false}},
		{name: "flapping", sequence: []bool{false, true, false, true}, want: []bool{false, true, false, true}},
		{name: "falling edge is silent", sequence: []bool{true, false}, want: []bool{false, false}},
		{name: "available from the start", sequence: []bool{true, true, false, true}, want: []bool{false, false, false, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New()
			var got []bool
			for _, avail := range tt.sequence {
				got = append(got, tr.Observe(rec("A", avail)).BecameAvailable)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("fires mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// Exactly one fire per false-to-true edge in any sequence.
func TestObserveFiresOncePerEdge(t *testing.T) {
	for mask := range 1 << 8 {
		seq := make([]bool, 8)
		for i := range seq {
			seq[i] = mask&(1<<i) != 0
		}

		wantFires := 0
		for i := 1; i < len(seq); i++ {
			if !seq[i-1] && seq[i] {
				wantFires++
			}
		}

		tr := New()
		gotFires := 0
		for _, avail := range seq {
			if tr.Observe(rec("A", avail)).BecameAvailable {
				gotFires++
			}
		}
		if gotFires != wantFires {
			t.Fatalf("sequence %v: fires = %d, want %d", seq, gotFires, wantFires)
		}
	}
}

func TestObserveTransitionFields(t *testing.T) {
	tr := New()

	first := tr.Observe(rec("A", true))
	if diff := cmp.Diff(Transition{ItemID: "A", Current: true}, first); diff != "" {
		t.Errorf("first transition mismatch (-want +got):\n%s", diff)
	}

	second := tr.Observe(rec("A", false))
	want := Transition{ItemID: "A", HadPrevious: true, Previous: true, Current: false}
	if diff := cmp.Diff(want, second); diff != "" {
		t.Errorf("second transition mismatch (-want +got):\n%s", diff)
	}
}

func TestItemsAreIndependent(t *testing.T) {
	tr := New()
	tr.Observe(rec("A", false))
	tr.Observe(rec("B", true))

	if !tr.Observe(rec("A", true)).BecameAvailable {
		t.Error("A: want fire on false->true")
	}
	if tr.Observe(rec("B", true)).BecameAvailable {
		t.Error("B: want no fire on true->true")
	}
	if tr.Observe(rec("C", true)).BecameAvailable {
		t.Error("C: want no fire on first observation")
	}
}

func TestLast(t *testing.T) {
	tr := New()
	if _, ok := tr.Last("A"); ok {
		t.Fatal("Last on unknown item returned ok")
	}

	qty := 3
	r := model.AvailabilityRecord{ItemID: "A", Available: true, Quantity: &qty, StatusLabel: "IN_STOCK"}
	tr.Observe(r)

	got, ok := tr.Last("A")
	if !ok {
		t.Fatal("Last returned !ok after Observe")
	}
	if diff := cmp.Diff(r, got); diff != "" {
		t.Errorf("Last mismatch (-want +got):\n%s", diff)
	}
}

func TestRetainResetsForgottenItems(t *testing.T) {
	tr := New()
	tr.Observe(rec("A", false))
	tr.Observe(rec("B", false))

	if diff := cmp.Diff(1, tr.Retain([]string{"A"})); diff != "" {
		t.Errorf("dropped mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, tr.Len()); diff != "" {
		t.Errorf("len mismatch (-want +got):\n%s", diff)
	}

	// B was forgotten, so its next observation is a first observation.
	if tr.Observe(rec("B", true)).BecameAvailable {
		t.Error("B fired after being forgotten")
	}
	if !tr.Observe(rec("A", true)).BecameAvailable {
		t.Error("A did not fire on false->true")
	}
}

func TestConcurrentObserve(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	fires := make([]int, 10)

	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item := fmt.Sprintf("item-%d", i)
			for j := range 100 {
				if tr.Observe(rec(item, j%2 == 1)).BecameAvailable {
					fires[i]++
				}
			}
		}()
	}
	wg.Wait()

	for i, n := range fires {
		if n != 50 {
			t.Errorf("item-%d fires = %d, want 50", i, n)
		}
	}
}
