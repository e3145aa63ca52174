package sensor

import (
	"math"
	"testing"
)

func TestWindowStartsAllNaN(t *testing.T) {
	w := NewWindow(5)
	if w.Cap() != 5 {
		t.Fatalf("Cap: got %d, want 5", w.Cap())
	}
	for i, v := range w.Values() {
		if !math.IsNaN(v) {
			t.Errorf("slot %d: got %v, want NaN", i, v)
		}
	}
	if !math.IsNaN(w.Mean()) {
		t.Errorf("Mean of empty window: got %v, want NaN", w.Mean())
	}
	if !w.AllNaN() {
		t.Error("AllNaN: fresh window must report true")
	}
	w.Push(-18.0)
	if w.AllNaN() {
		t.Error("AllNaN: window with a finite value must report false")
	}
}

func TestWindowFIFOInvariant(t *testing.T) {
	const n = 7
	for _, k := range []int{0, 1, 3, 2 * n} {
		w := NewWindow(n)
		total := n + k
		for i := 0; i < total; i++ {
			w.Push(float64(i))
		}

		vals := w.Values()
		if len(vals) != n {
			t.Fatalf("n+%d insertions: window holds %d values, want %d", k, len(vals), n)
		}
		for i, v := range vals {
			want := float64(total - n + i)
			if v != want {
				t.Errorf("n+%d insertions, slot %d: got %v, want %v", k, i, v, want)
			}
		}
	}
}

func TestWindowMeanSkipsNaN(t *testing.T) {
	w := NewWindow(4)
	w.Push(10)
	w.Push(math.NaN())
	w.Push(20)

	if got := w.Mean(); got != 15 {
		t.Errorf("Mean: got %v, want 15 (NaN entries excluded)", got)
	}
}

func TestWindowMinimumCapacity(t *testing.T) {
	w := NewWindow(0)
	if w.Cap() != 1 {
		t.Errorf("Cap: got %d, want clamp to 1", w.Cap())
	}
	w.Push(42)
	if got := w.Mean(); got != 42 {
		t.Errorf("Mean: got %v, want 42", got)
	}
}
