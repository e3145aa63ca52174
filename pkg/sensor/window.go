package sensor

import "math"

// Window is a fixed-capacity FIFO buffer of temperature values used to
// compute the rolling average. It starts out all-NaN and always holds
// exactly its capacity: each push evicts the oldest entry.
type Window struct {
	values []float64
	next   int
}

// NewWindow returns a window of the given capacity, clamped to at
// least 1, with every slot initialized to NaN.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	values := make([]float64, capacity)
	for i := range values {
		values[i] = math.NaN()
	}
	return &Window{values: values}
}

// Push appends v, evicting the oldest value.
func (w *Window) Push(v float64) {
	w.values[w.next] = v
	w.next = (w.next + 1) % len(w.values)
}

// Mean returns the arithmetic mean over the non-NaN entries. If every
// entry is NaN the mean is undefined and NaN is returned.
func (w *Window) Mean() float64 {
	var sum float64
	var n int
	for _, v := range w.values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// AllNaN reports whether no slot holds a finite value, i.e. every poll
// in the window failed (or the window has not been pushed to yet).
func (w *Window) AllNaN() bool {
	for _, v := range w.values {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.values)
}

// Values returns the entries oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, 0, len(w.values))
	out = append(out, w.values[w.next:]...)
	out = append(out, w.values[:w.next]...)
	return out
}
