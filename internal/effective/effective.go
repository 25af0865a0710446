// Package effective reduces a raw bar stream to its sequence of effective bars:
// bars that are neither contained by, nor contain, their effective neighbour.
package effective

import "breakout-backtest/internal/types"

// Entry is one bar currently on the effective stack.
type Entry struct {
	Index int
	Bar   types.Bar
}

// Result reports how a bar was absorbed.
//
// Prev is the effective bar immediately preceding the new bar in the updated
// sequence when Included is true. For a discarded bar it is the bar that
// contained it.
type Result struct {
	Included bool
	Prev     *Entry
}

// Reducer keeps the effective bars on a stack. Each raw bar is pushed at most
// once and popped at most once.
type Reducer struct {
	stack []Entry
}

func NewReducer(capacity int) *Reducer {
	if capacity < 0 {
		capacity = 0
	}
	return &Reducer{stack: make([]Entry, 0, capacity)}
}

// containedBy reports x.high <= t.high and x.low >= t.low.
func containedBy(x, t types.Bar) bool {
	return x.High <= t.High && x.Low >= t.Low
}

// contains reports x.high >= t.high and x.low <= t.low.
func contains(x, t types.Bar) bool {
	return x.High >= t.High && x.Low <= t.Low
}

// Add absorbs the next raw bar. "Contained by" is tested before "contains",
// so a bar with a range identical to the top is discarded.
func (r *Reducer) Add(index int, bar types.Bar) Result {
	for len(r.stack) > 0 {
		top := r.stack[len(r.stack)-1]
		if containedBy(bar, top.Bar) {
			return Result{Included: false, Prev: &top}
		}
		if contains(bar, top.Bar) {
			r.stack = r.stack[:len(r.stack)-1]
			continue
		}
		break
	}

	var prev *Entry
	if n := len(r.stack); n > 0 {
		p := r.stack[n-1]
		prev = &p
	}
	r.stack = append(r.stack, Entry{Index: index, Bar: bar})
	return Result{Included: true, Prev: prev}
}

// Len is the number of effective bars.
func (r *Reducer) Len() int { return len(r.stack) }

// Top returns the most recent effective bar.
func (r *Reducer) Top() (Entry, bool) {
	if len(r.stack) == 0 {
		return Entry{}, false
	}
	return r.stack[len(r.stack)-1], true
}

// Effective returns a copy of the effective sequence, oldest first.
func (r *Reducer) Effective() []Entry {
	out := make([]Entry, len(r.stack))
	copy(out, r.stack)
	return out
}

// Reduce runs a fresh reducer over bars and returns the effective sequence.
func Reduce(bars []types.Bar) []Entry {
	r := NewReducer(len(bars))
	for i, b := range bars {
		r.Add(i, b)
	}
	return r.Effective()
}
