package effective

import (
	"math/rand"
	"testing"

	"breakout-backtest/internal/types"
)

func hl(ts int64, h, l float64) types.Bar {
	return types.Bar{Ts: ts, Open: l, High: h, Low: l, Close: h, Vol: 1}
}

func TestOuterBarPopsAfterInnerDiscarded(t *testing.T) {
	bars := []types.Bar{
		hl(1, 10, 8),
		hl(2, 9, 8.5), // inside bar 1
		hl(3, 11, 7),  // engulfs bar 1
	}

	r := NewReducer(len(bars))
	res := []Result{}
	for i, b := range bars {
		res = append(res, r.Add(i, b))
	}

	if !res[0].Included || res[0].Prev != nil {
		t.Fatalf("first bar: expected included with no prev, got %+v", res[0])
	}
	if res[1].Included {
		t.Fatal("second bar should be discarded as contained")
	}
	if !res[2].Included || res[2].Prev != nil {
		t.Fatalf("third bar: expected included with empty stack below, got %+v", res[2])
	}

	eff := r.Effective()
	if len(eff) != 1 {
		t.Fatalf("expected exactly one effective bar, got %d", len(eff))
	}
	if eff[0].Index != 2 || eff[0].Bar.Ts != 3 {
		t.Errorf("expected bar 3 to survive, got %+v", eff[0])
	}
}

func TestIdenticalRangeIsDiscarded(t *testing.T) {
	r := NewReducer(2)
	r.Add(0, hl(1, 10, 8))
	res := r.Add(1, hl(2, 10, 8))
	if res.Included {
		t.Fatal("identical range must be treated as contained")
	}
	if res.Prev == nil || res.Prev.Index != 0 {
		t.Fatalf("expected prev to be the containing bar, got %+v", res.Prev)
	}
	top, _ := r.Top()
	if top.Index != 0 {
		t.Errorf("expected first bar to remain on top, got index %d", top.Index)
	}
}

func TestWideBarPopsManyLevels(t *testing.T) {
	r := NewReducer(16)
	// a staircase that keeps overlapping without containment
	for i := 0; i < 10; i++ {
		f := float64(i)
		res := r.Add(i, hl(int64(i), 11+f, 9+f))
		if !res.Included {
			t.Fatalf("bar %d should be included", i)
		}
	}
	if r.Len() != 10 {
		t.Fatalf("expected 10 effective bars, got %d", r.Len())
	}

	res := r.Add(10, hl(10, 100, 0))
	if !res.Included || res.Prev != nil {
		t.Fatalf("wide bar should pop every level, got %+v", res)
	}
	if r.Len() != 1 {
		t.Errorf("expected a single effective bar, got %d", r.Len())
	}
}

func TestPrevIsTopBeforePush(t *testing.T) {
	r := NewReducer(4)
	r.Add(0, hl(1, 10, 8))
	r.Add(1, hl(2, 12, 9))
	res := r.Add(2, hl(3, 11, 7.5)) // contains neither bar 1 nor bar 0 fully
	if !res.Included {
		t.Fatal("expected bar to be included")
	}
	if res.Prev == nil || res.Prev.Index != 1 {
		t.Fatalf("expected prev index 1, got %+v", res.Prev)
	}
}

func randomBars(n int, seed int64) []types.Bar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]types.Bar, n)
	mid := 100.0
	for i := range bars {
		mid += (rng.Float64() - 0.5) * 4
		h := mid + rng.Float64()*3
		l := mid - rng.Float64()*3
		// force some exact duplicates and nested bars
		if i > 0 && rng.Intn(10) == 0 {
			h, l = bars[i-1].High, bars[i-1].Low
		}
		bars[i] = types.Bar{Ts: int64(i), Open: mid, High: h, Low: l, Close: mid, Vol: 1}
	}
	return bars
}

func TestReduceIsIrreducibleAndIdempotent(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		bars := randomBars(300, seed)
		eff := Reduce(bars)

		for i := 1; i < len(eff); i++ {
			a, b := eff[i-1].Bar, eff[i].Bar
			if containedBy(b, a) || contains(b, a) {
				t.Fatalf("seed %d: neighbours %d and %d still nest", seed, eff[i-1].Index, eff[i].Index)
			}
		}

		again := make([]types.Bar, len(eff))
		for i, e := range eff {
			again[i] = e.Bar
		}
		eff2 := Reduce(again)
		if len(eff2) != len(eff) {
			t.Fatalf("seed %d: second pass changed length %d -> %d", seed, len(eff), len(eff2))
		}
		for i := range eff2 {
			if eff2[i].Bar != eff[i].Bar {
				t.Fatalf("seed %d: second pass changed bar %d", seed, i)
			}
		}
	}
}

func TestReduceIsSubsequence(t *testing.T) {
	bars := randomBars(500, 42)
	eff := Reduce(bars)

	last := -1
	for _, e := range eff {
		if e.Index <= last {
			t.Fatalf("effective indexes not increasing: %d after %d", e.Index, last)
		}
		if bars[e.Index] != e.Bar {
			t.Fatalf("bar %d modified: %+v vs %+v", e.Index, e.Bar, bars[e.Index])
		}
		last = e.Index
	}
}

func TestEffectiveReturnsCopy(t *testing.T) {
	r := NewReducer(2)
	r.Add(0, hl(1, 10, 8))
	eff := r.Effective()
	eff[0].Bar.High = 999
	top, _ := r.Top()
	if top.Bar.High != 10 {
		t.Error("Effective must not expose the internal stack")
	}
}
