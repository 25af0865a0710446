package source

import (
	"context"
	"testing"
	"time"

	"breakout-backtest/internal/types"
)

func TestSyntheticIsDeterministic(t *testing.T) {
	from, to := day(2023, 1, 1), day(2023, 12, 31)
	a, err := NewSynthetic(7, 500).Bars(context.Background(), "INFY", from, to)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewSynthetic(7, 500).Bars(context.Background(), "INFY", from, to)
	c, _ := NewSynthetic(7, 500).Bars(context.Background(), "TCS", from, to)

	if len(a) != len(b) {
		t.Fatalf("Expected equal lengths, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Bar %d differs between identical runs", i)
		}
	}
	if a[len(a)-1] == c[len(c)-1] {
		t.Error("Expected different symbols to produce different series")
	}
}

func TestSyntheticBarsAreWellFormed(t *testing.T) {
	bars, err := NewSynthetic(1, 0).Bars(context.Background(), "X", day(2024, 1, 1), day(2024, 3, 31))
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range bars {
		if b.High < b.Low || b.High < b.Close || b.Low > b.Close || b.High < b.Open || b.Low > b.Open {
			t.Fatalf("Bar %d inconsistent: %+v", i, b)
		}
		if wd := b.Time().Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("Bar %d falls on a weekend", i)
		}
	}
}

func TestNormalize(t *testing.T) {
	bars := []types.Bar{{Ts: 3, Close: 3}, {Ts: 1, Close: 1}, {Ts: 2, Close: 2}, {Ts: 2, Close: 22}}
	out := normalize(bars, time.Unix(2, 0), time.Time{})
	if len(out) != 2 || out[0].Close != 22 || out[1].Close != 3 {
		t.Errorf("Unexpected normalised bars: %+v", out)
	}
}

func TestRateLimiter(t *testing.T) {
	var off *RateLimiter
	if err := off.Wait(context.Background()); err != nil {
		t.Fatalf("Nil limiter must not block: %v", err)
	}
	if NewRateLimiter(0, 1) != nil {
		t.Error("Expected zero rate to disable limiting")
	}

	rl := NewRateLimiter(1, 1)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("Expected second token to wait past the deadline")
	}
}

func TestRateLimiterSubNanosecondRefill(t *testing.T) {
	rl := NewRateLimiter(2e9, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait %d failed: %v", i, err)
		}
	}
}

func TestCacheExpiry(t *testing.T) {
	c, err := NewCache(t.TempDir(), time.Nanosecond)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Set("k", []types.Bar{{Ts: 1}}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("Expected expired entry to miss")
	}
	if err := c.CleanupExpired(); err != nil {
		t.Fatal(err)
	}

	forever, _ := NewCache(t.TempDir(), 0)
	_ = forever.Set(MakeKey("a", "b"), []types.Bar{{Ts: 5}})
	if bars, ok := forever.Get("a|b"); !ok || bars[0].Ts != 5 {
		t.Errorf("Expected cached bar, got %v %v", bars, ok)
	}
}
