package source

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"
)

type fakeKite struct {
	mu              sync.Mutex
	instrumentCalls int
	historyCalls    int
	failures        int
	failWith        error
	lastToken       int
}

func (f *fakeKite) GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instrumentCalls++
	return kiteconnect.Instruments{
		{InstrumentToken: 408065, Tradingsymbol: "INFY", Exchange: exchange},
		{InstrumentToken: 2953217, Tradingsymbol: "TCS", Exchange: exchange},
	}, nil
}

func (f *fakeKite) GetHistoricalData(token int, interval string, from, to time.Time, continuous, oi bool) ([]kiteconnect.HistoricalData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	f.lastToken = token
	if f.failures > 0 {
		f.failures--
		return nil, f.failWith
	}
	var out []kiteconnect.HistoricalData
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, kiteconnect.HistoricalData{
			Date: models.Time{Time: d}, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1000,
		})
	}
	return out, nil
}

func newTestKite(t *testing.T, f *fakeKite, p Params) *Kite {
	t.Helper()
	k, err := newKiteWithClient(f, p)
	if err != nil {
		t.Fatalf("Failed to build kite source: %v", err)
	}
	k.backoff = time.Millisecond
	return k
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestKiteResolvesTokenOnce(t *testing.T) {
	f := &fakeKite{}
	k := newTestKite(t, f, Params{Exchange: "nse"})

	for _, sym := range []string{"INFY", "tcs"} {
		if _, err := k.Bars(context.Background(), sym, day(2024, 1, 1), day(2024, 1, 10)); err != nil {
			t.Fatalf("Bars(%s) failed: %v", sym, err)
		}
	}
	if f.instrumentCalls != 1 {
		t.Errorf("Expected a single instrument dump, got %d", f.instrumentCalls)
	}
	if f.lastToken != 2953217 {
		t.Errorf("Expected TCS token, got %d", f.lastToken)
	}

	if _, err := k.Bars(context.Background(), "WIPRO", day(2024, 1, 1), day(2024, 1, 10)); !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData for unknown symbol, got %v", err)
	}
}

func TestKiteChunksLongRanges(t *testing.T) {
	f := &fakeKite{}
	k := newTestKite(t, f, Params{Interval: "day"})

	bars, err := k.Bars(context.Background(), "INFY", day(2015, 1, 1), day(2024, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if f.historyCalls != 2 {
		t.Errorf("Expected 2 requests for a 9 year range, got %d", f.historyCalls)
	}
	for i := 1; i < len(bars); i++ {
		if bars[i].Ts <= bars[i-1].Ts {
			t.Fatalf("Chunk boundary produced unordered bars at %d", i)
		}
	}
}

func TestKiteRetriesTransientErrors(t *testing.T) {
	f := &fakeKite{failures: 2, failWith: kiteconnect.Error{ErrorType: kiteconnect.NetworkError, Message: "timeout"}}
	k := newTestKite(t, f, Params{Retries: 3})

	if _, err := k.Bars(context.Background(), "INFY", day(2024, 1, 1), day(2024, 1, 5)); err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if f.historyCalls != 3 {
		t.Errorf("Expected 3 attempts, got %d", f.historyCalls)
	}
}

func TestKiteDoesNotRetryAuthErrors(t *testing.T) {
	f := &fakeKite{failures: 5, failWith: kiteconnect.Error{ErrorType: kiteconnect.TokenError, Message: "expired"}}
	k := newTestKite(t, f, Params{Retries: 3})

	if _, err := k.Bars(context.Background(), "INFY", day(2024, 1, 1), day(2024, 1, 5)); err == nil {
		t.Fatal("Expected token error")
	}
	if f.historyCalls != 1 {
		t.Errorf("Expected a single attempt, got %d", f.historyCalls)
	}
}

func TestKiteUsesCache(t *testing.T) {
	f := &fakeKite{}
	p := Params{CacheDir: t.TempDir(), CacheTTL: time.Hour}
	k := newTestKite(t, f, p)

	first, err := k.Bars(context.Background(), "INFY", day(2024, 1, 1), day(2024, 1, 31))
	if err != nil {
		t.Fatal(err)
	}
	second, err := k.Bars(context.Background(), "INFY", day(2024, 1, 1), day(2024, 1, 31))
	if err != nil {
		t.Fatal(err)
	}
	if f.historyCalls != 1 {
		t.Errorf("Expected second call to be served from cache, got %d requests", f.historyCalls)
	}
	if len(first) != len(second) {
		t.Errorf("Cached series differs: %d vs %d", len(first), len(second))
	}
}

func TestKiteRejectsUnknownInterval(t *testing.T) {
	if _, err := newKiteWithClient(&fakeKite{}, Params{Interval: "week"}); err == nil {
		t.Error("Expected unsupported interval error")
	}
}

func TestNewRequiresCredentialsForKite(t *testing.T) {
	if _, err := New(Params{Kind: "kite"}); err == nil {
		t.Error("Expected missing credentials error")
	}
	if _, err := New(Params{Kind: "parquet"}); err == nil {
		t.Error("Expected unknown kind error")
	}
	src, err := New(Params{Kind: "synthetic", Seed: 1})
	if err != nil || src.Name() != "synthetic" {
		t.Errorf("Expected synthetic source, got %v %v", src, err)
	}
}
