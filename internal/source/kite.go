package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"breakout-backtest/internal/interfaces"
	"breakout-backtest/internal/logger"
	"breakout-backtest/internal/types"
)

// historicalClient is the part of *kiteconnect.Client the source uses.
type historicalClient interface {
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
}

// Maximum days per historical request, per interval.
var kiteMaxSpanDays = map[string]int{
	"minute":   60,
	"3minute":  100,
	"5minute":  100,
	"10minute": 100,
	"15minute": 200,
	"30minute": 200,
	"60minute": 400,
	"day":      2000,
}

// Kite loads candles from the Kite Connect historical API.
type Kite struct {
	client   historicalClient
	exchange string
	interval string
	retries  int
	backoff  time.Duration
	cache    *Cache
	limiter  *RateLimiter

	mu     sync.Mutex
	tokens map[string]int
}

var _ interfaces.BarSource = (*Kite)(nil)

// NewKite builds a Kite source authenticated with p.APIKey and p.AccessToken.
func NewKite(p Params) (*Kite, error) {
	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)
	return newKiteWithClient(kc, p)
}

func newKiteWithClient(client historicalClient, p Params) (*Kite, error) {
	k := &Kite{
		client:   client,
		exchange: strings.ToUpper(p.Exchange),
		interval: strings.ToLower(p.Interval),
		retries:  p.Retries,
		backoff:  500 * time.Millisecond,
		limiter:  NewRateLimiter(p.RatePerSec, 1),
	}
	if k.exchange == "" {
		k.exchange = "NSE"
	}
	if k.interval == "" {
		k.interval = "day"
	}
	if _, ok := kiteMaxSpanDays[k.interval]; !ok {
		return nil, fmt.Errorf("unsupported kite interval %q", p.Interval)
	}
	if p.CacheDir != "" {
		c, err := NewCache(p.CacheDir, p.CacheTTL)
		if err != nil {
			return nil, err
		}
		k.cache = c
	}
	return k, nil
}

func (k *Kite) Name() string { return "kite" }

func (k *Kite) Bars(ctx context.Context, symbol string, from, to time.Time) ([]types.Bar, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.AddDate(-2, 0, 0)
	}

	key := MakeKey("kite", k.exchange, symbol, k.interval, from.Format(time.DateOnly), to.Format(time.DateOnly))
	if k.cache != nil {
		if bars, ok := k.cache.Get(key); ok {
			logger.Debug(ctx, "Bar cache hit", "symbol", symbol, "bars", len(bars))
			return normalize(bars, from, to), nil
		}
	}

	token, err := k.instrumentToken(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var bars []types.Bar
	span := time.Duration(kiteMaxSpanDays[k.interval]) * 24 * time.Hour
	for start := from; !start.After(to); start = start.Add(span) {
		end := start.Add(span - time.Second)
		if end.After(to) {
			end = to
		}

		var chunk []kiteconnect.HistoricalData
		err := k.call(ctx, "historical "+symbol, func() error {
			var err error
			chunk, err = k.client.GetHistoricalData(token, k.interval, start, end, false, false)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("kite historical %s %s..%s: %w", symbol, start.Format(time.DateOnly), end.Format(time.DateOnly), err)
		}
		for _, d := range chunk {
			b := types.Bar{Ts: d.Date.Unix(), Open: d.Open, High: d.High, Low: d.Low, Close: d.Close, Vol: float64(d.Volume)}
			if valid(b) {
				bars = append(bars, b)
			}
		}
	}

	bars = normalize(bars, from, to)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s on %s: %w", symbol, k.exchange, ErrNoData)
	}
	if k.cache != nil {
		if err := k.cache.Set(key, bars); err != nil {
			logger.Warn(ctx, "Failed to cache bars", "symbol", symbol, "error", err)
		}
	}
	return bars, nil
}

// instrumentToken resolves symbol on the configured exchange. The instrument
// dump is fetched once per source.
func (k *Kite) instrumentToken(ctx context.Context, symbol string) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.tokens == nil {
		var instruments kiteconnect.Instruments
		err := k.call(ctx, "instruments "+k.exchange, func() error {
			var err error
			instruments, err = k.client.GetInstrumentsByExchange(k.exchange)
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("kite instruments %s: %w", k.exchange, err)
		}
		k.tokens = make(map[string]int, len(instruments))
		for _, inst := range instruments {
			k.tokens[strings.ToUpper(inst.Tradingsymbol)] = inst.InstrumentToken
		}
		logger.Debug(ctx, "Loaded instrument map", "exchange", k.exchange, "instruments", len(k.tokens))
	}

	token, ok := k.tokens[strings.ToUpper(symbol)]
	if !ok {
		return 0, fmt.Errorf("%s not listed on %s: %w", symbol, k.exchange, ErrNoData)
	}
	return token, nil
}

// call runs fn under the rate limiter, retrying transient failures with
// exponential backoff.
func (k *Kite) call(ctx context.Context, what string, fn func() error) error {
	delay := k.backoff
	for attempt := 0; ; attempt++ {
		if err := k.limiter.Wait(ctx); err != nil {
			return err
		}
		err := fn()
		if err == nil || attempt >= k.retries || !retryable(err) {
			return err
		}
		logger.Warn(ctx, "Kite request failed, retrying", "request", what, "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func retryable(err error) bool {
	var kerr kiteconnect.Error
	if errors.As(err, &kerr) {
		switch kerr.ErrorType {
		case kiteconnect.TokenError, kiteconnect.PermissionError, kiteconnect.InputError, kiteconnect.UserError:
			return false
		}
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
