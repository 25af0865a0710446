package engine

import (
	"fmt"
	"strings"

	"breakout-backtest/internal/ta"
)

type BreakoutMode string

const (
	BreakoutPriceHigh BreakoutMode = "PRICE_HIGH"
	BreakoutMACross   BreakoutMode = "MA_CROSS"
)

type TrailingMode string

const (
	TrailingNone TrailingMode = ""
	TrailingPct  TrailingMode = "PCT"
	TrailingATR  TrailingMode = "ATR"
)

// Config is the complete option set of one engine.
//
// Zero values switch optional parts off: TrendPeriod 0 disables the trend
// filter, VolMultiplier <= 0 the volume filter, MaxHoldBars 0 the time stop.
type Config struct {
	Symbol string

	Breakout     BreakoutMode
	HighLookback int // PRICE_HIGH: close must exceed the max high of this many prior bars
	MAShort      int
	MALong       int

	TrendPeriod   int
	VolLookback   int
	VolMultiplier float64

	ContainmentStop bool
	Trailing        TrailingMode
	TrailingPct     float64 // fraction, 0.05 = 5%
	ATRPeriod       int
	ATRMult         float64
	MaxHoldBars     int

	FeeRate        float64
	SlippageRate   float64
	InitialCapital float64

	// modes requested through options, used to reject ambiguous setups
	breakoutsSet []BreakoutMode
	trailingsSet []TrailingMode
}

// DefaultConfig is a 20-bar price breakout with the containment stop on.
func DefaultConfig() Config {
	return Config{
		Breakout:        BreakoutPriceHigh,
		HighLookback:    20,
		ContainmentStop: true,
		InitialCapital:  100000,
	}
}

type Option func(*Config)

func WithSymbol(symbol string) Option {
	return func(c *Config) { c.Symbol = symbol }
}

// WithPriceBreakout enters when close exceeds the highest high of the previous n bars.
func WithPriceBreakout(n int) Option {
	return func(c *Config) {
		c.Breakout = BreakoutPriceHigh
		c.HighLookback = n
		c.breakoutsSet = append(c.breakoutsSet, BreakoutPriceHigh)
	}
}

// WithMACross enters when the short MA crosses above the long MA.
func WithMACross(short, long int) Option {
	return func(c *Config) {
		c.Breakout = BreakoutMACross
		c.MAShort, c.MALong = short, long
		c.breakoutsSet = append(c.breakoutsSet, BreakoutMACross)
	}
}

func WithTrendFilter(period int) Option {
	return func(c *Config) { c.TrendPeriod = period }
}

func WithVolumeFilter(lookback int, multiplier float64) Option {
	return func(c *Config) { c.VolLookback, c.VolMultiplier = lookback, multiplier }
}

func WithContainmentStop(enabled bool) Option {
	return func(c *Config) { c.ContainmentStop = enabled }
}

// WithTrailingPct exits when close falls pct (a fraction) below the peak close.
func WithTrailingPct(pct float64) Option {
	return func(c *Config) {
		c.Trailing = TrailingPct
		c.TrailingPct = pct
		c.trailingsSet = append(c.trailingsSet, TrailingPct)
	}
}

// WithTrailingATR exits when close falls mult × ATR(period) below the peak close.
func WithTrailingATR(period int, mult float64) Option {
	return func(c *Config) {
		c.Trailing = TrailingATR
		c.ATRPeriod, c.ATRMult = period, mult
		c.trailingsSet = append(c.trailingsSet, TrailingATR)
	}
}

func WithMaxHold(bars int) Option {
	return func(c *Config) { c.MaxHoldBars = bars }
}

func WithFees(feeRate, slippageRate float64) Option {
	return func(c *Config) { c.FeeRate, c.SlippageRate = feeRate, slippageRate }
}

func WithCapital(initial float64) Option {
	return func(c *Config) { c.InitialCapital = initial }
}

func distinct[T comparable](xs []T) int {
	seen := map[T]struct{}{}
	for _, x := range xs {
		seen[x] = struct{}{}
	}
	return len(seen)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// Validate rejects configurations that cannot be run unambiguously.
func (c Config) Validate() error {
	if distinct(c.breakoutsSet) > 1 {
		return invalid("both breakout modes requested")
	}
	if distinct(c.trailingsSet) > 1 {
		return invalid("trailing stop mode is ambiguous (both PCT and ATR requested)")
	}

	switch BreakoutMode(strings.ToUpper(string(c.Breakout))) {
	case BreakoutPriceHigh:
		if c.HighLookback < 1 {
			return invalid("breakout lookback must be >= 1, got %d", c.HighLookback)
		}
	case BreakoutMACross:
		if c.MAShort < 1 || c.MALong <= c.MAShort {
			return invalid("ma cross needs 1 <= short < long, got short=%d long=%d", c.MAShort, c.MALong)
		}
	default:
		return invalid("unknown breakout mode %q", c.Breakout)
	}

	if c.TrendPeriod < 0 {
		return invalid("trend period must be >= 0, got %d", c.TrendPeriod)
	}
	if c.VolMultiplier > 0 && c.VolLookback < 1 {
		return invalid("volume filter needs lookback >= 1, got %d", c.VolLookback)
	}

	switch TrailingMode(strings.ToUpper(string(c.Trailing))) {
	case TrailingNone:
	case TrailingPct:
		if c.TrailingPct <= 0 || c.TrailingPct >= 1 {
			return invalid("trailing pct must be in (0, 1), got %v", c.TrailingPct)
		}
	case TrailingATR:
		if c.ATRPeriod < 1 || c.ATRMult <= 0 {
			return invalid("atr trailing needs period >= 1 and mult > 0, got period=%d mult=%v", c.ATRPeriod, c.ATRMult)
		}
	default:
		return invalid("unknown trailing mode %q", c.Trailing)
	}

	if c.MaxHoldBars < 0 {
		return invalid("max hold bars must be >= 0, got %d", c.MaxHoldBars)
	}
	if c.FeeRate < 0 || c.SlippageRate < 0 || c.FeeRate+c.SlippageRate >= 1 {
		return invalid("fee %v and slippage %v must be non-negative and sum below 1", c.FeeRate, c.SlippageRate)
	}
	if c.InitialCapital <= 0 {
		return invalid("initial capital must be > 0, got %v", c.InitialCapital)
	}
	return nil
}

// normalized upper-cases mode strings coming from config files.
func (c Config) normalized() Config {
	c.Breakout = BreakoutMode(strings.ToUpper(string(c.Breakout)))
	c.Trailing = TrailingMode(strings.ToUpper(string(c.Trailing)))
	return c
}

func (c Config) volumeEnabled() bool { return c.VolMultiplier > 0 }

// Warmup is the minimum number of bars the active filters and stops need.
func (c Config) Warmup() int {
	c = c.normalized()
	need := 1
	up := func(n int) {
		if n > need {
			need = n
		}
	}
	switch c.Breakout {
	case BreakoutPriceHigh:
		up(c.HighLookback + 1)
	case BreakoutMACross:
		up(c.MALong + 1)
	}
	up(c.TrendPeriod)
	if c.volumeEnabled() {
		up(c.VolLookback)
	}
	if c.Trailing == TrailingATR {
		up(c.ATRPeriod)
	}
	return need
}

// Periods tells ta.Compute which indicator columns this config reads.
func (c Config) Periods() ta.Periods {
	c = c.normalized()
	p := ta.Periods{TrendMA: c.TrendPeriod}
	switch c.Breakout {
	case BreakoutPriceHigh:
		p.HighLookback = c.HighLookback
	case BreakoutMACross:
		p.MAShort, p.MALong = c.MAShort, c.MALong
	}
	if c.volumeEnabled() {
		p.VolLookback = c.VolLookback
	}
	if c.Trailing == TrailingATR {
		p.ATRPeriod = c.ATRPeriod
	}
	return p
}
