package ta

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"breakout-backtest/internal/types"
)

// Every function returns a slice aligned with its input. Positions inside
// the warm-up window hold NaN.

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// mask overwrites the first lookback values produced by talib (zeros) with NaN.
func mask(out []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the simple moving average over n values.
func SMA(x []float64, n int) []float64 {
	if n <= 0 || len(x) < n {
		return nanSeries(len(x))
	}
	if n == 1 {
		return append([]float64(nil), x...)
	}
	return mask(talib.Sma(x, n), n-1)
}

// PriorMax is the max of the n values strictly before each position.
func PriorMax(x []float64, n int) []float64 {
	out := nanSeries(len(x))
	if n <= 0 || len(x) <= n {
		return out
	}
	var rolling []float64
	if n == 1 {
		rolling = x
	} else {
		rolling = mask(talib.Max(x, n), n-1)
	}
	for i := n; i < len(x); i++ {
		out[i] = rolling[i-1]
	}
	return out
}

// TrueRange with the first value defined as high-low.
func TrueRange(highs, lows, closes []float64) []float64 {
	n := len(closes)
	if len(highs) != n || len(lows) != n {
		return nanSeries(n)
	}
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []float64{highs[0] - lows[0]}
	}
	tr := talib.TRange(highs, lows, closes)
	tr[0] = highs[0] - lows[0]
	return tr
}

// ATR is the simple mean of the true range over period bars.
func ATR(highs, lows, closes []float64, period int) []float64 {
	return SMA(TrueRange(highs, lows, closes), period)
}

// Columns splits bars into aligned high/low/close/volume columns.
func Columns(bars []types.Bar) (highs, lows, closes, vols []float64) {
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	closes = make([]float64, len(bars))
	vols = make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
		vols[i] = b.Vol
	}
	return
}

// Periods selects which series Compute builds. Zero disables a series.
type Periods struct {
	HighLookback int
	MAShort      int
	MALong       int
	TrendMA      int
	VolLookback  int
	ATRPeriod    int
}

// Series holds indicator columns aligned with the bar slice.
type Series struct {
	PriorHigh []float64
	MAShort   []float64
	MALong    []float64
	TrendMA   []float64
	VolMean   []float64
	ATR       []float64
}

func Compute(bars []types.Bar, p Periods) Series {
	highs, lows, closes, vols := Columns(bars)
	n := len(bars)
	build := func(period int, f func() []float64) []float64 {
		if period <= 0 {
			return nanSeries(n)
		}
		return f()
	}
	return Series{
		PriorHigh: build(p.HighLookback, func() []float64 { return PriorMax(highs, p.HighLookback) }),
		MAShort:   build(p.MAShort, func() []float64 { return SMA(closes, p.MAShort) }),
		MALong:    build(p.MALong, func() []float64 { return SMA(closes, p.MALong) }),
		TrendMA:   build(p.TrendMA, func() []float64 { return SMA(closes, p.TrendMA) }),
		VolMean:   build(p.VolLookback, func() []float64 { return SMA(vols, p.VolLookback) }),
		ATR:       build(p.ATRPeriod, func() []float64 { return ATR(highs, lows, closes, p.ATRPeriod) }),
	}
}

// At returns the snapshot for bar i.
func (s Series) At(i int) types.Indicators {
	get := func(x []float64, j int) float64 {
		if j < 0 || j >= len(x) {
			return math.NaN()
		}
		return x[j]
	}
	return types.Indicators{
		PriorHigh:   get(s.PriorHigh, i),
		MAShort:     get(s.MAShort, i),
		MALong:      get(s.MALong, i),
		PrevMAShort: get(s.MAShort, i-1),
		PrevMALong:  get(s.MALong, i-1),
		TrendMA:     get(s.TrendMA, i),
		VolMean:     get(s.VolMean, i),
		ATR:         get(s.ATR, i),
	}
}
