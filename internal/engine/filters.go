package engine

import (
	"math"

	"breakout-backtest/internal/types"
)

// EntryFilter is one condition of the FLAT -> LONG transition. All filters
// of an engine must pass on the same bar.
type EntryFilter interface {
	Name() string
	Pass(bar types.Bar, snap types.Indicators) bool
}

func available(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return false
		}
	}
	return true
}

type priceHighBreakout struct{}

func (priceHighBreakout) Name() string { return types.ReasonBreakout }

func (priceHighBreakout) Pass(bar types.Bar, snap types.Indicators) bool {
	return available(snap.PriorHigh) && bar.Close > snap.PriorHigh
}

type maCrossBreakout struct{}

func (maCrossBreakout) Name() string { return types.ReasonMACross }

func (maCrossBreakout) Pass(_ types.Bar, snap types.Indicators) bool {
	if !available(snap.PrevMAShort, snap.PrevMALong, snap.MAShort, snap.MALong) {
		return false
	}
	return snap.PrevMAShort <= snap.PrevMALong && snap.MAShort > snap.MALong
}

type trendFilter struct{}

func (trendFilter) Name() string { return "TREND" }

func (trendFilter) Pass(bar types.Bar, snap types.Indicators) bool {
	return available(snap.TrendMA) && bar.Close > snap.TrendMA
}

type volumeFilter struct{ mult float64 }

func (volumeFilter) Name() string { return "VOLUME" }

func (f volumeFilter) Pass(bar types.Bar, snap types.Indicators) bool {
	return available(snap.VolMean) && bar.Vol > f.mult*snap.VolMean
}

// entryFilters builds the filter chain; the breakout filter is always first
// and names the BUY record.
func entryFilters(cfg Config) []EntryFilter {
	var fs []EntryFilter
	switch cfg.Breakout {
	case BreakoutMACross:
		fs = append(fs, maCrossBreakout{})
	default:
		fs = append(fs, priceHighBreakout{})
	}
	if cfg.TrendPeriod > 0 {
		fs = append(fs, trendFilter{})
	}
	if cfg.volumeEnabled() {
		fs = append(fs, volumeFilter{mult: cfg.VolMultiplier})
	}
	return fs
}
