// Package source loads daily bar series from CSV files, the Kite historical
// API or a deterministic random walk.
package source

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"breakout-backtest/internal/interfaces"
	"breakout-backtest/internal/types"
)

// ErrNoData is returned when a symbol yields no bars in the requested range.
var ErrNoData = errors.New("no bars for symbol")

const (
	KindCSV       = "CSV"
	KindKite      = "KITE"
	KindSynthetic = "SYNTHETIC"
)

type Params struct {
	Kind string

	// CSV
	CSVDir string

	// KITE
	APIKey      string
	AccessToken string
	Exchange    string
	Interval    string
	CacheDir    string
	CacheTTL    time.Duration
	RatePerSec  float64
	Retries     int

	// SYNTHETIC
	Seed   int64
	BasePx float64
}

// New builds the source selected by p.Kind.
func New(p Params) (interfaces.BarSource, error) {
	switch strings.ToUpper(p.Kind) {
	case KindCSV:
		if p.CSVDir == "" {
			return nil, errors.New("csv source requires a directory")
		}
		return NewCSV(p.CSVDir), nil
	case KindKite:
		if p.APIKey == "" || p.AccessToken == "" {
			return nil, errors.New("kite source requires KITE_API_KEY and KITE_ACCESS_TOKEN")
		}
		k, err := NewKite(p)
		if err != nil {
			return nil, err
		}
		return k, nil
	case KindSynthetic, "":
		return NewSynthetic(p.Seed, p.BasePx), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", p.Kind)
	}
}

// normalize sorts bars by time, keeps the last bar of duplicate timestamps
// and clips to [from, to]. A zero bound is open.
func normalize(bars []types.Bar, from, to time.Time) []types.Bar {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Ts < bars[j].Ts })

	out := bars[:0]
	for _, b := range bars {
		if !from.IsZero() && b.Ts < from.Unix() {
			continue
		}
		if !to.IsZero() && b.Ts > to.Unix() {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Ts == b.Ts {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func valid(b types.Bar) bool {
	return b.High >= b.Low && b.High > 0 && b.Close > 0
}
