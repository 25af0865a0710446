package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"breakout-backtest/internal/engine"
)

const baseYAML = `
source:
  kind: kite
  exchange: NSE
  cache_dir: .cache
  cache_ttl_hours: 12
symbols: [infy, " tcs "]
from: 2020-01-01
to: 2024-12-31
strategy:
  breakout:
    price_high:
      lookback: 10
  trend_ma: 50
  volume:
    lookback: 20
    multiplier: 1.5
  trailing_stop:
    pct: 0.08
  max_hold_bars: 30
  fee_rate: 0.001
  slippage_bp: 5
variants:
  - name: ma
    strategy:
      breakout:
        ma_cross: {short: 10, long: 30}
  - name: atr
    strategy:
      trailing_stop:
        atr: {period: 14, mult: 3}
      containment_stop: false
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(baseYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KITE_API_KEY", "key")
	t.Setenv("KITE_ACCESS_TOKEN", "token")

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Source.Kind != "KITE" || c.Source.Interval != "day" || c.Parallelism != 4 {
		t.Errorf("Expected normalised source and defaults, got %+v parallelism=%d", c.Source, c.Parallelism)
	}
	if strings.Join(c.Symbols, ",") != "INFY,TCS" {
		t.Errorf("Expected upper-cased symbols, got %v", c.Symbols)
	}
	from, to := c.Range()
	if from.Year() != 2020 || to.Format(dateLayout) != "2024-12-31" {
		t.Errorf("Unexpected range %v - %v", from, to)
	}

	p := c.SourceParams()
	if p.APIKey != "key" || p.AccessToken != "token" || p.CacheTTL != 12*time.Hour {
		t.Errorf("Unexpected source params %+v", p)
	}

	ec := c.Strategy.EngineConfig("INFY")
	if ec.Symbol != "INFY" || ec.Breakout != engine.BreakoutPriceHigh || ec.HighLookback != 10 {
		t.Errorf("Unexpected breakout config %+v", ec)
	}
	if ec.Trailing != engine.TrailingPct || ec.TrailingPct != 0.08 || !ec.ContainmentStop {
		t.Errorf("Unexpected stop config %+v", ec)
	}
	if ec.SlippageRate != 0.0005 || ec.InitialCapital != 100000 || ec.VolMultiplier != 1.5 {
		t.Errorf("Unexpected costs or volume %+v", ec)
	}
}

func TestVariantsOverrideBase(t *testing.T) {
	c, err := ParseConfig([]byte(baseYAML))
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Variants) != 2 {
		t.Fatalf("Expected 2 variants, got %d", len(c.Variants))
	}

	ma := c.Variants[0].Strategy.EngineConfig("X")
	if ma.Breakout != engine.BreakoutMACross || ma.MAShort != 10 || ma.MALong != 30 {
		t.Errorf("Expected ma cross variant, got %+v", ma)
	}
	if ma.Trailing != engine.TrailingPct || ma.TrendPeriod != 50 {
		t.Errorf("Expected untouched sections to be inherited, got %+v", ma)
	}

	atr := c.Variants[1].Strategy.EngineConfig("X")
	if atr.Trailing != engine.TrailingATR || atr.ATRPeriod != 14 || atr.ContainmentStop {
		t.Errorf("Expected atr variant without containment stop, got %+v", atr)
	}
	if atr.HighLookback != 10 {
		t.Errorf("Expected inherited breakout lookback, got %d", atr.HighLookback)
	}

	if base := c.Strategy.EngineConfig("X"); !base.ContainmentStop || base.Trailing != engine.TrailingPct {
		t.Errorf("Variant overrides leaked into base strategy: %+v", base)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name       string
		yaml       string
		wantConfig bool
	}{
		{"no symbols", "strategy: {}", false},
		{"bad kind", "symbols: [A]\nsource: {kind: parquet}", false},
		{"csv without dir", "symbols: [A]\nsource: {kind: csv}", false},
		{"bad date", "symbols: [A]\nfrom: 01/02/2020", false},
		{"reversed range", "symbols: [A]\nfrom: 2021-01-01\nto: 2020-01-01", false},
		{"both breakouts", "symbols: [A]\nstrategy:\n  breakout:\n    price_high: {lookback: 5}\n    ma_cross: {short: 2, long: 5}", true},
		{"both trailing", "symbols: [A]\nstrategy:\n  trailing_stop:\n    pct: 0.1\n    atr: {period: 14, mult: 2}", true},
		{"bad lookback", "symbols: [A]\nstrategy:\n  breakout:\n    price_high: {lookback: 0}", true},
		{"bad pct", "symbols: [A]\nstrategy:\n  trailing_stop: {pct: 1.5}", true},
		{"negative slippage", "symbols: [A]\nstrategy: {slippage_bp: -1}", true},
		{"bad variant", "symbols: [A]\nvariants:\n  - name: v\n    strategy: {fee_rate: -0.1}", true},
		{"unnamed variant", "symbols: [A]\nvariants:\n  - strategy: {}", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if got := errors.Is(err, engine.ErrInvalidConfiguration); got != tt.wantConfig {
				t.Errorf("Expected ErrInvalidConfiguration=%v, got %v", tt.wantConfig, err)
			}
		})
	}
}

func TestMinimalConfigDefaults(t *testing.T) {
	c, err := ParseConfig([]byte("symbols: [a]"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Source.Kind != "SYNTHETIC" || c.Report.OutDir != "reports" || c.Source.Retries != 3 {
		t.Errorf("Unexpected defaults %+v %+v", c.Source, c.Report)
	}
	ec := c.Strategy.EngineConfig("A")
	if ec.Breakout != engine.BreakoutPriceHigh || ec.HighLookback != 20 || !ec.ContainmentStop {
		t.Errorf("Expected default engine config, got %+v", ec)
	}
	if err := c.SetRange("2023-01-01", ""); err != nil {
		t.Fatal(err)
	}
	if from, _ := c.Range(); from.Year() != 2023 {
		t.Errorf("Expected overridden from, got %v", from)
	}
}

func TestExplicitZeroRetriesIsKept(t *testing.T) {
	c, err := ParseConfig([]byte("symbols: [a]\nsource:\n  retries: 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Source.Retries != 0 || c.SourceParams().Retries != 0 {
		t.Errorf("Expected retries 0 to be kept, got %d", c.Source.Retries)
	}
}
