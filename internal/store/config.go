package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"breakout-backtest/internal/engine"
	"breakout-backtest/internal/source"
)

const dateLayout = "2006-01-02"

type Config struct {
	Source struct {
		Kind          string  `yaml:"kind"`
		CSVDir        string  `yaml:"csv_dir"`
		Exchange      string  `yaml:"exchange"`
		Interval      string  `yaml:"interval"`
		CacheDir      string  `yaml:"cache_dir"`
		CacheTTLHours float64 `yaml:"cache_ttl_hours"`
		RatePerSec    float64 `yaml:"rate_per_sec"`
		Retries       int     `yaml:"retries"`
		Seed          int64   `yaml:"seed"`
		BasePrice     float64 `yaml:"base_price"`
	} `yaml:"source"`
	Symbols  []string `yaml:"symbols"`
	From     string   `yaml:"from"`
	To       string   `yaml:"to"`
	Strategy Strategy `yaml:"strategy"`
	Report   struct {
		OutDir   string `yaml:"out_dir"`
		CSV      bool   `yaml:"csv"`
		TradeLog bool   `yaml:"trade_log"`
	} `yaml:"report"`
	MetricsAddr string    `yaml:"metrics_addr"`
	Parallelism int       `yaml:"parallelism"`
	Variants    []Variant `yaml:"variants"`

	from, to time.Time
}

type Strategy struct {
	Breakout struct {
		PriceHigh *struct {
			Lookback int `yaml:"lookback"`
		} `yaml:"price_high"`
		MACross *struct {
			Short int `yaml:"short"`
			Long  int `yaml:"long"`
		} `yaml:"ma_cross"`
	} `yaml:"breakout"`
	TrendMA int `yaml:"trend_ma"`
	Volume  struct {
		Lookback   int     `yaml:"lookback"`
		Multiplier float64 `yaml:"multiplier"`
	} `yaml:"volume"`
	ContainmentStop *bool `yaml:"containment_stop"`
	TrailingStop    struct {
		Pct *float64 `yaml:"pct"`
		ATR *struct {
			Period int     `yaml:"period"`
			Mult   float64 `yaml:"mult"`
		} `yaml:"atr"`
	} `yaml:"trailing_stop"`
	MaxHoldBars    int     `yaml:"max_hold_bars"`
	FeeRate        float64 `yaml:"fee_rate"`
	SlippageBP     float64 `yaml:"slippage_bp"`
	InitialCapital float64 `yaml:"initial_capital"`
}

// Variant is a named set of strategy overrides applied on top of the base
// strategy. Naming breakout or trailing_stop replaces that whole section.
type Variant struct {
	Name      string    `yaml:"name"`
	Overrides yaml.Node `yaml:"strategy"`

	Strategy Strategy `yaml:"-"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", engine.ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

func (s Strategy) validate() error {
	if s.Breakout.PriceHigh != nil && s.Breakout.MACross != nil {
		return invalid("strategy.breakout: both price_high and ma_cross configured")
	}
	if s.TrailingStop.Pct != nil && s.TrailingStop.ATR != nil {
		return invalid("strategy.trailing_stop: both pct and atr configured")
	}
	if s.SlippageBP < 0 {
		return invalid("strategy.slippage_bp must be >= 0, got %v", s.SlippageBP)
	}
	return s.EngineConfig("").Validate()
}

// EngineConfig converts s to an engine config for symbol.
func (s Strategy) EngineConfig(symbol string) engine.Config {
	opts := []engine.Option{engine.WithSymbol(symbol)}

	if b := s.Breakout.PriceHigh; b != nil {
		opts = append(opts, engine.WithPriceBreakout(b.Lookback))
	}
	if b := s.Breakout.MACross; b != nil {
		opts = append(opts, engine.WithMACross(b.Short, b.Long))
	}
	if s.TrendMA > 0 {
		opts = append(opts, engine.WithTrendFilter(s.TrendMA))
	}
	if s.Volume.Multiplier > 0 {
		opts = append(opts, engine.WithVolumeFilter(s.Volume.Lookback, s.Volume.Multiplier))
	}
	if s.ContainmentStop != nil {
		opts = append(opts, engine.WithContainmentStop(*s.ContainmentStop))
	}
	if s.TrailingStop.Pct != nil {
		opts = append(opts, engine.WithTrailingPct(*s.TrailingStop.Pct))
	}
	if a := s.TrailingStop.ATR; a != nil {
		opts = append(opts, engine.WithTrailingATR(a.Period, a.Mult))
	}
	opts = append(opts,
		engine.WithMaxHold(s.MaxHoldBars),
		engine.WithFees(s.FeeRate, s.SlippageBP/10000),
	)
	if s.InitialCapital > 0 {
		opts = append(opts, engine.WithCapital(s.InitialCapital))
	}

	cfg := engine.DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return errors.New("symbols cannot be empty")
	}
	switch c.Source.Kind {
	case source.KindCSV:
		if c.Source.CSVDir == "" {
			return errors.New("source.csv_dir is required for CSV source")
		}
	case source.KindKite, source.KindSynthetic:
	default:
		return fmt.Errorf("invalid source.kind '%s': must be 'CSV', 'KITE' or 'SYNTHETIC'", c.Source.Kind)
	}
	if c.Source.CacheTTLHours < 0 || c.Source.RatePerSec < 0 || c.Source.Retries < 0 {
		return errors.New("source.cache_ttl_hours, rate_per_sec and retries must be >= 0")
	}

	var err error
	if c.from, err = parseDate(c.From); err != nil {
		return fmt.Errorf("from: %w", err)
	}
	if c.to, err = parseDate(c.To); err != nil {
		return fmt.Errorf("to: %w", err)
	}
	if !c.from.IsZero() && !c.to.IsZero() && c.to.Before(c.from) {
		return fmt.Errorf("to (%s) is before from (%s)", c.To, c.From)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must be >= 0, got %d", c.Parallelism)
	}

	if err := c.Strategy.validate(); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i, v := range c.Variants {
		if v.Name == "" {
			return fmt.Errorf("variants[%d]: name is required", i)
		}
		if seen[v.Name] {
			return fmt.Errorf("variants[%d]: duplicate name '%s'", i, v.Name)
		}
		seen[v.Name] = true
		if err := v.Strategy.validate(); err != nil {
			return fmt.Errorf("variant %s: %w", v.Name, err)
		}
	}
	return nil
}

// Range returns the parsed from/to bounds. A zero time is an open bound.
func (c *Config) Range() (time.Time, time.Time) { return c.from, c.to }

// SetRange overrides the date bounds, usually from command line flags.
func (c *Config) SetRange(from, to string) error {
	if from != "" {
		c.From = from
	}
	if to != "" {
		c.To = to
	}
	return c.Validate()
}

// SourceParams builds bar source parameters. Kite credentials come from
// KITE_API_KEY and KITE_ACCESS_TOKEN.
func (c *Config) SourceParams() source.Params {
	return source.Params{
		Kind:        c.Source.Kind,
		CSVDir:      c.Source.CSVDir,
		APIKey:      os.Getenv("KITE_API_KEY"),
		AccessToken: os.Getenv("KITE_ACCESS_TOKEN"),
		Exchange:    c.Source.Exchange,
		Interval:    c.Source.Interval,
		CacheDir:    c.Source.CacheDir,
		CacheTTL:    time.Duration(c.Source.CacheTTLHours * float64(time.Hour)),
		RatePerSec:  c.Source.RatePerSec,
		Retries:     c.Source.Retries,
		Seed:        c.Source.Seed,
		BasePx:      c.Source.BasePrice,
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

func ParseConfig(b []byte) (*Config, error) {
	var c Config
	// Preset so an explicit retries: 0 survives decoding.
	c.Source.Retries = 3
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.Source.Kind = strings.ToUpper(c.Source.Kind)
	if c.Source.Kind == "" {
		c.Source.Kind = source.KindSynthetic
	}
	if c.Source.Interval == "" {
		c.Source.Interval = "day"
	}
	if c.Report.OutDir == "" {
		c.Report.OutDir = "reports"
	}
	if c.Parallelism == 0 {
		c.Parallelism = 4
	}
	for i := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(c.Symbols[i]))
	}

	for i := range c.Variants {
		s, err := c.Strategy.apply(&c.Variants[i].Overrides)
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", c.Variants[i].Name, err)
		}
		c.Variants[i].Strategy = s
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

// apply decodes overrides onto a copy of s. Pointer sections named by the
// overrides are cleared first so the base strategy is never written through.
func (s Strategy) apply(overrides *yaml.Node) (Strategy, error) {
	if overrides.Kind == 0 {
		return s, nil
	}
	if overrides.Kind != yaml.MappingNode {
		return s, errors.New("strategy overrides must be a mapping")
	}
	for i := 0; i+1 < len(overrides.Content); i += 2 {
		switch overrides.Content[i].Value {
		case "breakout":
			s.Breakout.PriceHigh, s.Breakout.MACross = nil, nil
		case "trailing_stop":
			s.TrailingStop.Pct, s.TrailingStop.ATR = nil, nil
		case "containment_stop":
			s.ContainmentStop = nil
		}
	}
	if err := overrides.Decode(&s); err != nil {
		return s, err
	}
	return s, nil
}
