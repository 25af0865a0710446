package types

import "time"

// Bar is one OHLCV observation. Ts is unix seconds at the bar open.
type Bar struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

func (b Bar) Time() time.Time { return time.Unix(b.Ts, 0).UTC() }

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Exit reasons recorded on SELL trades.
const (
	ReasonBreakout         = "BREAKOUT"
	ReasonMACross          = "MA_CROSS"
	ReasonContainmentBreak = "CONTAINMENT_BREAK"
	ReasonTrailingPct      = "TRAILING_PCT"
	ReasonTrailingATR      = "TRAILING_ATR"
	ReasonTimeStop         = "TIME_STOP"
)

// TradeRecord is one executed ledger action.
type TradeRecord struct {
	Ts     int64   `json:"ts"`
	Index  int     `json:"index"`
	Side   Side    `json:"side"`
	Price  float64 `json:"price"`
	Shares float64 `json:"shares"`
	Reason string  `json:"reason,omitempty"`
}

// Indicators is the per-bar snapshot the signal engine consumes.
// NaN means the value is still inside its warm-up window.
type Indicators struct {
	PriorHigh   float64 // max high of the previous N bars
	MAShort     float64
	MALong      float64
	PrevMAShort float64
	PrevMALong  float64
	TrendMA     float64
	VolMean     float64
	ATR         float64
}

type Action string

const (
	ActionNone Action = "NONE"
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// StepResult describes what happened on one bar.
type StepResult struct {
	Index    int      `json:"index"`
	Ts       int64    `json:"ts"`
	Included bool     `json:"included"`
	PrevIdx  int      `json:"prev_effective_index"` // -1 when there is none
	Action   Action   `json:"action"`
	Reason   string   `json:"reason,omitempty"`
	Fired    []string `json:"fired,omitempty"` // every stop that was true on this bar
}

// Outcome is everything one engine run produced.
type Outcome struct {
	Symbol         string        `json:"symbol"`
	Bars           int           `json:"bars"`
	EffectiveBars  int           `json:"effective_bars"`
	Records        []TradeRecord `json:"records"`
	Steps          []StepResult  `json:"-"`
	InitialCapital float64       `json:"initial_capital"`
	FinalValue     float64       `json:"final_value"`
	LastClose      float64       `json:"last_close"`
	StillHeld      bool          `json:"still_held"`
}
