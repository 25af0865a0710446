package engine

import (
	"context"

	"breakout-backtest/internal/effective"
	"breakout-backtest/internal/ledger"
	"breakout-backtest/internal/logger"
	"breakout-backtest/internal/types"
)

// StopInput is what a stop rule sees on a LONG bar. Position.PeakClose
// already includes the current close.
type StopInput struct {
	Index    int
	Bar      types.Bar
	Snap     types.Indicators
	Included bool
	Prev     *effective.Entry
	Position ledger.Position
}

// StopRule is one LONG -> FLAT condition.
type StopRule interface {
	Reason() string
	Triggered(in StopInput) bool
}

type containmentStop struct{}

func (containmentStop) Reason() string { return types.ReasonContainmentBreak }

func (containmentStop) Triggered(in StopInput) bool {
	return in.Included && in.Prev != nil && in.Bar.Low < in.Prev.Bar.Low
}

type trailingPctStop struct{ pct float64 }

func (trailingPctStop) Reason() string { return types.ReasonTrailingPct }

func (s trailingPctStop) Triggered(in StopInput) bool {
	return in.Bar.Close < in.Position.PeakClose*(1-s.pct)
}

type trailingATRStop struct{ mult float64 }

func (trailingATRStop) Reason() string { return types.ReasonTrailingATR }

func (s trailingATRStop) Triggered(in StopInput) bool {
	return available(in.Snap.ATR) && in.Bar.Close < in.Position.PeakClose-s.mult*in.Snap.ATR
}

type timeStop struct{ maxBars int }

func (timeStop) Reason() string { return types.ReasonTimeStop }

func (s timeStop) Triggered(in StopInput) bool {
	return in.Index-in.Position.EntryIndex >= s.maxBars
}

// stopManager evaluates every rule in priority order.
type stopManager struct {
	rules []StopRule
}

func newStopManager(cfg Config) *stopManager {
	sm := &stopManager{}
	if cfg.ContainmentStop {
		sm.rules = append(sm.rules, containmentStop{})
	}
	switch cfg.Trailing {
	case TrailingPct:
		sm.rules = append(sm.rules, trailingPctStop{pct: cfg.TrailingPct})
	case TrailingATR:
		sm.rules = append(sm.rules, trailingATRStop{mult: cfg.ATRMult})
	}
	if cfg.MaxHoldBars > 0 {
		sm.rules = append(sm.rules, timeStop{maxBars: cfg.MaxHoldBars})
	}
	return sm
}

// check returns the reasons of all triggered rules; the first one wins.
func (sm *stopManager) check(ctx context.Context, symbol string, in StopInput) []string {
	var fired []string
	for _, r := range sm.rules {
		if r.Triggered(in) {
			fired = append(fired, r.Reason())
		}
	}
	if len(fired) > 1 {
		logger.Debug(ctx, "Multiple stops triggered",
			"symbol", symbol,
			"bar_index", in.Index,
			"fired", fired,
			"winner", fired[0],
		)
	}
	return fired
}
