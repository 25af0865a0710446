package engine

import (
	"context"
	"fmt"

	"breakout-backtest/internal/effective"
	"breakout-backtest/internal/ledger"
	"breakout-backtest/internal/logger"
	"breakout-backtest/internal/ta"
	"breakout-backtest/internal/types"
)

// Engine is the FLAT/LONG state machine of one run. It is not safe for
// concurrent use; parallel runs each own an Engine.
type Engine struct {
	cfg     Config
	entries []EntryFilter
	stops   *stopManager
	reducer *effective.Reducer
	ledger  *ledger.Ledger
}

func newEngine(cfg Config) (*Engine, error) {
	cfg = cfg.normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:     cfg,
		entries: entryFilters(cfg),
		stops:   newStopManager(cfg),
	}
	e.reset(0)
	return e, nil
}

func (e *Engine) reset(capacity int) {
	e.reducer = effective.NewReducer(capacity)
	e.ledger = ledger.New(e.cfg.InitialCapital, e.cfg.FeeRate, e.cfg.SlippageRate)
}

func (e *Engine) Config() Config              { return e.cfg }
func (e *Engine) Warmup() int                 { return e.cfg.Warmup() }
func (e *Engine) Ledger() *ledger.Ledger      { return e.ledger }
func (e *Engine) Reducer() *effective.Reducer { return e.reducer }

// Step feeds one bar through reduction, signal evaluation and at most one
// ledger transition. Bars must be fed in order.
func (e *Engine) Step(ctx context.Context, index int, bar types.Bar, snap types.Indicators) (types.StepResult, error) {
	res := e.reducer.Add(index, bar)

	sr := types.StepResult{
		Index:    index,
		Ts:       bar.Ts,
		Included: res.Included,
		PrevIdx:  -1,
		Action:   types.ActionNone,
	}
	if res.Prev != nil {
		sr.PrevIdx = res.Prev.Index
	}

	if !e.ledger.IsLong() {
		for _, f := range e.entries {
			if !f.Pass(bar, snap) {
				return sr, nil
			}
		}
		reason := e.entries[0].Name()
		if err := e.ledger.ApplyBuy(bar.Ts, index, bar.Close, reason); err != nil {
			return sr, fmt.Errorf("engine step %d: %w", index, err)
		}
		sr.Action, sr.Reason = types.ActionBuy, reason
		logger.Trade(ctx, e.cfg.Symbol, string(types.SideBuy), index, e.ledger.Shares(), bar.Close, reason)
		return sr, nil
	}

	e.ledger.TrackPeak(bar.Close)
	in := StopInput{
		Index:    index,
		Bar:      bar,
		Snap:     snap,
		Included: res.Included,
		Prev:     res.Prev,
		Position: e.ledger.Position(),
	}
	fired := e.stops.check(ctx, e.cfg.Symbol, in)
	if len(fired) == 0 {
		return sr, nil
	}

	shares := e.ledger.Shares()
	if err := e.ledger.ApplySell(bar.Ts, index, bar.Close, fired[0]); err != nil {
		return sr, fmt.Errorf("engine step %d: %w", index, err)
	}
	sr.Action, sr.Reason, sr.Fired = types.ActionSell, fired[0], fired
	logger.Trade(ctx, e.cfg.Symbol, string(types.SideSell), index, shares, bar.Close, fired[0],
		"entry_price", in.Position.EntryPrice,
		"peak_close", in.Position.PeakClose,
		"bars_held", index-in.Position.EntryIndex,
	)
	return sr, nil
}

// Run replays bars from a fresh state and returns the run outcome. A series
// shorter than Warmup fails with *InsufficientDataError and no trades.
func (e *Engine) Run(ctx context.Context, bars []types.Bar) (*types.Outcome, error) {
	if need := e.Warmup(); len(bars) < need {
		return nil, &InsufficientDataError{Have: len(bars), Need: need}
	}

	e.reset(len(bars))
	op := logger.StartOperation(ctx, "ta.Compute", "symbol", e.cfg.Symbol, "bars", len(bars))
	series := ta.Compute(bars, e.cfg.Periods())
	op.End()

	out := &types.Outcome{
		Symbol:         e.cfg.Symbol,
		Bars:           len(bars),
		Steps:          make([]types.StepResult, 0, len(bars)),
		InitialCapital: e.cfg.InitialCapital,
	}
	for i, b := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sr, err := e.Step(ctx, i, b, series.At(i))
		if err != nil {
			logger.ErrorWithErr(ctx, "Engine step failed", err, "symbol", e.cfg.Symbol, "bar_index", i)
			return nil, err
		}
		out.Steps = append(out.Steps, sr)
	}

	last := bars[len(bars)-1].Close
	out.Records = e.ledger.Records()
	out.EffectiveBars = e.reducer.Len()
	out.LastClose = last
	out.FinalValue = e.ledger.MarkToMarket(last)
	out.StillHeld = e.ledger.IsLong()

	logger.Debug(ctx, "Engine run finished",
		"symbol", e.cfg.Symbol,
		"bars", out.Bars,
		"effective_bars", out.EffectiveBars,
		"trades", len(out.Records),
		"final_value", out.FinalValue,
		"still_held", out.StillHeld,
	)
	return out, nil
}
