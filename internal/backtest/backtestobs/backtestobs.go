package backtestobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"breakout-backtest/internal/backtest"
	"breakout-backtest/internal/logger"
	"breakout-backtest/internal/trace"
)

type observableBacktester struct {
	bt backtest.Backtester
}

var _ backtest.Backtester = (*observableBacktester)(nil)

func Wrap(bt backtest.Backtester) backtest.Backtester {
	return &observableBacktester{bt: bt}
}

func (ob *observableBacktester) Run(ctx context.Context, req backtest.Request) (*backtest.Result, error) {
	ctx, span := trace.StartSpan(ctx, "backtest.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", req.Symbol),
		attribute.String("variant", req.Variant),
	)

	res, err := ob.bt.Run(ctx, req)
	span.SetAttributes(attribute.String("run_id", res.RunID))
	if err != nil {
		span.RecordError(err)
		if res.Insufficient() {
			logger.WarnSkip(ctx, 1, "Backtest skipped",
				"run_id", res.RunID,
				"symbol", req.Symbol,
				"variant", req.Variant,
				"reason", err.Error(),
			)
		} else {
			logger.ErrorWithErrSkip(ctx, 1, "Backtest failed", err,
				"run_id", res.RunID,
				"symbol", req.Symbol,
				"variant", req.Variant,
			)
		}
		return res, err
	}

	span.SetAttributes(
		attribute.Int("trades", res.Stats.TotalTrades),
		attribute.Float64("total_return", res.Stats.TotalReturn),
	)
	logger.InfoSkip(ctx, 1, "Backtest completed",
		"run_id", res.RunID,
		"symbol", req.Symbol,
		"variant", req.Variant,
		"trades", res.Stats.TotalTrades,
		"win_rate", res.Stats.WinRate,
		"total_return", res.Stats.TotalReturn,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// RunBatch fans out through Run so every run gets its own span.
func (ob *observableBacktester) RunBatch(ctx context.Context, reqs []backtest.Request) []*backtest.Result {
	ctx, span := trace.StartSpan(ctx, "backtest.RunBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("runs", len(reqs)))

	start := time.Now()
	results := backtest.Batch(ctx, ob, reqs, parallelism(ob.bt))

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("failed", failed))
	logger.InfoSkip(ctx, 1, "Batch completed",
		"runs", len(reqs),
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results
}

func parallelism(bt backtest.Backtester) int {
	if p, ok := bt.(interface{ Parallelism() int }); ok {
		return p.Parallelism()
	}
	return 1
}
