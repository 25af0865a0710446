package engineobs

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"breakout-backtest/internal/engine"
	"breakout-backtest/internal/interfaces"
	"breakout-backtest/internal/logger"
	"breakout-backtest/internal/trace"
	"breakout-backtest/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
	symbol string
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine, symbol string) interfaces.Engine {
	return &observableEngine{
		engine: eng,
		symbol: symbol,
	}
}

func (oe *observableEngine) Run(ctx context.Context, bars []types.Bar) (*types.Outcome, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", oe.symbol),
		attribute.Int("bars", len(bars)),
	)

	start := time.Now()

	logger.DebugSkip(ctx, 1, "Starting engine run",
		"symbol", oe.symbol,
		"bars", len(bars),
	)

	out, err := oe.engine.Run(ctx, bars)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, engine.ErrInsufficientData) {
			logger.WarnSkip(ctx, 1, "Engine run skipped",
				"symbol", oe.symbol,
				"reason", err.Error(),
			)
			return nil, err
		}
		logger.ErrorWithErrSkip(ctx, 1, "Engine run failed", err,
			"symbol", oe.symbol,
			"bars", len(bars),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("trades", len(out.Records)),
		attribute.Float64("final_value", out.FinalValue),
	)
	logger.InfoSkip(ctx, 1, "Engine run completed",
		"symbol", oe.symbol,
		"bars", out.Bars,
		"effective_bars", out.EffectiveBars,
		"trades", len(out.Records),
		"final_value", out.FinalValue,
		"still_held", out.StillHeld,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return out, nil
}
