package sourceobs

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"breakout-backtest/internal/interfaces"
	"breakout-backtest/internal/logger"
	"breakout-backtest/internal/source"
	"breakout-backtest/internal/trace"
	"breakout-backtest/internal/types"
)

// observableSource wraps a BarSource with logging and tracing
type observableSource struct {
	source interfaces.BarSource
}

var _ interfaces.BarSource = (*observableSource)(nil)

func Wrap(src interfaces.BarSource) interfaces.BarSource {
	return &observableSource{
		source: src,
	}
}

func (s *observableSource) Name() string { return s.source.Name() }

func (s *observableSource) Bars(ctx context.Context, symbol string, from, to time.Time) ([]types.Bar, error) {
	ctx, span := trace.StartSpan(ctx, "source.Bars")
	defer span.End()
	span.SetAttributes(
		attribute.String("source", s.source.Name()),
		attribute.String("symbol", symbol),
	)

	start := time.Now()
	logger.DebugSkip(ctx, 1, "Fetching bars",
		"source", s.source.Name(),
		"symbol", symbol,
		"from", from.Format(time.DateOnly),
		"to", to.Format(time.DateOnly),
	)

	bars, err := s.source.Bars(ctx, symbol, from, to)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, source.ErrNoData) {
			logger.WarnSkip(ctx, 1, "No bars for symbol",
				"source", s.source.Name(),
				"symbol", symbol,
				"error", err,
			)
			return nil, err
		}
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch bars", err,
			"source", s.source.Name(),
			"symbol", symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	span.SetAttributes(attribute.Int("bars", len(bars)))
	logger.DebugSkip(ctx, 1, "Bars fetched successfully",
		"source", s.source.Name(),
		"symbol", symbol,
		"count", len(bars),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return bars, nil
}
