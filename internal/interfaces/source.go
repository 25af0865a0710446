package interfaces

import (
	"context"
	"time"

	"breakout-backtest/internal/types"
)

// BarSource returns the bars of symbol in [from, to], oldest first.
type BarSource interface {
	Name() string
	Bars(ctx context.Context, symbol string, from, to time.Time) ([]types.Bar, error)
}
