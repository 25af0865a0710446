package interfaces

import (
	"context"

	"breakout-backtest/internal/types"
)

// Engine replays a bar series through one configured strategy.
type Engine interface {
	Run(ctx context.Context, bars []types.Bar) (*types.Outcome, error)
}
