package engine

import "breakout-backtest/internal/interfaces"

// New builds an engine from a complete config.
func New(cfg Config) (*Engine, error) {
	return newEngine(cfg)
}

// NewWithOptions applies opts on top of DefaultConfig.
func NewWithOptions(opts ...Option) (*Engine, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return newEngine(cfg)
}

var _ interfaces.Engine = (*Engine)(nil)
