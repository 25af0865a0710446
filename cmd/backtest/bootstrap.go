package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"breakout-backtest/internal/backtest"
	"breakout-backtest/internal/backtest/backtestobs"
	"breakout-backtest/internal/interfaces"
	"breakout-backtest/internal/logger"
	"breakout-backtest/internal/metrics"
	"breakout-backtest/internal/source"
	"breakout-backtest/internal/source/sourceobs"
	"breakout-backtest/internal/store"
	"breakout-backtest/internal/trace"
	"breakout-backtest/internal/tradelog"

	"github.com/joho/godotenv"
)

// initializeSystem loads .env and initializes logger and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// loadConfig loads the configuration and applies command line overrides
func loadConfig(ctx context.Context, path, symbols, from, to string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	if symbols != "" {
		cfg.Symbols = nil
		for _, s := range strings.Split(symbols, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				cfg.Symbols = append(cfg.Symbols, s)
			}
		}
	}
	if err := cfg.SetRange(from, to); err != nil {
		logger.ErrorWithErr(ctx, "Invalid command line override", err)
		return nil, err
	}
	return cfg, nil
}

// initializeSource builds the configured bar source with observability
func initializeSource(ctx context.Context, cfg *store.Config) (interfaces.BarSource, error) {
	src, err := source.New(cfg.SourceParams())
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to create bar source", err, "kind", cfg.Source.Kind)
		return nil, err
	}

	switch cfg.Source.Kind {
	case source.KindKite:
		logger.Info(ctx, "Using Kite historical data", "exchange", cfg.Source.Exchange, "interval", cfg.Source.Interval)
	case source.KindCSV:
		logger.Info(ctx, "Using CSV bars", "dir", cfg.Source.CSVDir)
	default:
		logger.Warn(ctx, "Using SYNTHETIC random walk bars - results are not market data")
	}

	return sourceobs.Wrap(src), nil
}

// initializeRunner creates the backtest runner with observability
func initializeRunner(cfg *store.Config, src interfaces.BarSource) backtest.Backtester {
	runner := backtest.NewRunner(src, backtest.WithParallelism(cfg.Parallelism))
	return backtestobs.Wrap(runner)
}

// startMetrics exposes /metrics when metrics_addr is configured and returns
// a shutdown func
func startMetrics(ctx context.Context, cfg *store.Config) func() {
	if cfg.MetricsAddr == "" {
		return func() {}
	}
	srv := metrics.Serve(cfg.MetricsAddr)
	logger.Info(ctx, "Serving metrics", "addr", cfg.MetricsAddr)
	return func() { shutdownServer(srv) }
}

func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// compressOldLogs compresses old trade logs if retention is configured
func compressOldLogs(ctx context.Context, dir string) {
	v := os.Getenv("BACKTEST_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn(ctx, "Ignoring invalid BACKTEST_LOG_RETENTION_DAYS", "value", v)
		return
	}
	if err := tradelog.CompressOlder(dir, n); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}
