package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"breakout-backtest/internal/backtest"
	"breakout-backtest/internal/backtest/backtestobs"
	"breakout-backtest/internal/logger"
	"breakout-backtest/internal/report"
	"breakout-backtest/internal/source"
	"breakout-backtest/internal/source/sourceobs"
	"breakout-backtest/internal/store"
	"breakout-backtest/internal/trace"

	"github.com/joho/godotenv"
)

const baseVariant = "base"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	withBase := flag.Bool("base", true, "include the base strategy as variant \"base\"")
	csvOut := flag.Bool("csv", false, "also write summary.csv and trades.csv to report.out_dir")
	flag.Parse()

	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	os.Exit(run(*configPath, *withBase, *csvOut))
}

func run(configPath string, withBase, csvOut bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = trace.Shutdown(context.Background()) }()

	cfg, err := store.LoadConfig(configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", configPath)
		return 1
	}

	variants := cfg.Variants
	if withBase {
		variants = append([]store.Variant{{Name: baseVariant, Strategy: cfg.Strategy}}, variants...)
	}
	if len(variants) < 2 {
		logger.Error(ctx, "Nothing to compare, configure at least one entry under variants")
		return 1
	}

	src, err := source.New(cfg.SourceParams())
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to create bar source", err, "kind", cfg.Source.Kind)
		return 1
	}
	bt := backtestobs.Wrap(backtest.NewRunner(sourceobs.Wrap(src), backtest.WithParallelism(cfg.Parallelism)))

	start, end := cfg.Range()
	var reqs []backtest.Request
	for _, sym := range cfg.Symbols {
		for _, v := range variants {
			reqs = append(reqs, backtest.Request{
				Symbol:  sym,
				Variant: v.Name,
				From:    start,
				To:      end,
				Config:  v.Strategy.EngineConfig(sym),
			})
		}
	}

	logger.Info(ctx, "Comparing variants", "variants", len(variants), "symbols", len(cfg.Symbols), "runs", len(reqs))
	results := bt.RunBatch(ctx, reqs)
	if ctx.Err() != nil {
		logger.Warn(ctx, "Comparison interrupted")
		return 130
	}

	if err := report.WriteComparison(os.Stdout, report.Compare(results)); err != nil {
		logger.ErrorWithErr(ctx, "Failed to print comparison", err)
		return 1
	}
	if csvOut {
		summary, trades, err := report.WriteCSV(cfg.Report.OutDir, results)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to write CSV report", err, "dir", cfg.Report.OutDir)
			return 1
		}
		logger.Info(ctx, "CSV report written", "summary", summary, "trades", trades)
	}
	return 0
}
