package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"breakout-backtest/internal/backtest"
	"breakout-backtest/internal/logger"
	"breakout-backtest/internal/report"
	"breakout-backtest/internal/trace"
	"breakout-backtest/internal/tradelog"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	symbols := flag.String("symbol", "", "comma separated symbols, overrides config")
	from := flag.String("from", "", "start date YYYY-MM-DD, overrides config")
	to := flag.String("to", "", "end date YYYY-MM-DD, overrides config")
	flag.Parse()

	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(*configPath, *symbols, *from, *to))
}

func run(configPath, symbols, from, to string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = trace.Shutdown(context.Background()) }()

	cfg, err := loadConfig(ctx, configPath, symbols, from, to)
	if err != nil {
		return 1
	}
	defer startMetrics(ctx, cfg)()

	src, err := initializeSource(ctx, cfg)
	if err != nil {
		return 1
	}
	bt := initializeRunner(cfg, src)

	start, end := cfg.Range()
	reqs := make([]backtest.Request, 0, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		reqs = append(reqs, backtest.Request{
			Symbol: sym,
			From:   start,
			To:     end,
			Config: cfg.Strategy.EngineConfig(sym),
		})
	}

	logger.Info(ctx, "Starting backtest", "symbols", len(reqs), "source", src.Name(), "parallelism", cfg.Parallelism)
	results := bt.RunBatch(ctx, reqs)

	failed := 0
	for _, res := range results {
		if err := report.Console(os.Stdout, res); err != nil {
			logger.ErrorWithErr(ctx, "Failed to print report", err)
		}
		if res.Err != nil && !res.Insufficient() {
			failed++
		}
	}
	if len(results) > 1 {
		if err := report.Summary(os.Stdout, results); err != nil {
			logger.ErrorWithErr(ctx, "Failed to print summary", err)
		}
	}

	writeOutputs(ctx, cfg.Report.OutDir, cfg.Report.CSV, cfg.Report.TradeLog, results)

	if ctx.Err() != nil {
		logger.Warn(ctx, "Backtest interrupted")
		return 130
	}
	if failed > 0 && failed == len(results) {
		return 1
	}
	return 0
}

func writeOutputs(ctx context.Context, outDir string, csv, tradeLog bool, results []*backtest.Result) {
	if csv {
		op := logger.StartOperation(ctx, "report.WriteCSV", "dir", outDir, "runs", len(results))
		summary, trades, err := report.WriteCSV(outDir, results)
		if err != nil {
			op.EndWithError(err)
		} else {
			op.End()
			logger.Info(ctx, "CSV report written", "summary", summary, "trades", trades)
		}
	}

	if !tradeLog {
		return
	}
	dir := tradelog.Dir(filepath.Join(outDir, "trades"))
	compressOldLogs(ctx, dir)
	op := logger.StartOperation(ctx, "tradelog.Append", "dir", dir, "runs", len(results))
	logged := 0
	for _, res := range results {
		if _, err := tradelog.Append(dir, res); err != nil {
			logger.ErrorWithErr(ctx, "Failed to append trade log", err, "run_id", res.RunID)
			continue
		}
		logged++
	}
	op.End("logged", logged)
}
