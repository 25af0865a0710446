// Package backtest runs the engine against bar sources, one symbol and
// strategy variant per run, optionally many runs in parallel.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"breakout-backtest/internal/engine"
	"breakout-backtest/internal/engine/engineobs"
	"breakout-backtest/internal/interfaces"
	"breakout-backtest/internal/metrics"
	"breakout-backtest/internal/performance"
	"breakout-backtest/internal/source"
	"breakout-backtest/internal/types"
)

// Request describes one run.
type Request struct {
	Symbol  string
	Variant string
	From    time.Time
	To      time.Time
	Config  engine.Config
}

// Result is the outcome of one run. Err is set when the run could not be
// evaluated; it never affects other runs of a batch.
type Result struct {
	RunID    string
	Request  Request
	Outcome  *types.Outcome
	Stats    performance.Stats
	Err      error
	Duration time.Duration
}

// Insufficient reports whether the run was skipped for lack of bars.
func (r *Result) Insufficient() bool {
	return errors.Is(r.Err, engine.ErrInsufficientData) || errors.Is(r.Err, source.ErrNoData)
}

// Backtester is implemented by Runner and its observable wrapper.
type Backtester interface {
	Run(ctx context.Context, req Request) (*Result, error)
	RunBatch(ctx context.Context, reqs []Request) []*Result
}

type Runner struct {
	src         interfaces.BarSource
	parallelism int
}

var _ Backtester = (*Runner)(nil)

type RunnerOption func(*Runner)

// WithParallelism bounds concurrent runs in RunBatch.
func WithParallelism(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

func NewRunner(src interfaces.BarSource, opts ...RunnerOption) *Runner {
	r := &Runner{src: src, parallelism: 4}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run fetches bars for req.Symbol and replays them. The returned Result is
// never nil; the error is the same as Result.Err.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), Request: req}
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		metrics.RunSeconds.Observe(res.Duration.Seconds())
		metrics.RunsTotal.WithLabelValues(status(res)).Inc()
	}()

	bars, err := r.src.Bars(ctx, req.Symbol, req.From, req.To)
	if err != nil {
		res.Err = fmt.Errorf("load %s from %s: %w", req.Symbol, r.src.Name(), err)
		return res, res.Err
	}

	cfg := req.Config
	cfg.Symbol = req.Symbol
	eng, err := engine.New(cfg)
	if err != nil {
		res.Err = err
		return res, err
	}

	out, err := engineobs.Wrap(eng, req.Symbol).Run(ctx, bars)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", req.Symbol, err)
		return res, res.Err
	}

	res.Outcome = out
	res.Stats = performance.FromOutcome(out)

	metrics.BarsTotal.Add(float64(out.Bars))
	for _, rec := range out.Records {
		metrics.TradesTotal.WithLabelValues(string(rec.Side)).Inc()
	}
	return res, nil
}

// RunBatch executes reqs with bounded parallelism and returns results in
// request order. A failed run is reported in its Result.Err.
func (r *Runner) RunBatch(ctx context.Context, reqs []Request) []*Result {
	return Batch(ctx, r, reqs, r.parallelism)
}

func (r *Runner) Parallelism() int { return r.parallelism }

// Batch runs every request through bt with at most limit in flight. Runs
// never cancel each other.
func Batch(ctx context.Context, bt Backtester, reqs []Request, limit int) []*Result {
	results := make([]*Result, len(reqs))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, req := range reqs {
		g.Go(func() error {
			results[i], _ = bt.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func status(res *Result) string {
	switch {
	case res.Err == nil:
		return metrics.StatusOK
	case res.Insufficient():
		return metrics.StatusInsufficient
	default:
		return metrics.StatusError
	}
}
