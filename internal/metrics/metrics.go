package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "backtest_runs_total", Help: "Backtest runs by outcome"},
		[]string{"status"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "backtest_trades_total", Help: "Ledger transitions by side"},
		[]string{"side"},
	)
	BarsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "backtest_bars_total", Help: "Bars replayed through the engine"},
	)
	RunSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "backtest_run_seconds", Help: "Wall time of one run", Buckets: prometheus.DefBuckets},
	)
)

const (
	StatusOK           = "ok"
	StatusInsufficient = "insufficient_data"
	StatusError        = "error"
)

func init() {
	prometheus.MustRegister(RunsTotal, TradesTotal, BarsTotal, RunSeconds)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
