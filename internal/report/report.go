// Package report renders backtest results as console tables and CSV files.
package report

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"breakout-backtest/internal/backtest"
)

func money(v float64) string { return decimal.NewFromFloat(v).StringFixed(2) }

func price(v float64) string { return decimal.NewFromFloat(v).StringFixed(4) }

func pct(v float64) string { return decimal.NewFromFloat(v).Shift(2).StringFixed(2) + "%" }

func ratio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

func date(ts int64) string { return time.Unix(ts, 0).UTC().Format(time.DateOnly) }

func title(res *backtest.Result) string {
	if res.Request.Variant != "" {
		return res.Request.Symbol + " [" + res.Request.Variant + "]"
	}
	return res.Request.Symbol
}

// Console writes a human readable report of one run. Runs that could not be
// evaluated print their reason instead of statistics.
func Console(w io.Writer, res *backtest.Result) error {
	fmt.Fprintf(w, "=== %s ===\n", title(res))
	if res.Err != nil {
		_, err := fmt.Fprintf(w, "cannot evaluate: %v\n\n", res.Err)
		return err
	}

	out, st := res.Outcome, res.Stats
	fmt.Fprintf(w, "run %s, %d bars (%d effective)\n", res.RunID, out.Bars, out.EffectiveBars)

	if len(out.Records) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "DATE\tSIDE\tPRICE\tSHARES\tREASON")
		for _, r := range out.Records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", date(r.Ts), r.Side, price(r.Price), price(r.Shares), r.Reason)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "final value %s (total return %s) from %s\n", price(out.FinalValue), pct(st.TotalReturn), money(out.InitialCapital))
	fmt.Fprintf(w, "win rate %s | win/loss %s\n", pct(st.WinRate), ratio(st.WinLossRatio))
	fmt.Fprintf(w, "avg win %s | avg loss %s | avg return %s\n", price(st.AvgWin), price(st.AvgLoss), pct(st.AvgReturn))
	if st.TotalTrades > 0 {
		fmt.Fprintf(w, "trades: %d won / %d lost / %d total\n", st.WinCount, st.LossCount, st.TotalTrades)
	}
	if st.StillHeld {
		fmt.Fprintf(w, "still holding %s shares bought %s at %s, marked at %s\n",
			price(st.OpenBuy.Shares), date(st.OpenBuy.Ts), price(st.OpenBuy.Price), price(out.LastClose))
	}
	_, err := fmt.Fprintln(w)
	return err
}

// Summary writes one row per run.
func Summary(w io.Writer, results []*backtest.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SYMBOL\tVARIANT\tTRADES\tWIN RATE\tW/L\tRETURN\tFINAL\t")
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\t-\t\n", res.Request.Symbol, res.Request.Variant)
			continue
		}
		st := res.Stats
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t\n",
			res.Request.Symbol, res.Request.Variant, st.TotalTrades,
			pct(st.WinRate), ratio(st.WinLossRatio), pct(st.TotalReturn), money(res.Outcome.FinalValue))
	}
	return tw.Flush()
}
