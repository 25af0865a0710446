package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"breakout-backtest/internal/backtest"
)

const (
	SummaryFile = "summary.csv"
	TradesFile  = "trades.csv"
)

var (
	summaryHeader = []string{"run_id", "symbol", "variant", "status", "bars", "effective_bars", "trades", "wins", "losses",
		"win_rate", "avg_win", "avg_loss", "win_loss_ratio", "avg_return", "total_return", "initial_capital", "final_value", "still_held"}
	tradesHeader = []string{"run_id", "symbol", "variant", "date", "index", "side", "price", "shares", "reason"}
)

// WriteCSV writes summary.csv and trades.csv for results into dir and
// returns their paths.
func WriteCSV(dir string, results []*backtest.Result) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	summaryPath := filepath.Join(dir, SummaryFile)
	tradesPath := filepath.Join(dir, TradesFile)

	if err := writeCSV(summaryPath, summaryHeader, summaryRows(results)); err != nil {
		return "", "", err
	}
	if err := writeCSV(tradesPath, tradesHeader, tradeRows(results)); err != nil {
		return "", "", err
	}
	return summaryPath, tradesPath, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return out.Close()
}

func summaryRows(results []*backtest.Result) [][]string {
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		row := []string{res.RunID, res.Request.Symbol, res.Request.Variant}
		if res.Err != nil {
			status := "error"
			if res.Insufficient() {
				status = "insufficient_data"
			}
			row = append(row, status)
			for len(row) < len(summaryHeader) {
				row = append(row, "")
			}
			rows = append(rows, row)
			continue
		}
		out, st := res.Outcome, res.Stats
		row = append(row, "ok",
			strconv.Itoa(out.Bars),
			strconv.Itoa(out.EffectiveBars),
			strconv.Itoa(st.TotalTrades),
			strconv.Itoa(st.WinCount),
			strconv.Itoa(st.LossCount),
			price(st.WinRate),
			price(st.AvgWin),
			price(st.AvgLoss),
			ratio(st.WinLossRatio),
			price(st.AvgReturn),
			price(st.TotalReturn),
			money(out.InitialCapital),
			money(out.FinalValue),
			strconv.FormatBool(st.StillHeld),
		)
		rows = append(rows, row)
	}
	return rows
}

func tradeRows(results []*backtest.Result) [][]string {
	var rows [][]string
	for _, res := range results {
		if res.Outcome == nil {
			continue
		}
		for _, r := range res.Outcome.Records {
			rows = append(rows, []string{
				res.RunID, res.Request.Symbol, res.Request.Variant,
				date(r.Ts), strconv.Itoa(r.Index), string(r.Side),
				price(r.Price), price(r.Shares), r.Reason,
			})
		}
	}
	return rows
}
