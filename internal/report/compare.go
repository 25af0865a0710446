package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"breakout-backtest/internal/backtest"
)

type VariantSummary struct {
	Name       string
	Runs       int // evaluated runs only
	Skipped    int
	AvgReturn  float64
	Profitable int
}

// Comparison is the result of running several strategy variants over the
// same symbols.
type Comparison struct {
	Symbols  []string
	Variants []VariantSummary
	// Returns[symbol][variant] for evaluated runs
	Returns map[string]map[string]float64
	// Best variant per symbol, absent when no variant could be evaluated
	Best map[string]string
}

// Compare aggregates batch results. Symbol and variant order follow first
// appearance in results; ties for best variant go to the earlier variant.
func Compare(results []*backtest.Result) Comparison {
	cmp := Comparison{
		Returns: map[string]map[string]float64{},
		Best:    map[string]string{},
	}
	byName := map[string]int{}
	seenSym := map[string]bool{}
	sums := map[string]float64{}

	for _, res := range results {
		sym, name := res.Request.Symbol, res.Request.Variant
		if !seenSym[sym] {
			seenSym[sym] = true
			cmp.Symbols = append(cmp.Symbols, sym)
		}
		i, ok := byName[name]
		if !ok {
			i = len(cmp.Variants)
			byName[name] = i
			cmp.Variants = append(cmp.Variants, VariantSummary{Name: name})
		}
		v := &cmp.Variants[i]
		if res.Err != nil {
			v.Skipped++
			continue
		}
		ret := res.Stats.TotalReturn
		v.Runs++
		sums[name] += ret
		if ret > 0 {
			v.Profitable++
		}
		if cmp.Returns[sym] == nil {
			cmp.Returns[sym] = map[string]float64{}
		}
		cmp.Returns[sym][name] = ret
	}

	for i := range cmp.Variants {
		v := &cmp.Variants[i]
		if v.Runs > 0 {
			v.AvgReturn = sums[v.Name] / float64(v.Runs)
		}
	}
	for _, sym := range cmp.Symbols {
		best, found := 0.0, false
		for _, v := range cmp.Variants {
			ret, ok := cmp.Returns[sym][v.Name]
			if ok && (!found || ret > best) {
				best, found = ret, true
				cmp.Best[sym] = v.Name
			}
		}
	}
	return cmp
}

// WriteComparison prints a symbol × variant return table followed by the
// per-variant summary.
func WriteComparison(w io.Writer, cmp Comparison) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := []string{"SYMBOL"}
	for _, v := range cmp.Variants {
		header = append(header, strings.ToUpper(v.Name))
	}
	header = append(header, "BEST")
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, sym := range cmp.Symbols {
		row := []string{sym}
		for _, v := range cmp.Variants {
			if ret, ok := cmp.Returns[sym][v.Name]; ok {
				row = append(row, pct(ret))
			} else {
				row = append(row, "-")
			}
		}
		best := cmp.Best[sym]
		if best == "" {
			best = "-"
		}
		row = append(row, best)
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	for _, v := range cmp.Variants {
		fmt.Fprintf(w, "%s: avg return %s, profitable %d/%d", v.Name, pct(v.AvgReturn), v.Profitable, v.Runs)
		if v.Skipped > 0 {
			fmt.Fprintf(w, ", %d skipped", v.Skipped)
		}
		fmt.Fprintln(w)
	}
	return nil
}
