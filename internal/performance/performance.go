// Package performance pairs BUY/SELL trade records into round trips and
// computes aggregate statistics.
package performance

import (
	"encoding/json"
	"math"

	"breakout-backtest/internal/types"
)

// Pair is one completed round trip. PnL is per share.
type Pair struct {
	Buy  types.TradeRecord `json:"buy"`
	Sell types.TradeRecord `json:"sell"`
	PnL  float64           `json:"pnl"`
	Ret  float64           `json:"ret"`
}

// Stats summarises a trade log.
//
// WinRate is a fraction of TotalTrades. AvgLoss is the mean PnL of losing
// pairs and is therefore negative; WinLossRatio divides by its magnitude and
// is +Inf when there are wins but no losses.
type Stats struct {
	TotalTrades  int     `json:"total_trades"`
	WinCount     int     `json:"win_count"`
	LossCount    int     `json:"loss_count"`
	WinRate      float64 `json:"win_rate"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	WinLossRatio float64 `json:"win_loss_ratio"`
	AvgReturn    float64 `json:"avg_return"`
	TotalReturn  float64 `json:"total_return"`

	StillHeld bool               `json:"still_held"`
	OpenBuy   *types.TradeRecord `json:"open_buy,omitempty"`
	Pairs     []Pair             `json:"pairs"`
}

// Pairs matches each SELL with the most recent unmatched BUY. A later BUY
// replaces a pending one; a SELL with nothing pending is ignored. The
// trailing unmatched BUY, if any, is returned separately.
func Pairs(records []types.TradeRecord) ([]Pair, *types.TradeRecord) {
	var (
		pairs   []Pair
		pending *types.TradeRecord
	)
	for i := range records {
		r := records[i]
		switch r.Side {
		case types.SideBuy:
			pending = &r
		case types.SideSell:
			if pending == nil {
				continue
			}
			pnl := r.Price - pending.Price
			var ret float64
			if pending.Price != 0 {
				ret = pnl / pending.Price
			}
			pairs = append(pairs, Pair{Buy: *pending, Sell: r, PnL: pnl, Ret: ret})
			pending = nil
		}
	}
	return pairs, pending
}

// Reduce computes Stats for records. initial and final are the starting
// capital and the closing mark-to-market value used for TotalReturn.
func Reduce(records []types.TradeRecord, initial, final float64) Stats {
	pairs, open := Pairs(records)

	s := Stats{
		TotalTrades: len(pairs),
		StillHeld:   open != nil,
		OpenBuy:     open,
		Pairs:       pairs,
	}
	if initial > 0 {
		s.TotalReturn = final/initial - 1
	}
	if len(pairs) == 0 {
		return s
	}

	var sumWin, sumLoss, sumRet float64
	for _, p := range pairs {
		sumRet += p.Ret
		switch {
		case p.PnL > 0:
			s.WinCount++
			sumWin += p.PnL
		case p.PnL < 0:
			s.LossCount++
			sumLoss += p.PnL
		}
	}

	s.WinRate = float64(s.WinCount) / float64(s.TotalTrades)
	s.AvgReturn = sumRet / float64(s.TotalTrades)
	if s.WinCount > 0 {
		s.AvgWin = sumWin / float64(s.WinCount)
	}
	if s.LossCount > 0 {
		s.AvgLoss = sumLoss / float64(s.LossCount)
	}

	switch {
	case s.AvgLoss != 0:
		s.WinLossRatio = s.AvgWin / math.Abs(s.AvgLoss)
	case s.AvgWin > 0:
		s.WinLossRatio = math.Inf(1)
	default:
		s.WinLossRatio = 0
	}
	return s
}

// MarshalJSON writes an infinite ratio as the string "inf".
func (s Stats) MarshalJSON() ([]byte, error) {
	type plain Stats
	var ratio any = s.WinLossRatio
	if math.IsInf(s.WinLossRatio, 1) {
		ratio = "inf"
	}
	return json.Marshal(struct {
		plain
		WinLossRatio any `json:"win_loss_ratio"`
	}{plain(s), ratio})
}

// FromOutcome reduces the records of a finished engine run.
func FromOutcome(out *types.Outcome) Stats {
	if out == nil {
		return Stats{}
	}
	return Reduce(out.Records, out.InitialCapital, out.FinalValue)
}
