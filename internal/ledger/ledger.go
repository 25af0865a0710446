// Package ledger holds the cash, share and position bookkeeping of one
// single-asset, long-only backtest run.
package ledger

import (
	"errors"
	"fmt"

	"breakout-backtest/internal/types"
)

var (
	// ErrInvalidTransition is returned for a buy while LONG or a sell while FLAT.
	ErrInvalidTransition = errors.New("invalid ledger transition")
	// ErrInvalidPrice is returned for a buy at a price that cannot size a position.
	ErrInvalidPrice = errors.New("invalid fill price")
)

type State string

const (
	Flat State = "FLAT"
	Long State = "LONG"
)

// Position is the single live position. PeakClose is only meaningful while LONG.
type Position struct {
	State      State
	EntryPrice float64
	EntryIndex int
	PeakClose  float64
}

// Ledger owns cash, shares, the position and the trade log.
type Ledger struct {
	initial  float64
	cash     float64
	shares   float64
	feeRate  float64
	slipRate float64
	pos      Position
	records  []types.TradeRecord
}

// New creates a flat ledger. feeRate and slipRate are fractions of the price.
func New(initialCapital, feeRate, slipRate float64) *Ledger {
	return &Ledger{
		initial:  initialCapital,
		cash:     initialCapital,
		feeRate:  feeRate,
		slipRate: slipRate,
		pos:      Position{State: Flat, EntryIndex: -1},
	}
}

// ApplyBuy invests all cash at price.
func (l *Ledger) ApplyBuy(ts int64, index int, price float64, reason string) error {
	if l.pos.State == Long {
		return fmt.Errorf("buy at index %d while long since %d: %w", index, l.pos.EntryIndex, ErrInvalidTransition)
	}
	if price <= 0 {
		return fmt.Errorf("buy at index %d: non-positive price %v: %w", index, price, ErrInvalidPrice)
	}

	shares := l.cash / (price * (1 + l.feeRate + l.slipRate))
	l.shares = shares
	l.cash = 0
	l.pos = Position{State: Long, EntryPrice: price, EntryIndex: index, PeakClose: price}
	l.records = append(l.records, types.TradeRecord{
		Ts: ts, Index: index, Side: types.SideBuy, Price: price, Shares: shares, Reason: reason,
	})
	return nil
}

// ApplySell liquidates the whole position at price.
func (l *Ledger) ApplySell(ts int64, index int, price float64, reason string) error {
	if l.pos.State != Long {
		return fmt.Errorf("sell at index %d while flat: %w", index, ErrInvalidTransition)
	}

	shares := l.shares
	l.cash = shares * (price * (1 - l.feeRate - l.slipRate))
	l.shares = 0
	l.pos = Position{State: Flat, EntryIndex: -1}
	l.records = append(l.records, types.TradeRecord{
		Ts: ts, Index: index, Side: types.SideSell, Price: price, Shares: shares, Reason: reason,
	})
	return nil
}

// TrackPeak raises PeakClose to close while LONG. It never lowers it.
func (l *Ledger) TrackPeak(close float64) {
	if l.pos.State == Long && close > l.pos.PeakClose {
		l.pos.PeakClose = close
	}
}

// MarkToMarket is cash + shares × lastClose.
func (l *Ledger) MarkToMarket(lastClose float64) float64 {
	return l.cash + l.shares*lastClose
}

func (l *Ledger) Position() Position { return l.pos }
func (l *Ledger) Cash() float64      { return l.cash }
func (l *Ledger) Shares() float64    { return l.shares }
func (l *Ledger) Initial() float64   { return l.initial }
func (l *Ledger) IsLong() bool       { return l.pos.State == Long }

// Records returns a copy of the trade log.
func (l *Ledger) Records() []types.TradeRecord {
	out := make([]types.TradeRecord, len(l.records))
	copy(out, l.records)
	return out
}
