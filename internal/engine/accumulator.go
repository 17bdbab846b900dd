package engine

import (
	"time"

	"marketview/internal/domain"

	"github.com/shopspring/decimal"
)

// WindowAccumulator converts a live trade-print sequence plus a seeded
// backfill value into a continuously-growing buy/sell/total notional
// figure anchored at a fixed start instant.
//
// The ticker feed's rolling 24h total is never consulted here: trades
// aging out of that window produce negative diffs indistinguishable
// from real decreases, so only individually-timestamped prints count
// toward the live portion of the window.
//
// Start never slides forward while the subscription lives. The figure
// reads "volume since the subscription opened, floored one window back
// at open time", which is the product's documented behavior.
type WindowAccumulator struct {
	start time.Time
	total decimal.Decimal
	buy   decimal.Decimal
	sell  decimal.Decimal
}

// NewWindowAccumulator anchors an accumulator at start and seeds it
// from the snapshot's hourly figures. When the snapshot carries no side
// breakdown the seed is split 50/50 between buy and sell, a documented
// approximation corrected by subsequent live trades; buy+sell may then
// not equal total exactly.
func NewWindowAccumulator(start time.Time, seed domain.SymbolSnapshot) *WindowAccumulator {
	acc := &WindowAccumulator{
		start: start,
		total: seed.HourlyTotal,
	}
	if seed.HasSideSplit {
		acc.buy = seed.HourlyBuy
		acc.sell = seed.HourlySell
	} else {
		half := seed.HourlyTotal.Div(decimal.NewFromInt(2))
		acc.buy = half
		acc.sell = half
	}
	return acc
}

// Apply adds one trade print to the window. Prints timestamped before
// the anchor or after now are late/out-of-order feed artifacts (or
// transport clock skew) and are rejected; ok reports whether the trade
// was counted.
func (a *WindowAccumulator) Apply(trade domain.Trade, now time.Time) bool {
	if trade.Time.Before(a.start) || trade.Time.After(now) {
		return false
	}

	notional := trade.Notional()
	a.total = a.total.Add(notional)
	if trade.Side == domain.SideSell {
		a.sell = a.sell.Add(notional)
	} else {
		a.buy = a.buy.Add(notional)
	}
	return true
}

// Window returns the current figure as the store-facing window record.
func (a *WindowAccumulator) Window() domain.HourlyWindow {
	return domain.HourlyWindow{
		Start: a.start,
		Total: a.total,
		Buy:   a.buy,
		Sell:  a.sell,
	}
}

// Start returns the fixed anchor instant.
func (a *WindowAccumulator) Start() time.Time {
	return a.start
}
