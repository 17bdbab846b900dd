package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FeedType identifies one of the streaming feed kinds a symbol is
// subscribed to.
type FeedType string

const (
	FeedTicker FeedType = "ticker"
	FeedTrade  FeedType = "trade"
)

// Market identifies one of the two parallel venues a feed runs on.
type Market string

const (
	MarketSpot    Market = "spot"
	MarketFutures Market = "futures"
)

// Side classifies a trade by which party was the liquidity taker.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide normalizes a feed-provided side string. Unknown values
// default to buy so that malformed events still land somewhere instead
// of vanishing from the total.
func ParseSide(s string) Side {
	if strings.EqualFold(s, string(SideSell)) {
		return SideSell
	}
	return SideBuy
}

// HourlyWindow is the rolling since-subscription volume figure produced
// by the paired accumulator. Start is fixed when the symbol is
// subscribed and never slides forward afterwards; the figure is "volume
// since the subscription opened, floored one window back", not a true
// trailing hour. Buy+Sell may differ from Total when the seed came from
// a proportional backfill estimate.
type HourlyWindow struct {
	Start time.Time       `json:"start"`
	Total decimal.Decimal `json:"total"`
	Buy   decimal.Decimal `json:"buy"`
	Sell  decimal.Decimal `json:"sell"`
}

// SymbolState is the reconciled per-symbol record combining ticker-feed
// fields and accumulator output. It is owned exclusively by the state
// store and mutated only through its apply methods.
type SymbolState struct {
	Symbol           string          `json:"symbol"`
	Price            decimal.Decimal `json:"price"`
	ChangePercent24h decimal.Decimal `json:"change_percent_24h"`
	High24h          decimal.Decimal `json:"high_24h"`
	Low24h           decimal.Decimal `json:"low_24h"`
	QuoteVolume24h   decimal.Decimal `json:"quote_volume_24h"`
	HourlyWindow     HourlyWindow    `json:"hourly_window"`
	LastUpdated      time.Time       `json:"last_updated"`
}

// SymbolSnapshot is the seed record supplied by the external snapshot
// provider: last 24h statistics plus an hourly-volume estimate for the
// accumulator's anchor value. HourlyBuy/HourlySell are zero when the
// provider cannot supply a side breakdown.
type SymbolSnapshot struct {
	Symbol           string
	Price            decimal.Decimal
	ChangePercent24h decimal.Decimal
	High24h          decimal.Decimal
	Low24h           decimal.Decimal
	QuoteVolume24h   decimal.Decimal
	HourlyTotal      decimal.Decimal
	HourlyBuy        decimal.Decimal
	HourlySell       decimal.Decimal
	HasSideSplit     bool
}

// TickerUpdate carries the ticker-sourced fields for one symbol. The
// store replaces its ticker fields wholesale on every update.
type TickerUpdate struct {
	Price            decimal.Decimal
	ChangePercent24h decimal.Decimal
	High24h          decimal.Decimal
	Low24h           decimal.Decimal
	QuoteVolume24h   decimal.Decimal
	Time             time.Time
}

// Trade is one executed-trade print from the trade feed.
type Trade struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Side     Side
	Time     time.Time
}

// Notional returns the trade's quote-currency value (price × quantity).
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

// NormalizeSymbol upper-cases a feed-provided symbol identifier.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
