package event

import (
	"time"

	"marketview/internal/domain"

	"github.com/shopspring/decimal"
)

// Type discriminates engine inbox events.
type Type string

const (
	TypeTicker Type = "ticker"
	TypeTrade  Type = "trade"
)

// Event is one unit of work for the engine's single-threaded loop.
type Event interface {
	GetType() Type
	GetSymbol() string
}

// TickerEvent carries a full ticker-feed update for one symbol. Fields
// replace the store's ticker-sourced values wholesale.
type TickerEvent struct {
	Symbol           string
	Market           domain.Market
	Price            decimal.Decimal
	ChangePercent24h decimal.Decimal
	High24h          decimal.Decimal
	Low24h           decimal.Decimal
	QuoteVolume24h   decimal.Decimal
	Ts               time.Time
}

func (e *TickerEvent) GetType() Type     { return TypeTicker }
func (e *TickerEvent) GetSymbol() string { return e.Symbol }

// Update converts the event to the store's ticker-update form.
func (e *TickerEvent) Update() domain.TickerUpdate {
	return domain.TickerUpdate{
		Price:            e.Price,
		ChangePercent24h: e.ChangePercent24h,
		High24h:          e.High24h,
		Low24h:           e.Low24h,
		QuoteVolume24h:   e.QuoteVolume24h,
		Time:             e.Ts,
	}
}

// TradeEvent carries one executed-trade print. Trade events arrive at a
// much higher rate than ticker events; acquire them from the pool.
type TradeEvent struct {
	Symbol   string
	Market   domain.Market
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Side     domain.Side
	Ts       time.Time
}

func (e *TradeEvent) GetType() Type     { return TypeTrade }
func (e *TradeEvent) GetSymbol() string { return e.Symbol }

// Trade converts the event to the accumulator's trade form.
func (e *TradeEvent) Trade() domain.Trade {
	return domain.Trade{
		Price:    e.Price,
		Quantity: e.Quantity,
		Side:     e.Side,
		Time:     e.Ts,
	}
}
