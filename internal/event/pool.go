package event

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// TradeEvent pool reduces GC pressure in the hotpath: trade prints are
// the highest-frequency message on the wire.
//
// Usage:
//
//	ev := AcquireTradeEvent()
//	ev.Symbol = "BTCUSDT"
//	// ... deliver and process ...
//	ReleaseTradeEvent(ev)
var tradePool = sync.Pool{
	New: func() interface{} {
		return &TradeEvent{}
	},
}

// AcquireTradeEvent gets a TradeEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquireTradeEvent() *TradeEvent {
	return tradePool.Get().(*TradeEvent)
}

// ReleaseTradeEvent returns a TradeEvent to the pool.
// The event is reset to zero values before being pooled.
func ReleaseTradeEvent(ev *TradeEvent) {
	if ev == nil {
		return
	}
	ev.Symbol = ""
	ev.Market = ""
	ev.Price = decimal.Decimal{}
	ev.Quantity = decimal.Decimal{}
	ev.Side = ""
	ev.Ts = time.Time{}

	tradePool.Put(ev)
}

// Warmup pre-allocates trade events to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 1000

	evs := make([]*TradeEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		evs = append(evs, AcquireTradeEvent())
	}
	for _, ev := range evs {
		ReleaseTradeEvent(ev)
	}
}
