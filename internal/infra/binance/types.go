package binance

import "encoding/json"

// combinedMessage wraps every payload on a combined stream.
type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// tickerPayload is the 24hr rolling ticker stream event.
type tickerPayload struct {
	EventType     string `json:"e"` // "24hrTicker"
	EventTime     int64  `json:"E"` // ms
	Symbol        string `json:"s"`
	LastPrice     string `json:"c"`
	ChangePercent string `json:"P"`
	HighPrice     string `json:"h"`
	LowPrice      string `json:"l"`
	QuoteVolume   string `json:"q"`
}

// tradePayload is one executed-trade print. BuyerIsMaker true means the
// seller was the liquidity taker.
type tradePayload struct {
	EventType    string `json:"e"` // "trade"
	EventTime    int64  `json:"E"` // ms
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"` // ms
	BuyerIsMaker bool   `json:"m"`
}

// ticker24hr is the REST 24hr statistics record.
type ticker24hr struct {
	Symbol        string `json:"symbol"`
	LastPrice     string `json:"lastPrice"`
	ChangePercent string `json:"priceChangePercent"`
	HighPrice     string `json:"highPrice"`
	LowPrice      string `json:"lowPrice"`
	QuoteVolume   string `json:"quoteVolume"`
}

// kline rows arrive as positional arrays; only the quote-volume columns
// matter here: index 7 is quote asset volume, index 10 is taker-buy
// quote asset volume.
type kline []interface{}

const (
	klineQuoteVolumeIdx   = 7
	klineTakerBuyQuoteIdx = 10
	klineColumns          = 12
)
