package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"marketview/internal/domain"
	"marketview/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	defaultSpotWSURL    = "wss://stream.binance.com:9443"
	defaultFuturesWSURL = "wss://fstream.binance.com"
	readTimeout         = 60 * time.Second
)

// StreamFactory opens combined-stream websocket subscriptions on the
// spot and futures endpoints. One socket carries every symbol of a
// subscription; reconnect policy stays with the caller, a terminated
// socket simply reports done.
type StreamFactory struct {
	spotWSURL    string
	futuresWSURL string
	metrics      *infra.Metrics
}

// NewStreamFactory creates a factory for the given websocket base URLs
// ("" for production endpoints).
func NewStreamFactory(spotWSURL, futuresWSURL string) *StreamFactory {
	if spotWSURL == "" {
		spotWSURL = defaultSpotWSURL
	}
	if futuresWSURL == "" {
		futuresWSURL = defaultFuturesWSURL
	}
	return &StreamFactory{
		spotWSURL:    strings.TrimSuffix(spotWSURL, "/"),
		futuresWSURL: strings.TrimSuffix(futuresWSURL, "/"),
		metrics:      infra.GlobalMetrics,
	}
}

// OpenStream dials one combined stream for the symbol set. The context
// bounds the handshake; cancellation after open does not tear the
// stream down, Close does.
func (f *StreamFactory) OpenStream(ctx context.Context, feed domain.FeedType, market domain.Market, symbols []string) (domain.Stream, error) {
	if len(symbols) == 0 {
		return nil, domain.ErrEmptySymbolSet
	}

	suffix, err := topicSuffix(feed)
	if err != nil {
		return nil, err
	}

	base := f.spotWSURL
	if market == domain.MarketFutures {
		base = f.futuresWSURL
	}

	topics := make([]string, len(symbols))
	for i, s := range symbols {
		topics[i] = strings.ToLower(domain.NormalizeSymbol(s)) + suffix
	}
	endpoint := base + "/stream?streams=" + strings.Join(topics, "/")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, domain.NewNetworkError("dial", err)
	}

	ws := &wsStream{
		conn:    conn,
		feed:    feed,
		market:  market,
		events:  make(chan domain.StreamEvent, 256),
		done:    make(chan struct{}),
		metrics: f.metrics,
	}
	go ws.readLoop()
	return ws, nil
}

func topicSuffix(feed domain.FeedType) (string, error) {
	switch feed {
	case domain.FeedTicker:
		return "@ticker", nil
	case domain.FeedTrade:
		return "@trade", nil
	default:
		return "", fmt.Errorf("unsupported feed type: %s", feed)
	}
}

// wsStream is one open combined-stream socket.
type wsStream struct {
	conn    *websocket.Conn
	feed    domain.FeedType
	market  domain.Market
	events  chan domain.StreamEvent
	done    chan struct{}
	metrics *infra.Metrics

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func (s *wsStream) Events() <-chan domain.StreamEvent { return s.events }
func (s *wsStream) Done() <-chan struct{}             { return s.done }

func (s *wsStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
	return nil
}

func (s *wsStream) readLoop() {
	defer close(s.done)

	for {
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.err = domain.NewNetworkError("read", err)
			s.mu.Unlock()
			s.Close()
			return
		}
		s.handleMessage(msg)
	}
}

// handleMessage decodes one combined-stream frame. A frame that does
// not decode is discarded with a diagnostic; one corrupt message must
// not abort the stream.
func (s *wsStream) handleMessage(msg []byte) {
	var wrapper combinedMessage
	if err := json.Unmarshal(msg, &wrapper); err != nil || len(wrapper.Data) == 0 {
		s.recordMalformed(msg, err)
		return
	}

	var ev domain.StreamEvent
	switch s.feed {
	case domain.FeedTicker:
		var payload tickerPayload
		if err := json.Unmarshal(wrapper.Data, &payload); err != nil || payload.Symbol == "" {
			s.recordMalformed(msg, err)
			return
		}
		ev = domain.StreamEvent{
			Symbol: domain.NormalizeSymbol(payload.Symbol),
			Feed:   domain.FeedTicker,
			Market: s.market,
			Ticker: &domain.TickerUpdate{
				Price:            s.parseDecimal(payload.LastPrice, payload.Symbol, "lastPrice"),
				ChangePercent24h: s.parseDecimal(payload.ChangePercent, payload.Symbol, "changePercent"),
				High24h:          s.parseDecimal(payload.HighPrice, payload.Symbol, "high"),
				Low24h:           s.parseDecimal(payload.LowPrice, payload.Symbol, "low"),
				QuoteVolume24h:   s.parseDecimal(payload.QuoteVolume, payload.Symbol, "quoteVolume"),
				Time:             time.UnixMilli(payload.EventTime),
			},
		}
	case domain.FeedTrade:
		var payload tradePayload
		if err := json.Unmarshal(wrapper.Data, &payload); err != nil || payload.Symbol == "" {
			s.recordMalformed(msg, err)
			return
		}
		side := domain.SideBuy
		if payload.BuyerIsMaker {
			side = domain.SideSell
		}
		ev = domain.StreamEvent{
			Symbol: domain.NormalizeSymbol(payload.Symbol),
			Feed:   domain.FeedTrade,
			Market: s.market,
			Trade: &domain.Trade{
				Price:    s.parseDecimal(payload.Price, payload.Symbol, "price"),
				Quantity: s.parseDecimal(payload.Quantity, payload.Symbol, "quantity"),
				Side:     side,
				Time:     time.UnixMilli(payload.TradeTime),
			},
		}
	default:
		return
	}

	select {
	case s.events <- ev:
	default:
		// Consumer stalled; drop rather than block the socket.
		s.metrics.RecordDroppedEvent()
	}
}

func (s *wsStream) recordMalformed(msg []byte, err error) {
	s.metrics.RecordMalformedPayload()
	slog.Debug("malformed stream message",
		slog.String("feed", string(s.feed)),
		slog.String("market", string(s.market)),
		slog.Any("error", err),
		slog.Int("bytes", len(msg)),
	)
}

// parseDecimal treats malformed numeric fields as zero with a
// diagnostic instead of dropping the whole event.
func (s *wsStream) parseDecimal(v, symbol, field string) decimal.Decimal {
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		s.metrics.RecordMalformedPayload()
		slog.Warn("malformed numeric field",
			slog.String("symbol", symbol),
			slog.String("field", field),
			slog.String("value", v),
		)
		return decimal.Zero
	}
	return d
}
