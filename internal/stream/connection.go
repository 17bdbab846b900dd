package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"marketview/internal/domain"
	"marketview/internal/infra"
)

// ConnState is a connection's lifecycle state. Reconnect scheduling is
// tracked separately: it is a controller concern, not a transport state.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Connection owns one transport subscription: a fixed symbol set on one
// feed type and market. It enforces the connect timeout, recovers from
// any close with exactly one delayed reconnect, and suppresses that
// reconnect once it has been deliberately closed or superseded.
//
// The owner check is the guard against the classic stale-reconnect
// race: a superseded connection's pending reconnect timer fires, finds
// it no longer holds its slot, and does nothing instead of resurrecting
// a duplicate subscription.
type Connection struct {
	feed    domain.FeedType
	market  domain.Market
	symbols []string
	factory domain.StreamFactory

	onEvent           func(domain.StreamEvent)
	onTerminalFailure func(error)
	ownerCheck        func(*Connection) bool

	connectTimeout time.Duration
	reconnectDelay time.Duration
	metrics        *infra.Metrics

	mu               sync.Mutex
	state            ConnState
	stream           domain.Stream
	closed           bool
	reconnectPending bool
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

// ConnectionConfig wires a Connection's collaborators and timings.
type ConnectionConfig struct {
	Feed    domain.FeedType
	Market  domain.Market
	Symbols []string
	Factory domain.StreamFactory

	// OnEvent receives every decoded message.
	OnEvent func(domain.StreamEvent)
	// OnTerminalFailure fires when reconnection cannot proceed at all
	// (an empty symbol set). Transient transport failures never reach it.
	OnTerminalFailure func(error)
	// OwnerCheck reports whether this connection still holds its slot.
	// A nil check means the connection is always its own owner.
	OwnerCheck func(*Connection) bool

	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	Metrics        *infra.Metrics
}

const (
	// DefaultConnectTimeout bounds how long a dial may stay connecting.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultReconnectDelay is the fixed wait before retrying a closed
	// connection. Retries are deliberately unbounded: the subscription
	// is a long-lived interactive view.
	DefaultReconnectDelay = 3 * time.Second
)

// NewConnection creates a connection in the closed state. Open starts it.
func NewConnection(cfg ConnectionConfig) *Connection {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Metrics == nil {
		cfg.Metrics = infra.GlobalMetrics
	}
	return &Connection{
		feed:              cfg.Feed,
		market:            cfg.Market,
		symbols:           cfg.Symbols,
		factory:           cfg.Factory,
		onEvent:           cfg.OnEvent,
		onTerminalFailure: cfg.OnTerminalFailure,
		ownerCheck:        cfg.OwnerCheck,
		connectTimeout:    cfg.ConnectTimeout,
		reconnectDelay:    cfg.ReconnectDelay,
		metrics:           cfg.Metrics,
		state:             StateClosed,
	}
}

// Open establishes the subscription. It fails closed: every failure
// surfaces through callbacks, never a return value.
func (c *Connection) Open(ctx context.Context) {
	if len(c.symbols) == 0 {
		if c.onTerminalFailure != nil {
			c.onTerminalFailure(domain.ErrEmptySymbolSet)
		}
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.state = StateConnecting
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.dial()
	}()
}

// dial attempts one connect. Still connecting past the timeout counts
// as a failed attempt and goes through the same reconnect path.
func (c *Connection) dial() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.state = StateConnecting
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	stream, err := c.factory.OpenStream(dialCtx, c.feed, c.market, c.symbols)
	cancel()
	if err != nil {
		c.metrics.RecordError()
		slog.Warn("stream connect failed",
			slog.String("feed", string(c.feed)),
			slog.String("market", string(c.market)),
			slog.Any("error", err),
		)
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.closed {
		// Closed while dialing: drop the fresh stream quietly.
		c.mu.Unlock()
		stream.Close()
		return
	}
	c.stream = stream
	c.state = StateOpen
	c.mu.Unlock()

	c.metrics.IncrementConnections()
	slog.Info("stream connected",
		slog.String("feed", string(c.feed)),
		slog.String("market", string(c.market)),
		slog.Int("symbols", len(c.symbols)),
	)

	c.readLoop(stream)
}

// readLoop pumps events until the stream terminates, then hands off to
// the reconnect path.
func (c *Connection) readLoop(stream domain.Stream) {
	defer c.metrics.DecrementConnections()

	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				c.onStreamClosed(stream)
				return
			}
			c.mu.Lock()
			handler := c.onEvent
			c.mu.Unlock()
			if handler != nil {
				handler(ev)
			}
		case <-stream.Done():
			c.onStreamClosed(stream)
			return
		}
	}
}

func (c *Connection) onStreamClosed(stream domain.Stream) {
	stream.Close()

	c.mu.Lock()
	if c.stream == stream {
		c.stream = nil
	}
	deliberate := c.closed
	c.state = StateClosed
	c.mu.Unlock()

	if deliberate {
		return
	}
	if err := stream.Err(); err != nil {
		slog.Warn("stream closed",
			slog.String("feed", string(c.feed)),
			slog.String("market", string(c.market)),
			slog.Any("error", err),
		)
	}
	c.scheduleReconnect()
}

// scheduleReconnect arms at most one pending reconnect. When the timer
// fires the attempt proceeds only if the connection was not closed in
// the meantime and still owns its slot.
func (c *Connection) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.reconnectPending {
		c.mu.Unlock()
		return
	}
	c.reconnectPending = true
	ctx := c.ctx
	c.mu.Unlock()

	c.metrics.RecordReconnect()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		timer := time.NewTimer(c.reconnectDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.reconnectPending = false
			c.mu.Unlock()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		c.reconnectPending = false
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		if c.ownerCheck != nil && !c.ownerCheck(c) {
			slog.Debug("reconnect skipped, connection superseded",
				slog.String("feed", string(c.feed)),
				slog.String("market", string(c.market)),
			)
			return
		}
		c.dial()
	}()
}

// Close tears the connection down deliberately: callbacks are
// unregistered before the transport closes, and the automatic
// reconnect path is suppressed. Safe to call more than once.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateClosing
	c.onEvent = nil
	c.onTerminalFailure = nil
	stream := c.stream
	c.stream = nil
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		stream.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Feed returns the connection's feed type.
func (c *Connection) Feed() domain.FeedType { return c.feed }

// Market returns the connection's market.
func (c *Connection) Market() domain.Market { return c.market }

// Symbols returns the fixed symbol set this connection subscribes to.
func (c *Connection) Symbols() []string { return c.symbols }
