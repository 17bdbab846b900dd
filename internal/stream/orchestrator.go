package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"marketview/internal/domain"
	"marketview/internal/engine"
	"marketview/internal/event"
	"marketview/internal/infra"
)

// Config carries the orchestrator's collaborators and tunables. Zero
// durations fall back to the production defaults so tests can run the
// whole lifecycle at accelerated schedules.
type Config struct {
	Snapshots domain.SnapshotProvider
	Factory   domain.StreamFactory
	Store     *engine.Store

	// OnChange fires whenever the projected view may have changed. No
	// payload: consumers re-read the store through a projection.
	OnChange func()

	// Feeds × Markets define the connection grid. Defaults: ticker and
	// trade feeds on spot and futures.
	Feeds   []domain.FeedType
	Markets []domain.Market

	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	NotifyInterval time.Duration
	InboxSize      int

	Clock   domain.Clock
	Metrics *infra.Metrics
}

// DefaultNotifyInterval coalesces trade-driven notifications to the
// cadence the trade feed actually bursts at.
const DefaultNotifyInterval = 300 * time.Millisecond

const defaultInboxSize = 1024

type connKey struct {
	feed   domain.FeedType
	market domain.Market
}

// Orchestrator binds a symbol set to the required connections and the
// state store. Connections publish decoded events into a buffered
// inbox; a single loop goroutine drains it, so every store mutation is
// serialized without locks on the hot path.
type Orchestrator struct {
	cfg      Config
	store    *engine.Store
	notifier *notifier
	inbox    chan event.Event

	mu      sync.Mutex
	conns   map[connKey]*Connection
	symbols []string
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator validates collaborators and applies defaults.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.NotifyInterval <= 0 {
		cfg.NotifyInterval = DefaultNotifyInterval
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	if len(cfg.Feeds) == 0 {
		cfg.Feeds = []domain.FeedType{domain.FeedTicker, domain.FeedTrade}
	}
	if len(cfg.Markets) == 0 {
		cfg.Markets = []domain.Market{domain.MarketSpot, domain.MarketFutures}
	}
	if cfg.Clock == nil {
		cfg.Clock = domain.SystemClock
	}
	if cfg.Metrics == nil {
		cfg.Metrics = infra.GlobalMetrics
	}

	return &Orchestrator{
		cfg:      cfg,
		store:    cfg.Store,
		notifier: newNotifier(cfg.NotifyInterval, cfg.Clock, cfg.OnChange, cfg.Metrics),
		inbox:    make(chan event.Event, cfg.InboxSize),
		conns:    make(map[connKey]*Connection),
	}
}

// Start seeds the store from the snapshot provider, opens one
// connection per feed/market pair, and runs the event loop. A snapshot
// failure is fatal and returned: without a seed the volume anchor is
// undefined. The first notification fires once the seed is loaded.
func (o *Orchestrator) Start(ctx context.Context, symbols []string) error {
	symbols = normalizeSet(symbols)
	if len(symbols) == 0 {
		return domain.ErrEmptySymbolSet
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return domain.ErrOrchestratorStopped
	}
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.started = true
	o.mu.Unlock()

	seeds, err := o.cfg.Snapshots.FetchSnapshot(ctx, symbols)
	if err != nil {
		o.mu.Lock()
		o.started = false
		o.mu.Unlock()
		return fmt.Errorf("%w: %v", domain.ErrSnapshotFetch, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)

	// The fetch was a suspension point: a Stop may have landed while it
	// was in flight, and a stopped orchestrator must stay down.
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		cancel()
		return domain.ErrOrchestratorStopped
	}
	o.symbols = symbols
	o.cancel = cancel
	o.store.Initialize(seeds)
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		o.run(loopCtx)
	}()

	if err := o.openConnections(loopCtx, symbols); err != nil {
		return err
	}
	o.notifier.Immediate()

	slog.Info("orchestrator started",
		slog.Int("symbols", len(symbols)),
		slog.Int("connections", len(o.cfg.Feeds)*len(o.cfg.Markets)),
	)
	return nil
}

// run is the single-threaded event loop: the only goroutine that
// mutates the store.
func (o *Orchestrator) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-o.inbox:
			o.processEvent(ev)
		}
	}
}

func (o *Orchestrator) processEvent(ev event.Event) {
	o.cfg.Metrics.RecordEvent()

	switch e := ev.(type) {
	case *event.TickerEvent:
		if o.store.ApplyTickerUpdate(e.Symbol, e.Update()) {
			o.notifier.Immediate()
		} else {
			o.cfg.Metrics.RecordDroppedEvent()
		}
	case *event.TradeEvent:
		changed := o.store.ApplyTradeEvent(e.Symbol, e.Trade())
		event.ReleaseTradeEvent(e)
		if changed {
			o.notifier.Throttled()
		}
	default:
		slog.Warn("unknown event type", slog.Any("type", ev.GetType()))
	}
}

// handleStreamEvent converts a transport event and publishes it to the
// inbox. A full inbox drops the message: best-effort display, not a
// system of record.
func (o *Orchestrator) handleStreamEvent(sev domain.StreamEvent) {
	var ev event.Event
	switch {
	case sev.Ticker != nil:
		ev = &event.TickerEvent{
			Symbol:           sev.Symbol,
			Market:           sev.Market,
			Price:            sev.Ticker.Price,
			ChangePercent24h: sev.Ticker.ChangePercent24h,
			High24h:          sev.Ticker.High24h,
			Low24h:           sev.Ticker.Low24h,
			QuoteVolume24h:   sev.Ticker.QuoteVolume24h,
			Ts:               sev.Ticker.Time,
		}
	case sev.Trade != nil:
		te := event.AcquireTradeEvent()
		te.Symbol = sev.Symbol
		te.Market = sev.Market
		te.Price = sev.Trade.Price
		te.Quantity = sev.Trade.Quantity
		te.Side = sev.Trade.Side
		te.Ts = sev.Trade.Time
		ev = te
	default:
		return
	}

	select {
	case o.inbox <- ev:
	default:
		if te, ok := ev.(*event.TradeEvent); ok {
			event.ReleaseTradeEvent(te)
		}
		o.cfg.Metrics.RecordDroppedEvent()
	}
}

// openConnections fills every feed/market slot with a fresh connection
// subscribed to the given symbol set. Callers hold no lock. It refuses
// to register into a stopped orchestrator: each slot claim re-checks
// stopped under the lock, so a concurrent Stop either closes the slot
// itself or prevents it from being filled at all.
func (o *Orchestrator) openConnections(ctx context.Context, symbols []string) error {
	for _, feed := range o.cfg.Feeds {
		for _, market := range o.cfg.Markets {
			key := connKey{feed: feed, market: market}
			conn := NewConnection(ConnectionConfig{
				Feed:           feed,
				Market:         market,
				Symbols:        symbols,
				Factory:        o.cfg.Factory,
				OnEvent:        o.handleStreamEvent,
				ConnectTimeout: o.cfg.ConnectTimeout,
				ReconnectDelay: o.cfg.ReconnectDelay,
				Metrics:        o.cfg.Metrics,
				OnTerminalFailure: func(err error) {
					slog.Error("subscription cannot proceed",
						slog.String("feed", string(feed)),
						slog.String("market", string(market)),
						slog.Any("error", err),
					)
				},
				OwnerCheck: func(c *Connection) bool {
					o.mu.Lock()
					defer o.mu.Unlock()
					return o.conns[key] == c
				},
			})

			o.mu.Lock()
			if o.stopped {
				o.mu.Unlock()
				return domain.ErrOrchestratorStopped
			}
			o.conns[key] = conn
			o.mu.Unlock()

			conn.Open(ctx)
		}
	}
	return nil
}

// UpdateSymbolSet diffs against the current subscription. Removed
// symbols leave the store atomically; added symbols are seeded from a
// fresh snapshot fetch; every connection is superseded with the new
// set. Old connections lose slot ownership before they close, so their
// pending reconnects die quietly.
func (o *Orchestrator) UpdateSymbolSet(ctx context.Context, newSymbols []string) error {
	newSymbols = normalizeSet(newSymbols)

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return domain.ErrOrchestratorStopped
	}
	if !o.started {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator not started")
	}
	current := o.symbols
	o.mu.Unlock()

	added, removed := diffSets(current, newSymbols)
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}

	var seeds []domain.SymbolSnapshot
	if len(added) > 0 {
		var err error
		seeds, err = o.cfg.Snapshots.FetchSnapshot(ctx, added)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrSnapshotFetch, err)
		}
	}

	// The fetch was a suspension point: re-check stopped before touching
	// the store or the slots, or a concurrent Stop gets resurrected.
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return domain.ErrOrchestratorStopped
	}
	if len(seeds) > 0 {
		o.store.Initialize(seeds)
	}
	for _, symbol := range removed {
		o.store.Remove(symbol)
	}

	// Supersede every slot: replace ownership first, then close the
	// old connections so their reconnect timers fail the owner check.
	o.symbols = newSymbols
	old := o.conns
	o.conns = make(map[connKey]*Connection)
	o.mu.Unlock()

	for _, conn := range old {
		conn.Close()
	}
	if err := o.openConnections(ctx, newSymbols); err != nil {
		return err
	}

	o.notifier.Immediate()
	slog.Info("symbol set updated",
		slog.Int("added", len(added)),
		slog.Int("removed", len(removed)),
		slog.Int("total", len(newSymbols)),
	)
	return nil
}

// Stop tears everything down: ownership is cleared before connections
// close, so in-flight reconnect timers become no-ops instead of
// resurrecting a stopped subscription. Idempotent and safe from any
// teardown path.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	conns := o.conns
	o.conns = make(map[connKey]*Connection)
	cancel := o.cancel
	o.mu.Unlock()

	o.notifier.Stop()
	for _, conn := range conns {
		conn.Close()
	}
	if cancel != nil {
		cancel()
	}
	o.wg.Wait()
	o.store.Clear()

	slog.Info("orchestrator stopped")
}

// Symbols returns the currently subscribed set.
func (o *Orchestrator) Symbols() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.symbols))
	copy(out, o.symbols)
	return out
}

func normalizeSet(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		n := domain.NormalizeSymbol(s)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func diffSets(current, next []string) (added, removed []string) {
	cur := make(map[string]struct{}, len(current))
	for _, s := range current {
		cur[s] = struct{}{}
	}
	nxt := make(map[string]struct{}, len(next))
	for _, s := range next {
		nxt[s] = struct{}{}
		if _, ok := cur[s]; !ok {
			added = append(added, s)
		}
	}
	for _, s := range current {
		if _, ok := nxt[s]; !ok {
			removed = append(removed, s)
		}
	}
	return added, removed
}
