package engine

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"marketview/internal/domain"
	"marketview/internal/infra"
)

// Store is the authoritative in-memory table of per-symbol state and
// the only component permitted to mutate it. Mutation happens on the
// orchestrator's single event-loop goroutine; the mutex exists for
// external reads (projection, signal queries) only.
type Store struct {
	mu      sync.RWMutex
	states  map[string]*domain.SymbolState
	accums  map[string]*WindowAccumulator
	signals *signalTracker
	window  time.Duration
	clock   domain.Clock
	metrics *infra.Metrics
}

// StoreConfig carries the store's tunables. Zero values fall back to
// the production defaults.
type StoreConfig struct {
	// Window is the backfill span of the rolling volume window.
	Window time.Duration
	// SignalDecay is how long a change signal stays live.
	SignalDecay time.Duration
	// Clock defaults to the wall clock.
	Clock domain.Clock
	// Metrics defaults to the process-wide instance.
	Metrics *infra.Metrics
}

const (
	// DefaultWindow floors the volume anchor one hour before open.
	DefaultWindow = time.Hour
	// DefaultSignalDecay matches the UI flash duration.
	DefaultSignalDecay = 1200 * time.Millisecond
)

// NewStore creates an empty state store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.SignalDecay <= 0 {
		cfg.SignalDecay = DefaultSignalDecay
	}
	if cfg.Clock == nil {
		cfg.Clock = domain.SystemClock
	}
	if cfg.Metrics == nil {
		cfg.Metrics = infra.GlobalMetrics
	}
	return &Store{
		states:  make(map[string]*domain.SymbolState),
		accums:  make(map[string]*WindowAccumulator),
		signals: newSignalTracker(cfg.SignalDecay),
		window:  cfg.Window,
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
	}
}

// Initialize bulk-loads the seed snapshot, creating one accumulator per
// symbol anchored at now−window. Symbols already tracked are replaced
// outright; their accumulators restart at the new anchor.
func (s *Store) Initialize(seeds []domain.SymbolSnapshot) {
	now := s.clock.Now()
	start := now.Add(-s.window)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seed := range seeds {
		symbol := domain.NormalizeSymbol(seed.Symbol)
		if symbol == "" {
			continue
		}
		acc := NewWindowAccumulator(start, seed)
		s.accums[symbol] = acc
		s.states[symbol] = &domain.SymbolState{
			Symbol:           symbol,
			Price:            seed.Price,
			ChangePercent24h: seed.ChangePercent24h,
			High24h:          seed.High24h,
			Low24h:           seed.Low24h,
			QuoteVolume24h:   seed.QuoteVolume24h,
			HourlyWindow:     acc.Window(),
			LastUpdated:      now,
		}
	}
}

// ApplyTickerUpdate replaces the ticker-sourced fields of the named
// symbol wholesale and derives change signals for price and 24h quote
// volume. Unknown symbols are a no-op: a late event for a just-removed
// symbol is an expected race, not an error. Returns true when state
// changed.
func (s *Store) ApplyTickerUpdate(symbol string, update domain.TickerUpdate) bool {
	symbol = domain.NormalizeSymbol(symbol)
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[symbol]
	if !ok {
		return false
	}

	if dir, changed := domain.DetectChange(state.Price, update.Price, domain.SignalPrice); changed {
		s.signals.put(symbol, domain.SignalPrice, dir, now)
	}
	if dir, changed := domain.DetectChange(state.QuoteVolume24h, update.QuoteVolume24h, domain.SignalVolume); changed {
		s.signals.put(symbol, domain.SignalVolume, dir, now)
	}

	state.Price = update.Price
	state.ChangePercent24h = update.ChangePercent24h
	state.High24h = update.High24h
	state.Low24h = update.Low24h
	state.QuoteVolume24h = update.QuoteVolume24h
	state.LastUpdated = now
	return true
}

// ApplyTradeEvent routes one trade print into the symbol's accumulator.
// Prints outside [window start, now] and prints for untracked symbols
// are dropped. Returns true when the window changed.
func (s *Store) ApplyTradeEvent(symbol string, trade domain.Trade) bool {
	symbol = domain.NormalizeSymbol(symbol)
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accums[symbol]
	if !ok {
		return false
	}
	if !acc.Apply(trade, now) {
		s.metrics.RecordDroppedEvent()
		slog.Debug("trade outside window dropped",
			slog.String("symbol", symbol),
			slog.Time("trade_ts", trade.Time),
			slog.Time("window_start", acc.Start()),
		)
		return false
	}

	state := s.states[symbol]
	state.HourlyWindow = acc.Window()
	state.LastUpdated = now
	return true
}

// Remove deletes the symbol's state, accumulator, and pending signals
// atomically. Idempotent.
func (s *Store) Remove(symbol string) {
	symbol = domain.NormalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, symbol)
	delete(s.accums, symbol)
	s.signals.removeSymbol(symbol)
}

// Clear drops all tracked symbols and signals.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states = make(map[string]*domain.SymbolState)
	s.accums = make(map[string]*WindowAccumulator)
	s.signals.clear()
}

// Tracked reports whether a symbol currently has state.
func (s *Store) Tracked(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.states[domain.NormalizeSymbol(symbol)]
	return ok
}

// Get returns a copy of one symbol's state (external read).
func (s *Store) Get(symbol string) (domain.SymbolState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[domain.NormalizeSymbol(symbol)]
	if !ok {
		return domain.SymbolState{}, false
	}
	return *state, true
}

// Snapshot returns copies of all tracked states sorted by symbol.
func (s *Store) Snapshot() []domain.SymbolState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SymbolState, 0, len(s.states))
	for _, state := range s.states {
		result = append(result, *state)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result
}

// Signal returns the live change signal for symbol/field, if any.
// Expired signals are pruned on the way.
func (s *Store) Signal(symbol string, field domain.SignalField) (domain.ChangeSignal, bool) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.signals.get(domain.NormalizeSymbol(symbol), field, now)
}

// Symbols returns the tracked symbol set, sorted.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, 0, len(s.states))
	for symbol := range s.states {
		result = append(result, symbol)
	}
	sort.Strings(result)
	return result
}
