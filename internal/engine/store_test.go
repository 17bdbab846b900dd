package engine

import (
	"testing"
	"time"

	"marketview/internal/domain"
	"marketview/internal/infra"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) *time.Timer {
	return time.AfterFunc(d, f)
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)}
	store := NewStore(StoreConfig{
		Window:      time.Hour,
		SignalDecay: 1200 * time.Millisecond,
		Clock:       clock,
		Metrics:     &infra.Metrics{},
	})
	return store, clock
}

func seedBTC(store *Store) {
	store.Initialize([]domain.SymbolSnapshot{{
		Symbol:         "BTCUSDT",
		Price:          dec("50000"),
		QuoteVolume24h: dec("1000000"),
		HourlyTotal:    dec("1000"),
		HourlyBuy:      dec("600"),
		HourlySell:     dec("400"),
		HasSideSplit:   true,
	}})
}

func TestStore_InitializeAnchorsWindow(t *testing.T) {
	store, clock := newTestStore(t)
	seedBTC(store)

	state, ok := store.Get("BTCUSDT")
	if !ok {
		t.Fatal("BTCUSDT should be tracked after initialize")
	}
	wantStart := clock.Now().Add(-time.Hour)
	if !state.HourlyWindow.Start.Equal(wantStart) {
		t.Errorf("window anchor: want %v, got %v", wantStart, state.HourlyWindow.Start)
	}
	if !state.HourlyWindow.Total.Equal(dec("1000")) {
		t.Errorf("seed total: want 1000, got %v", state.HourlyWindow.Total)
	}
}

func TestStore_ApplyTickerUpdate(t *testing.T) {
	t.Run("Replaces fields wholesale", func(t *testing.T) {
		store, clock := newTestStore(t)
		seedBTC(store)
		clock.Advance(time.Second)

		if !store.ApplyTickerUpdate("BTCUSDT", domain.TickerUpdate{
			Price:            dec("51000"),
			ChangePercent24h: dec("2.5"),
			High24h:          dec("51500"),
			Low24h:           dec("49000"),
			QuoteVolume24h:   dec("1100000"),
		}) {
			t.Fatal("update for tracked symbol must apply")
		}

		state, _ := store.Get("BTCUSDT")
		if !state.Price.Equal(dec("51000")) || !state.High24h.Equal(dec("51500")) {
			t.Errorf("ticker fields not replaced: %+v", state)
		}
		if !state.LastUpdated.Equal(clock.Now()) {
			t.Error("LastUpdated should track the mutation instant")
		}
	})

	t.Run("Unknown symbol is a no-op", func(t *testing.T) {
		store, _ := newTestStore(t)
		seedBTC(store)
		if store.ApplyTickerUpdate("DOGEUSDT", domain.TickerUpdate{Price: dec("1")}) {
			t.Error("update for untracked symbol must be dropped")
		}
	})
}

func TestStore_SignalGating(t *testing.T) {
	t.Run("Qualifying price move signals", func(t *testing.T) {
		store, _ := newTestStore(t)
		seedBTC(store)

		store.ApplyTickerUpdate("BTCUSDT", domain.TickerUpdate{Price: dec("51000"), QuoteVolume24h: dec("1000000")})

		sig, ok := store.Signal("BTCUSDT", domain.SignalPrice)
		if !ok || sig.Direction != domain.DirectionUp {
			t.Errorf("expected up price signal, got ok=%v sig=%+v", ok, sig)
		}
	})

	t.Run("Sub-threshold move stays silent", func(t *testing.T) {
		store, _ := newTestStore(t)
		store.Initialize([]domain.SymbolSnapshot{{Symbol: "TINYUSDT", Price: dec("0.000020000")}})

		// delta 5e-9: below the 1e-8 absolute floor and 0.025% relative.
		store.ApplyTickerUpdate("TINYUSDT", domain.TickerUpdate{Price: dec("0.000020005")})

		if _, ok := store.Signal("TINYUSDT", domain.SignalPrice); ok {
			t.Error("move below both thresholds must not signal")
		}
	})

	t.Run("Signal decays after its lifetime", func(t *testing.T) {
		store, clock := newTestStore(t)
		seedBTC(store)

		store.ApplyTickerUpdate("BTCUSDT", domain.TickerUpdate{Price: dec("51000"), QuoteVolume24h: dec("1000000")})
		clock.Advance(1201 * time.Millisecond)

		if _, ok := store.Signal("BTCUSDT", domain.SignalPrice); ok {
			t.Error("signal must be gone after decay")
		}
	})

	t.Run("Newer signal overwrites older for same field", func(t *testing.T) {
		store, clock := newTestStore(t)
		seedBTC(store)

		store.ApplyTickerUpdate("BTCUSDT", domain.TickerUpdate{Price: dec("51000"), QuoteVolume24h: dec("1000000")})
		clock.Advance(500 * time.Millisecond)
		store.ApplyTickerUpdate("BTCUSDT", domain.TickerUpdate{Price: dec("50500"), QuoteVolume24h: dec("1000000")})

		sig, ok := store.Signal("BTCUSDT", domain.SignalPrice)
		if !ok || sig.Direction != domain.DirectionDown {
			t.Errorf("expected overwritten down signal, got ok=%v sig=%+v", ok, sig)
		}
		// The refreshed signal outlives the first one's decay.
		clock.Advance(1000 * time.Millisecond)
		if _, ok := store.Signal("BTCUSDT", domain.SignalPrice); !ok {
			t.Error("refreshed signal should still be live")
		}
	})
}

func TestStore_ApplyTradeEvent(t *testing.T) {
	t.Run("In-window trade grows the window", func(t *testing.T) {
		store, clock := newTestStore(t)
		seedBTC(store)

		ok := store.ApplyTradeEvent("BTCUSDT", domain.Trade{
			Price:    dec("50001"),
			Quantity: dec("0.01"),
			Side:     domain.SideBuy,
			Time:     clock.Now().Add(-time.Second),
		})
		if !ok {
			t.Fatal("in-window trade must apply")
		}

		state, _ := store.Get("BTCUSDT")
		if !state.HourlyWindow.Total.Equal(dec("1500.01")) {
			t.Errorf("expected total 1500.01, got %v", state.HourlyWindow.Total)
		}
		if !state.HourlyWindow.Buy.Equal(dec("1100.01")) {
			t.Errorf("expected buy 1100.01, got %v", state.HourlyWindow.Buy)
		}
	})

	t.Run("Stale trade is dropped", func(t *testing.T) {
		store, clock := newTestStore(t)
		seedBTC(store)

		if store.ApplyTradeEvent("BTCUSDT", domain.Trade{
			Price:    dec("50000"),
			Quantity: dec("1"),
			Side:     domain.SideSell,
			Time:     clock.Now().Add(-2 * time.Hour),
		}) {
			t.Error("trade older than the window anchor must be dropped")
		}
	})

	t.Run("Unknown symbol is a no-op", func(t *testing.T) {
		store, clock := newTestStore(t)
		seedBTC(store)
		if store.ApplyTradeEvent("DOGEUSDT", domain.Trade{Price: dec("1"), Quantity: dec("1"), Time: clock.Now()}) {
			t.Error("trade for untracked symbol must be dropped")
		}
	})
}

func TestStore_Remove(t *testing.T) {
	store, _ := newTestStore(t)
	seedBTC(store)
	store.ApplyTickerUpdate("BTCUSDT", domain.TickerUpdate{Price: dec("51000"), QuoteVolume24h: dec("1000000")})

	store.Remove("BTCUSDT")

	if store.Tracked("BTCUSDT") {
		t.Error("symbol should be gone after remove")
	}
	if _, ok := store.Signal("BTCUSDT", domain.SignalPrice); ok {
		t.Error("signals should be gone after remove")
	}

	// Idempotent
	store.Remove("BTCUSDT")
	if len(store.Snapshot()) != 0 {
		t.Error("store should be empty")
	}
}

func TestStore_SnapshotSorted(t *testing.T) {
	store, _ := newTestStore(t)
	store.Initialize([]domain.SymbolSnapshot{
		{Symbol: "xrpusdt"},
		{Symbol: "BTCUSDT"},
		{Symbol: "ethusdt"},
	})

	snap := store.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 states, got %d", len(snap))
	}
	if snap[0].Symbol != "BTCUSDT" || snap[1].Symbol != "ETHUSDT" || snap[2].Symbol != "XRPUSDT" {
		t.Errorf("not sorted/normalized: %s, %s, %s", snap[0].Symbol, snap[1].Symbol, snap[2].Symbol)
	}
}
