package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketview/internal/domain"
)

const mock24hrBody = `[
	{"symbol": "BTCUSDT", "lastPrice": "50000.5", "priceChangePercent": "2.5",
	 "highPrice": "51000", "lowPrice": "49000", "quoteVolume": "1234567.89"},
	{"symbol": "ETHUSDT", "lastPrice": "3000", "priceChangePercent": "-0.75",
	 "highPrice": "3100", "lowPrice": "2900", "quoteVolume": "987654.32"}
]`

// Two one-minute klines; index 7 is quote volume, index 10 taker-buy quote.
const mockKlinesBody = `[
	[1700000000000, "0", "0", "0", "0", "0", 1700000059999, "600.5", 10, "0", "400.25", "0"],
	[1700000060000, "0", "0", "0", "0", "0", 1700000119999, "399.5", 10, "0", "99.75", "0"]
]`

func newMockExchange(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v3/ticker/24hr"):
			w.Write([]byte(mock24hrBody))
		case strings.HasPrefix(r.URL.Path, "/api/v3/klines"):
			w.Write([]byte(mockKlinesBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchSnapshot(t *testing.T) {
	server := newMockExchange(t)
	provider := NewSnapshotProvider(server.URL, time.Hour)

	snaps, err := provider.FetchSnapshot(context.Background(), []string{"btcusdt", "ETHUSDT"})
	if err != nil {
		t.Fatalf("FetchSnapshot failed: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(snaps))
	}

	btc := snaps[0]
	if btc.Symbol != "BTCUSDT" {
		t.Errorf("Expected BTCUSDT, got %s", btc.Symbol)
	}
	if btc.Price.String() != "50000.5" {
		t.Errorf("Expected price 50000.5, got %s", btc.Price)
	}
	if btc.QuoteVolume24h.String() != "1234567.89" {
		t.Errorf("Expected quote volume 1234567.89, got %s", btc.QuoteVolume24h)
	}

	// Klines: 600.5+399.5 total, 400.25+99.75 taker-buy.
	if btc.HourlyTotal.String() != "1000" {
		t.Errorf("Expected hourly total 1000, got %s", btc.HourlyTotal)
	}
	if btc.HourlyBuy.String() != "500" {
		t.Errorf("Expected hourly buy 500, got %s", btc.HourlyBuy)
	}
	if btc.HourlySell.String() != "500" {
		t.Errorf("Expected hourly sell 500, got %s", btc.HourlySell)
	}
	if !btc.HasSideSplit {
		t.Error("Kline backfill should carry a side split")
	}
}

func TestFetchSnapshot_UnknownSymbol(t *testing.T) {
	server := newMockExchange(t)
	provider := NewSnapshotProvider(server.URL, time.Hour)

	_, err := provider.FetchSnapshot(context.Background(), []string{"BTCUSDT", "NOPEUSDT"})
	if !errors.Is(err, domain.ErrInvalidSymbol) {
		t.Errorf("Expected ErrInvalidSymbol, got %v", err)
	}
}

func TestFetchSnapshot_EmptySymbols(t *testing.T) {
	provider := NewSnapshotProvider("http://unused", time.Hour)

	_, err := provider.FetchSnapshot(context.Background(), nil)
	if !errors.Is(err, domain.ErrEmptySymbolSet) {
		t.Errorf("Expected ErrEmptySymbolSet, got %v", err)
	}
}

func TestFetchSnapshot_RetriesOnServerError(t *testing.T) {
	failures := 1
	statsCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v3/ticker/24hr"):
			statsCalls++
			if failures > 0 {
				failures--
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(mock24hrBody))
		case strings.HasPrefix(r.URL.Path, "/api/v3/klines"):
			w.Write([]byte(mockKlinesBody))
		}
	}))
	defer server.Close()

	provider := NewSnapshotProvider(server.URL, time.Hour)
	snaps, err := provider.FetchSnapshot(context.Background(), []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("FetchSnapshot should succeed after retry: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("Expected 1 snapshot, got %d", len(snaps))
	}
	if statsCalls != 2 {
		t.Errorf("Expected 2 statistics calls, got %d", statsCalls)
	}
}

func TestFetchSnapshot_ExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	provider := NewSnapshotProvider(server.URL, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	_, err := provider.FetchSnapshot(ctx, []string{"BTCUSDT"})
	if err == nil {
		t.Fatal("Expected error after exhausted retries")
	}
}
