package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketview/internal/domain"
	"marketview/internal/infra"

	"github.com/shopspring/decimal"
)

const (
	defaultSpotRestURL = "https://api.binance.com"
	fetchAttempts      = 3
)

// SnapshotProvider seeds the engine from the spot REST API: 24hr ticker
// statistics for the display fields plus a one-minute-kline backfill
// for the volume window's anchor value. The klines carry a taker-buy
// quote column, so the hourly seed comes with a real buy/sell split.
type SnapshotProvider struct {
	restURL    string
	window     time.Duration
	httpClient *http.Client
	metrics    *infra.Metrics
}

// NewSnapshotProvider creates a provider against the given REST base
// URL ("" for production) backfilling the given window span.
func NewSnapshotProvider(restURL string, window time.Duration) *SnapshotProvider {
	if restURL == "" {
		restURL = defaultSpotRestURL
	}
	if window <= 0 {
		window = time.Hour
	}
	return &SnapshotProvider{
		restURL: strings.TrimSuffix(restURL, "/"),
		window:  window,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		metrics: infra.GlobalMetrics,
	}
}

// FetchSnapshot returns one seed record per requested symbol. Any
// failure is returned to the caller: the engine cannot anchor its
// volume window without a seed.
func (p *SnapshotProvider) FetchSnapshot(ctx context.Context, symbols []string) ([]domain.SymbolSnapshot, error) {
	if len(symbols) == 0 {
		return nil, domain.ErrEmptySymbolSet
	}

	stats, err := p.fetchStats(ctx, symbols)
	if err != nil {
		return nil, err
	}

	snapshots := make([]domain.SymbolSnapshot, 0, len(symbols))
	for _, symbol := range symbols {
		symbol = domain.NormalizeSymbol(symbol)
		stat, ok := stats[symbol]
		if !ok {
			return nil, fmt.Errorf("%w: %s missing from 24hr statistics", domain.ErrInvalidSymbol, symbol)
		}

		snap := domain.SymbolSnapshot{
			Symbol:           symbol,
			Price:            p.parseDecimal(stat.LastPrice, symbol, "lastPrice"),
			ChangePercent24h: p.parseDecimal(stat.ChangePercent, symbol, "priceChangePercent"),
			High24h:          p.parseDecimal(stat.HighPrice, symbol, "highPrice"),
			Low24h:           p.parseDecimal(stat.LowPrice, symbol, "lowPrice"),
			QuoteVolume24h:   p.parseDecimal(stat.QuoteVolume, symbol, "quoteVolume"),
		}

		total, buy, sell, err := p.fetchHourlyVolume(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("hourly backfill for %s: %w", symbol, err)
		}
		snap.HourlyTotal = total
		snap.HourlyBuy = buy
		snap.HourlySell = sell
		snap.HasSideSplit = true

		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// fetchStats loads 24hr statistics for all symbols in one request.
func (p *SnapshotProvider) fetchStats(ctx context.Context, symbols []string) (map[string]ticker24hr, error) {
	quoted := make([]string, len(symbols))
	for i, s := range symbols {
		quoted[i] = `"` + domain.NormalizeSymbol(s) + `"`
	}
	endpoint := fmt.Sprintf("%s/api/v3/ticker/24hr?symbols=%s",
		p.restURL,
		url.QueryEscape("["+strings.Join(quoted, ",")+"]"),
	)

	body, err := p.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var rows []ticker24hr
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode 24hr statistics: %w", err)
	}

	stats := make(map[string]ticker24hr, len(rows))
	for _, row := range rows {
		stats[domain.NormalizeSymbol(row.Symbol)] = row
	}
	return stats, nil
}

// fetchHourlyVolume sums the window's one-minute klines into the seed
// total and its taker-buy split.
func (p *SnapshotProvider) fetchHourlyVolume(ctx context.Context, symbol string) (total, buy, sell decimal.Decimal, err error) {
	minutes := int(p.window / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	endpoint := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=1m&limit=%d", p.restURL, symbol, minutes)

	body, err := p.get(ctx, endpoint)
	if err != nil {
		return total, buy, sell, err
	}

	var rows []kline
	if err := json.Unmarshal(body, &rows); err != nil {
		return total, buy, sell, fmt.Errorf("decode klines: %w", err)
	}

	for _, row := range rows {
		if len(row) < klineColumns {
			continue
		}
		quoteVol, ok1 := row[klineQuoteVolumeIdx].(string)
		takerBuy, ok2 := row[klineTakerBuyQuoteIdx].(string)
		if !ok1 || !ok2 {
			continue
		}
		total = total.Add(p.parseDecimal(quoteVol, symbol, "kline quote volume"))
		buy = buy.Add(p.parseDecimal(takerBuy, symbol, "kline taker buy"))
	}
	sell = total.Sub(buy)
	return total, buy, sell, nil
}

// get issues one GET with bounded retries and exponential backoff.
func (p *SnapshotProvider) get(ctx context.Context, endpoint string) ([]byte, error) {
	var lastErr error
	for i := 0; i < fetchAttempts; i++ {
		if i > 0 {
			delay := infra.CalculateBackoff(i - 1)
			slog.Info("retrying snapshot fetch", slog.Int("attempt", i), slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := p.doGet(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err
		slog.Warn("snapshot fetch attempt failed", slog.Int("attempt", i+1), slog.Any("error", err))
	}
	return nil, lastErr
}

func (p *SnapshotProvider) doGet(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError("snapshot get", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// parseDecimal treats malformed numeric fields as zero with a
// diagnostic: one corrupt field must not abort the whole seed.
func (p *SnapshotProvider) parseDecimal(s, symbol, field string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		p.metrics.RecordMalformedPayload()
		slog.Warn("malformed numeric field",
			slog.String("symbol", symbol),
			slog.String("field", field),
			slog.String("value", s),
		)
		return decimal.Zero
	}
	return d
}
