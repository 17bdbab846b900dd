package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"marketview/internal/app"
	"marketview/internal/engine"
	"marketview/internal/event"
	"marketview/internal/infra"
	"marketview/internal/infra/binance"
	"marketview/internal/stream"

	"github.com/joho/godotenv"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. Environment overrides from .env, if present
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded .env overrides")
	}

	// 3. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config

	// 4. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Engine wiring
	event.Warmup()

	store := engine.NewStore(engine.StoreConfig{
		Window:      cfg.Window(),
		SignalDecay: cfg.SignalDecay(),
	})

	snapshots := binance.NewSnapshotProvider(cfg.API.Binance.SpotRestURL, cfg.Window())
	factory := binance.NewStreamFactory(cfg.API.Binance.SpotWSURL, cfg.API.Binance.FuturesWSURL)

	// Persisted view preferences decide the default projection.
	sortKey, sortDir := bootstrap.ViewPreferences(
		string(engine.SortByQuoteVolume), string(engine.SortDesc))
	projection := engine.Projection{
		Key:       engine.SortKey(sortKey),
		Direction: engine.SortDirection(sortDir),
	}

	orchestrator := stream.NewOrchestrator(stream.Config{
		Snapshots:      snapshots,
		Factory:        factory,
		Store:          store,
		ConnectTimeout: cfg.ConnectTimeout(),
		ReconnectDelay: cfg.ReconnectDelay(),
		NotifyInterval: cfg.NotifyInterval(),
		InboxSize:      cfg.Engine.InboxSize,
		OnChange: func() {
			// Consumers re-read the store; the reference binary just
			// logs the top of the preferred projection at debug level.
			view := engine.Project(store.Snapshot(), projection)
			if len(view) > 0 {
				top := view[0]
				slog.Debug("view changed",
					slog.String("top_symbol", top.Symbol),
					slog.String("price", top.Price.String()),
					slog.String("hourly_total", top.HourlyWindow.Total.String()),
				)
			}
		},
	})

	// 6. Watchlist decides the subscription
	symbols, err := bootstrap.WatchedSymbols()
	if err != nil {
		slog.Error("Failed to load watchlist", slog.Any("error", err))
		os.Exit(1)
	}

	if err := orchestrator.Start(ctx, symbols); err != nil {
		slog.Error("Failed to start orchestrator", slog.Any("error", err))
		os.Exit(1)
	}
	defer orchestrator.Stop()

	slog.InfoContext(ctx, "marketview operational. Press Ctrl+C to exit.",
		slog.Int("symbols", len(symbols)))

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "Shutting down gracefully...",
		slog.Uint64("events", infra.GlobalMetrics.Snapshot().EventsProcessed))
}
