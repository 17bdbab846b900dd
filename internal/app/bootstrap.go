package app

import (
	"log/slog"

	"marketview/internal/domain"
	"marketview/internal/infra"
	"marketview/internal/infra/storage"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, DB)
func (b *Bootstrap) Initialize() error {
	slog.Info("Bootstrapping marketview...")

	// 1. Load Config
	cfg, err := infra.LoadConfig("configs/config.yaml")
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage()
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("Database initialized")

	return nil
}

// User-config keys for the projection settings the binary renders with.
const (
	prefSortKey       = "view.sort_key"
	prefSortDirection = "view.sort_direction"
)

// ViewPreferences returns the persisted projection settings, writing
// the defaults back on first run so the next session starts from
// whatever the user last looked at.
func (b *Bootstrap) ViewPreferences(defaultKey, defaultDirection string) (key, direction string) {
	key, direction = defaultKey, defaultDirection

	prefs, err := b.Storage.LoadConfigMap()
	if err != nil {
		slog.Warn("Failed to load view preferences", slog.Any("error", err))
		return key, direction
	}

	if v, ok := prefs[prefSortKey]; ok && v != "" {
		key = v
	} else if err := b.Storage.SaveConfig(prefSortKey, key); err != nil {
		slog.Warn("Failed to persist sort key", slog.Any("error", err))
	}
	if v, ok := prefs[prefSortDirection]; ok && v != "" {
		direction = v
	} else if err := b.Storage.SaveConfig(prefSortDirection, direction); err != nil {
		slog.Warn("Failed to persist sort direction", slog.Any("error", err))
	}
	return key, direction
}

// WatchedSymbols merges the persisted watchlist with the configured
// defaults. Config symbols not yet persisted are added to the
// watchlist so the next run remembers them.
func (b *Bootstrap) WatchedSymbols() ([]string, error) {
	persisted, err := b.Storage.GetSymbols()
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(persisted))
	for _, s := range persisted {
		known[s] = true
	}

	symbols := persisted
	for _, raw := range b.Config.Engine.Symbols {
		s := domain.NormalizeSymbol(raw)
		if s == "" || known[s] {
			continue
		}
		if err := b.Storage.UpsertSymbol(s, false); err != nil {
			slog.Warn("Failed to persist watchlist symbol", slog.String("symbol", s), slog.Any("error", err))
		}
		symbols = append(symbols, s)
	}
	return symbols, nil
}
