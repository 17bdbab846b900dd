package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"marketview/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage persists the watchlist and user configuration. It is an
// external collaborator of the streaming engine: the engine never reads
// it, the app uses it to decide which symbols to subscribe.
type Storage struct {
	db *gorm.DB
}

// NewStorage creates a new SQLite storage instance at the default
// per-user location
func NewStorage() (*Storage, error) {
	dbPath, err := getDBPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DB path: %w", err)
	}
	return NewStorageAt(dbPath)
}

// NewStorageAt creates a SQLite storage instance at the given path
func NewStorageAt(dbPath string) (*Storage, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.WatchSymbol{}, &domain.AppConfig{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path from the user config dir
func getDBPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "marketview", "data", "marketview.db"), nil
}

// ======================================================================================
// Watchlist Operations
// ======================================================================================

// UpsertSymbol creates or updates a watchlist entry
func (s *Storage) UpsertSymbol(symbol string, favorite bool) error {
	symbol = domain.NormalizeSymbol(symbol)
	entry := &domain.WatchSymbol{
		Symbol:     symbol,
		IsFavorite: favorite,
		UpdatedAt:  time.Now(),
	}
	if existing, _ := s.getSymbol(symbol); existing != nil {
		entry.AddedAt = existing.AddedAt
	} else {
		entry.AddedAt = time.Now()
	}
	return s.db.Save(entry).Error
}

// GetSymbols returns every watched symbol
func (s *Storage) GetSymbols() ([]string, error) {
	var entries []domain.WatchSymbol
	if err := s.db.Order("symbol").Find(&entries).Error; err != nil {
		return nil, err
	}

	symbols := make([]string, len(entries))
	for i, e := range entries {
		symbols[i] = e.Symbol
	}
	return symbols, nil
}

func (s *Storage) getSymbol(symbol string) (*domain.WatchSymbol, error) {
	var entry domain.WatchSymbol
	err := s.db.First(&entry, "symbol = ?", symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &entry, err
}

// ToggleFavorite toggles the favorite status of a watchlist entry
func (s *Storage) ToggleFavorite(symbol string) (bool, error) {
	var entry domain.WatchSymbol
	if err := s.db.First(&entry, "symbol = ?", domain.NormalizeSymbol(symbol)).Error; err != nil {
		return false, err
	}

	entry.IsFavorite = !entry.IsFavorite
	err := s.db.Save(&entry).Error
	return entry.IsFavorite, err
}

// DeleteSymbol removes a symbol from the watchlist
func (s *Storage) DeleteSymbol(symbol string) error {
	return s.db.Where("symbol = ?", domain.NormalizeSymbol(symbol)).Delete(&domain.WatchSymbol{}).Error
}

// ======================================================================================
// Config Operations
// ======================================================================================

// SaveConfig saves a user configuration
func (s *Storage) SaveConfig(key, value string) error {
	config := domain.AppConfig{
		Key:   key,
		Value: value,
	}
	return s.db.Save(&config).Error
}

// LoadConfigMap loads all user configurations as a map
func (s *Storage) LoadConfigMap() (map[string]string, error) {
	var configs []domain.AppConfig
	if err := s.db.Find(&configs).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, cfg := range configs {
		result[cfg.Key] = cfg.Value
	}
	return result, nil
}
