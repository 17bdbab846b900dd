package domain

import (
	"time"
)

// WatchSymbol is a persisted watchlist entry. The watchlist is external
// to the streaming engine; it only decides which symbols the app asks
// the engine to track.
type WatchSymbol struct {
	Symbol     string    `gorm:"primaryKey" json:"symbol"`
	IsFavorite bool      `json:"is_favorite" gorm:"index"`
	AddedAt    time.Time `json:"added_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AppConfig represents user-specific configuration (Key-Value)
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
