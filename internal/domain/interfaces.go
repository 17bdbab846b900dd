package domain

import (
	"context"
	"time"
)

// StreamEvent is one decoded message delivered by a transport stream.
// Exactly one of Ticker or Trade is set, matching Feed.
type StreamEvent struct {
	Symbol string
	Feed   FeedType
	Market Market
	Ticker *TickerUpdate
	Trade  *Trade
}

// Stream is one open transport subscription handle.
type Stream interface {
	// Events delivers decoded feed events until the stream closes.
	Events() <-chan StreamEvent
	// Done is closed when the stream terminates for any reason; Err
	// reports the cause afterwards (nil on deliberate close).
	Done() <-chan struct{}
	Err() error
	Close() error
}

// StreamFactory opens one transport subscription for a fixed symbol set
// on one feed type and market. The engine does not care whether the
// implementation multiplexes one socket or opens one per symbol.
type StreamFactory interface {
	OpenStream(ctx context.Context, feed FeedType, market Market, symbols []string) (Stream, error)
}

// SnapshotProvider supplies the initial 24h fields and hourly-volume
// estimate per symbol. A failure here is fatal to engine start: without
// a seed the accumulator anchor is undefined.
type SnapshotProvider interface {
	FetchSnapshot(ctx context.Context, symbols []string) ([]SymbolSnapshot, error)
}

// WatchlistRepository is the external collaborator that persists which
// symbols the user tracks. The engine itself never touches it.
type WatchlistRepository interface {
	UpsertSymbol(symbol string, favorite bool) error
	GetSymbols() ([]string, error)
	ToggleFavorite(symbol string) (bool, error)
	DeleteSymbol(symbol string) error
}

// Clock abstracts time reads and timer scheduling for components with
// timing behavior so tests can run them at virtual time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) *time.Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) *time.Timer {
	return time.AfterFunc(d, f)
}

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}
