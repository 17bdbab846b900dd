package engine

import (
	"time"

	"marketview/internal/domain"

	"github.com/gammazero/deque"
)

type signalKey struct {
	symbol string
	field  domain.SignalField
}

type pendingExpiry struct {
	key       signalKey
	expiresAt time.Time
}

// signalTracker holds live change signals and owns their expiry. All
// signals share one fixed decay duration, so insertion order equals
// expiry order and a FIFO deque is enough to prune the oldest first.
type signalTracker struct {
	decay   time.Duration
	live    map[signalKey]domain.ChangeSignal
	pending deque.Deque[pendingExpiry]
}

func newSignalTracker(decay time.Duration) *signalTracker {
	return &signalTracker{
		decay: decay,
		live:  make(map[signalKey]domain.ChangeSignal),
	}
}

// put records a signal for symbol/field, overwriting any older one.
func (t *signalTracker) put(symbol string, field domain.SignalField, dir domain.Direction, now time.Time) {
	key := signalKey{symbol: symbol, field: field}
	expiresAt := now.Add(t.decay)
	t.live[key] = domain.ChangeSignal{
		Symbol:    symbol,
		Field:     field,
		Direction: dir,
		ExpiresAt: expiresAt,
	}
	t.pending.PushBack(pendingExpiry{key: key, expiresAt: expiresAt})
}

// prune drops every signal whose decay has elapsed at now. A deque
// entry for a key that was overwritten later is skipped: the live
// record's own expiry decides, and the newer entry covers it.
func (t *signalTracker) prune(now time.Time) {
	for t.pending.Len() > 0 {
		entry := t.pending.Front()
		if now.Before(entry.expiresAt) {
			return
		}
		t.pending.PopFront()
		if sig, ok := t.live[entry.key]; ok && sig.Expired(now) {
			delete(t.live, entry.key)
		}
	}
}

// get returns the live signal for symbol/field, pruning first.
func (t *signalTracker) get(symbol string, field domain.SignalField, now time.Time) (domain.ChangeSignal, bool) {
	t.prune(now)
	sig, ok := t.live[signalKey{symbol: symbol, field: field}]
	if !ok || sig.Expired(now) {
		return domain.ChangeSignal{}, false
	}
	return sig, true
}

// removeSymbol drops all live signals for a symbol. Stale deque entries
// are harmless: prune skips keys with no live record.
func (t *signalTracker) removeSymbol(symbol string) {
	delete(t.live, signalKey{symbol: symbol, field: domain.SignalPrice})
	delete(t.live, signalKey{symbol: symbol, field: domain.SignalVolume})
}

// clear drops every signal and pending expiry.
func (t *signalTracker) clear() {
	t.live = make(map[signalKey]domain.ChangeSignal)
	t.pending.Clear()
}
