package stream

import (
	"sync"
	"time"

	"marketview/internal/domain"
	"marketview/internal/infra"
)

// notifier is the explicit throttle policy on the "view changed" path.
// Trade-driven bursts coalesce to at most one notification per
// interval; ticker-driven changes are rarer and individually
// significant, so they bypass the gate entirely. The notification
// carries no payload: consumers re-read the store.
type notifier struct {
	interval time.Duration
	clock    domain.Clock
	sink     func()
	metrics  *infra.Metrics

	mu       sync.Mutex
	lastSent time.Time
	pending  *time.Timer
	stopped  bool
}

func newNotifier(interval time.Duration, clock domain.Clock, sink func(), metrics *infra.Metrics) *notifier {
	return &notifier{
		interval: interval,
		clock:    clock,
		sink:     sink,
		metrics:  metrics,
	}
}

// Immediate sends right away and resets the throttle gate. Ticker path.
func (n *notifier) Immediate() {
	n.mu.Lock()
	if n.stopped || n.sink == nil {
		n.mu.Unlock()
		return
	}
	if n.pending != nil {
		n.pending.Stop()
		n.pending = nil
	}
	n.lastSent = n.clock.Now()
	sink := n.sink
	n.mu.Unlock()

	n.metrics.RecordNotification(true)
	sink()
}

// Throttled sends if the gate allows, otherwise arms one trailing
// notification for the end of the current interval. Trade path.
func (n *notifier) Throttled() {
	n.mu.Lock()
	if n.stopped || n.sink == nil {
		n.mu.Unlock()
		return
	}

	now := n.clock.Now()
	elapsed := now.Sub(n.lastSent)
	if elapsed >= n.interval {
		n.lastSent = now
		sink := n.sink
		n.mu.Unlock()
		n.metrics.RecordNotification(true)
		sink()
		return
	}

	if n.pending == nil {
		n.pending = n.clock.AfterFunc(n.interval-elapsed, n.fireTrailing)
	}
	n.mu.Unlock()
	n.metrics.RecordNotification(false)
}

func (n *notifier) fireTrailing() {
	n.mu.Lock()
	n.pending = nil
	if n.stopped || n.sink == nil {
		n.mu.Unlock()
		return
	}
	n.lastSent = n.clock.Now()
	sink := n.sink
	n.mu.Unlock()

	n.metrics.RecordNotification(true)
	sink()
}

// Stop cancels any trailing notification and mutes the sink.
func (n *notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopped = true
	if n.pending != nil {
		n.pending.Stop()
		n.pending = nil
	}
}
