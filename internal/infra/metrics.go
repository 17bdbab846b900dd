package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	eventsProcessed   atomic.Uint64
	eventsDropped     atomic.Uint64
	malformedPayloads atomic.Uint64
	reconnects        atomic.Uint64
	notificationsSent atomic.Uint64
	notificationsHeld atomic.Uint64
	errorsTotal       atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordEvent records one processed feed event.
func (m *Metrics) RecordEvent() {
	m.eventsProcessed.Add(1)
}

// RecordDroppedEvent records an event discarded by the engine
// (out-of-window trade, unknown symbol, full inbox).
func (m *Metrics) RecordDroppedEvent() {
	m.eventsDropped.Add(1)
}

// RecordMalformedPayload records a message that failed to decode.
func (m *Metrics) RecordMalformedPayload() {
	m.malformedPayloads.Add(1)
}

// RecordReconnect records one scheduled reconnect attempt.
func (m *Metrics) RecordReconnect() {
	m.reconnects.Add(1)
}

// RecordNotification records one consumer notification, or a coalesced
// one held back by the throttle.
func (m *Metrics) RecordNotification(sent bool) {
	if sent {
		m.notificationsSent.Add(1)
	} else {
		m.notificationsHeld.Add(1)
	}
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EventsProcessed   uint64
	EventsDropped     uint64
	MalformedPayloads uint64
	Reconnects        uint64
	NotificationsSent uint64
	NotificationsHeld uint64
	ErrorsTotal       uint64
	ActiveConnections int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		EventsProcessed:   m.eventsProcessed.Load(),
		EventsDropped:     m.eventsDropped.Load(),
		MalformedPayloads: m.malformedPayloads.Load(),
		Reconnects:        m.reconnects.Load(),
		NotificationsSent: m.notificationsSent.Load(),
		NotificationsHeld: m.notificationsHeld.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.eventsProcessed.Store(0)
	m.eventsDropped.Store(0)
	m.malformedPayloads.Store(0)
	m.reconnects.Store(0)
	m.notificationsSent.Store(0)
	m.notificationsHeld.Store(0)
	m.errorsTotal.Store(0)
	m.activeConnections.Store(0)
}
