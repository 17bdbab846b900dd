package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalField names a SymbolState field a change signal refers to.
type SignalField string

const (
	SignalPrice  SignalField = "price"
	SignalVolume SignalField = "quote_volume_24h"
)

// Direction of a change signal.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ChangeSignal is a short-lived directional indicator derived from two
// consecutive values of one field. It is ephemeral UI feedback: a newer
// signal for the same field overwrites it, and it must be treated as
// gone once ExpiresAt elapses. Never persisted.
type ChangeSignal struct {
	Symbol    string
	Field     SignalField
	Direction Direction
	ExpiresAt time.Time
}

// Expired reports whether the signal has decayed at the given instant.
func (s ChangeSignal) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Dual change-detection thresholds. A delta qualifies when it is at or
// above the relative threshold or at or above the field's absolute
// floor; ties of exact decimal equality never qualify. The relative arm
// catches large moves on any scale, the absolute arm catches genuine
// sub-cent moves that round to a tiny relative change.
var (
	relativeThreshold  = decimal.New(1, -3)  // 0.1%
	absPriceThreshold  = decimal.New(1, -8)  // 1e-8
	absVolumeThreshold = decimal.New(100, 0) // 100 quote units
)

// DetectChange compares two consecutive values of a field and returns
// the signal direction, or ok=false when the delta does not qualify.
// Pure and side-effect free: callers own expiry scheduling.
func DetectChange(previous, current decimal.Decimal, field SignalField) (Direction, bool) {
	delta := current.Sub(previous)
	if delta.IsZero() {
		return "", false
	}

	abs := delta.Abs()
	floor := absPriceThreshold
	if field == SignalVolume {
		floor = absVolumeThreshold
	}

	qualifies := abs.GreaterThanOrEqual(floor)
	if !qualifies && !previous.IsZero() {
		qualifies = abs.Div(previous.Abs()).GreaterThanOrEqual(relativeThreshold)
	}
	if !qualifies {
		return "", false
	}

	if delta.IsPositive() {
		return DirectionUp, true
	}
	return DirectionDown, true
}
