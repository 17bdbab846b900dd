package infra

import "time"

const (
	baseBackoff = 1 * time.Second
	maxBackoff  = 60 * time.Second
)

// CalculateBackoff returns an exponential delay for the given retry
// count, capped at maxBackoff: 1s, 2s, 4s, ... 60s.
func CalculateBackoff(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	delay := baseBackoff << uint(retry)
	if delay <= 0 || delay > maxBackoff {
		return maxBackoff
	}
	return delay
}
