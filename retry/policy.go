// Package retry implements the backoff retry strategy used to reconnect
// media sessions and sync channels.
package retry

import (
	"math"
	"time"

	"github.com/virtuclass/classkit/config"
)

// Policy describes one backoff schedule. It is immutable for the
// duration of a reconnection run.
type Policy struct {
	// MaxAttempts bounds the number of operation invocations per run.
	MaxAttempts int
	// InitialDelay is the delay computed for the first attempt.
	InitialDelay time.Duration
	// MaxDelay clamps the computed delay. Once reached, subsequent
	// delays stay at the cap.
	MaxDelay time.Duration
	// Multiplier is the geometric growth factor between attempts.
	Multiplier float64
}

// DefaultPolicy returns the schedule used by the media session controller.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  config.DefaultMaxReconnectAttempts,
		InitialDelay: config.DefaultReconnectInitialDelay,
		MaxDelay:     config.DefaultReconnectMaxDelay,
		Multiplier:   config.DefaultBackoffMultiplier,
	}
}

// ChannelPolicy returns the schedule used by sync channels.
func ChannelPolicy() Policy {
	return Policy{
		MaxAttempts:  config.ChannelMaxReconnectAttempts,
		InitialDelay: config.ChannelReconnectBaseDelay,
		MaxDelay:     config.DefaultReconnectMaxDelay,
		Multiplier:   config.DefaultBackoffMultiplier,
	}
}

// DelayAt computes the delay for the given 1-based attempt:
// min(InitialDelay * Multiplier^(attempt-1), MaxDelay).
func (p Policy) DelayAt(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	if delay > p.MaxDelay || delay < 0 {
		delay = p.MaxDelay
	}

	return delay
}

// normalized substitutes defaults for zero fields so a partially
// populated policy still terminates.
func (p Policy) normalized() Policy {
	def := DefaultPolicy()

	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}

	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}

	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}

	if p.Multiplier <= 1 {
		p.Multiplier = def.Multiplier
	}

	return p
}
