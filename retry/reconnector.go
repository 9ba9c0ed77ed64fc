package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/virtuclass/classkit/faults"
	"github.com/virtuclass/classkit/log"
)

// ErrExhausted is returned when a run fails every attempt allowed by
// its policy.
var ErrExhausted = errors.New("reconnection attempts exhausted")

// Status reports the progress of one reconnection run. It is produced
// once per attempt plus once on terminal success or failure, and is
// never retained beyond the handler invocation.
type Status struct {
	// Reconnecting is true while attempts remain in flight.
	Reconnecting bool
	// Attempt is the 1-based attempt counter.
	Attempt int
	// MaxAttempts echoes the policy bound.
	MaxAttempts int
	// NextRetryIn is the delay before the next attempt would start.
	// Zero on the final attempt and on terminal statuses.
	NextRetryIn time.Duration
	// LastErr is the most recent failure. Nil on the first attempt
	// and on terminal success.
	LastErr error
}

// StatusHandler observes reconnection progress.
type StatusHandler func(Status)

// Reconnector drives repeated invocations of a reconnect operation
// with exponentially increasing delay. A single run is strictly
// sequential: attempt N+1 never starts before attempt N has settled
// and its delay elapsed.
type Reconnector struct {
	policy     Policy
	logger     log.T
	handlers   []StatusHandler
	onRecovery func()
}

// NewReconnector creates a Reconnector with the given policy.
func NewReconnector(policy Policy, logger log.T) *Reconnector {
	return &Reconnector{
		policy: policy.normalized(),
		logger: logger.With("subsystem", "Reconnector"),
	}
}

// Subscribe registers a status handler. Handlers are invoked in
// registration order, once per attempt plus once per terminal status.
func (r *Reconnector) Subscribe(handler StatusHandler) {
	r.handlers = append(r.handlers, handler)
}

// OnRecovery registers a hook invoked exactly once when a run ends in
// success, after the terminal status has been emitted. It never fires
// for an exhausted or cancelled run.
func (r *Reconnector) OnRecovery(hook func()) {
	r.onRecovery = hook
}

// Policy returns the schedule this reconnector runs.
func (r *Reconnector) Policy() Policy {
	return r.policy
}

func (r *Reconnector) emit(status Status) {
	for _, handler := range r.handlers {
		handler(status)
	}
}

// Run executes the operation until it succeeds, the policy is
// exhausted, or the context is cancelled. It returns nil on success,
// ErrExhausted (wrapping the last failure) on exhaustion, and the
// context error on cancellation. Retryable failures during the run are
// converted to status values; they never propagate past this boundary.
// Configuration and permission faults abort the run on the spot, since
// no amount of retrying fixes them.
func (r *Reconnector) Run(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		// Liveness check before each attempt: a run cancelled at
		// teardown must not emit a status or touch the operation.
		if ctx.Err() != nil {
			return fmt.Errorf("reconnection cancelled: %w", ctx.Err())
		}

		delay := r.policy.DelayAt(attempt)

		status := Status{
			Reconnecting: true,
			Attempt:      attempt,
			MaxAttempts:  r.policy.MaxAttempts,
			LastErr:      lastErr,
		}
		if attempt < r.policy.MaxAttempts {
			status.NextRetryIn = delay
		}

		r.emit(status)

		err := operation()
		if err == nil {
			r.emit(Status{
				Reconnecting: false,
				Attempt:      attempt,
				MaxAttempts:  r.policy.MaxAttempts,
			})

			if r.onRecovery != nil {
				r.onRecovery()
			}

			r.logger.Info("Reconnected", "attempt", attempt)

			return nil
		}

		if !faults.Retryable(err) {
			r.logger.Error("Reconnect failed with a non-retryable error", "attempt", attempt, "error", err)
			r.emit(Status{
				Reconnecting: false,
				Attempt:      attempt,
				MaxAttempts:  r.policy.MaxAttempts,
				LastErr:      err,
			})

			return fmt.Errorf("non-retryable failure on attempt %d: %w", attempt, err)
		}

		lastErr = err
		r.logger.Warn("Reconnect attempt failed", "attempt", attempt, "maxAttempts", r.policy.MaxAttempts, "error", err)

		if attempt < r.policy.MaxAttempts {
			// The continuation checks liveness before scheduling the
			// next attempt so teardown does not leave zombie retries.
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("reconnection cancelled: %w", ctx.Err())
			}
		}
	}

	r.emit(Status{
		Reconnecting: false,
		Attempt:      r.policy.MaxAttempts,
		MaxAttempts:  r.policy.MaxAttempts,
		LastErr:      lastErr,
	})

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, r.policy.MaxAttempts, lastErr)
}
