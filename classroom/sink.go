package classroom

import (
	"github.com/virtuclass/classkit/log"
	"github.com/virtuclass/classkit/quality"
	"github.com/virtuclass/classkit/retry"
)

// StatusSink is the contract with the user-facing status surface. The
// connection layer guarantees the data; rendering is the consumer's
// problem.
type StatusSink interface {
	// OnMediaStatus receives media reconnection progress, one value
	// per attempt plus a terminal value.
	OnMediaStatus(status retry.Status)
	// OnChannelStatus receives sync channel reconnection progress for
	// the named concern ("ai-output" or "chat").
	OnChannelStatus(concern string, status retry.Status)
	// OnQualityChange receives quality tier transitions, including
	// whether a degradation warning or recovery notice is due.
	OnQualityChange(level quality.Level, transition quality.Transition)
	// OnConnectionLost signals that automatic media reconnection is
	// exhausted and a manual retry affordance should be shown.
	OnConnectionLost()
}

// LogSink renders status events to the logger. It is the default sink
// and a reference implementation of the contract.
type LogSink struct {
	logger log.T
}

var _ StatusSink = LogSink{}

// NewLogSink creates a LogSink.
func NewLogSink(logger log.T) LogSink {
	return LogSink{logger: logger.With("subsystem", "StatusSink")}
}

// OnMediaStatus logs media reconnection progress.
func (s LogSink) OnMediaStatus(status retry.Status) {
	if status.Reconnecting {
		s.logger.Info("Reconnecting media session",
			"attempt", status.Attempt,
			"maxAttempts", status.MaxAttempts,
			"nextRetryIn", status.NextRetryIn)

		return
	}

	if status.LastErr != nil {
		s.logger.Error("Media session reconnection failed", "error", status.LastErr)
	} else {
		s.logger.Info("Media session reconnected")
	}
}

// OnChannelStatus logs sync channel reconnection progress.
func (s LogSink) OnChannelStatus(concern string, status retry.Status) {
	s.logger.Info("Sync channel status",
		"concern", concern,
		"reconnecting", status.Reconnecting,
		"attempt", status.Attempt,
		"maxAttempts", status.MaxAttempts)
}

// OnQualityChange logs quality transitions.
func (s LogSink) OnQualityChange(level quality.Level, transition quality.Transition) {
	switch {
	case transition.Warn:
		s.logger.Warn("Connection quality degraded", "quality", level.String())
	case transition.Cleared:
		s.logger.Info("Connection quality recovered", "quality", level.String())
	default:
		s.logger.Debug("Connection quality changed", "quality", level.String())
	}
}

// OnConnectionLost logs the terminal connection-lost state.
func (s LogSink) OnConnectionLost() {
	s.logger.Error("Connection lost, manual retry required")
}
