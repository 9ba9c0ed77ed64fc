package quality

// Transition describes what a new sample changed.
type Transition struct {
	// Changed is true when the sampled level differs from the previous one.
	Changed bool
	// Warn is true when a degradation warning is due: once per entry
	// into a degraded tier, and again only if quality worsens further.
	Warn bool
	// Cleared is true when quality returned to a healthy tier after a
	// warning had been issued.
	Cleared bool
}

// Tracker compares successive quality samples and applies the
// rate-limited warning rule: repeated samples at the same degraded
// level never re-trigger the warning, and neither does an improvement
// that stays inside the degraded tiers.
type Tracker struct {
	current     Level
	warned      bool
	warnedFloor Level
}

// NewTracker creates a Tracker starting at the given level.
func NewTracker(initial Level) *Tracker {
	return &Tracker{current: initial}
}

// Current returns the last observed level.
func (t *Tracker) Current() Level {
	return t.current
}

// Observe records a new sample and reports the resulting transition.
func (t *Tracker) Observe(level Level) Transition {
	if level == t.current {
		return Transition{}
	}

	transition := Transition{Changed: true}
	t.current = level

	if !level.Degraded() {
		if t.warned {
			transition.Cleared = true
			t.warned = false
		}

		return transition
	}

	switch {
	case !t.warned:
		transition.Warn = true
		t.warned = true
		t.warnedFloor = level
	case level < t.warnedFloor:
		// Worsened past the tier already warned about.
		transition.Warn = true
		t.warnedFloor = level
	}

	return transition
}
