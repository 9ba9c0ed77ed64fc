// Package quality classifies network health into ordered tiers and
// tracks tier transitions for the media session controller.
package quality

// Level is a coarse, ordered classification of network health.
// Higher values are better.
type Level int

// Quality tiers, worst to best.
const (
	LevelBad Level = iota
	LevelPoor
	LevelGood
	LevelExcellent
)

// String returns the lowercase tier name.
func (l Level) String() string {
	switch l {
	case LevelBad:
		return "bad"
	case LevelPoor:
		return "poor"
	case LevelGood:
		return "good"
	case LevelExcellent:
		return "excellent"
	default:
		return "unknown"
	}
}

// Degraded reports whether the level warrants a user warning.
func (l Level) Degraded() bool {
	return l == LevelBad || l == LevelPoor
}

// FromProviderScore maps a conferencing provider quality score to a
// tier. Providers report 1 as best and larger values as progressively
// worse; 0 means unknown and is treated as good.
func FromProviderScore(score int) Level {
	switch {
	case score <= 0:
		return LevelGood
	case score == 1:
		return LevelExcellent
	case score <= 3:
		return LevelGood
	case score <= 4:
		return LevelPoor
	default:
		return LevelBad
	}
}
