package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// Common errors.
var (
	ErrInvalidCapacity = errors.New("invalid capacity")
	ErrInvalidWindow   = errors.New("invalid window")
	ErrNoRules         = errors.New("at least one rate limit rule is required")
)

// FallbackDelay is the re-poll interval used when no rule can name a
// concrete instant at which it will admit again.
const FallbackDelay = 50 * time.Millisecond

// Rule admits at most MaxCount events in any trailing interval of length Window.
type Rule struct {
	// Name is an optional label used in logs and metrics.
	Name string

	// MaxCount is the maximum number of events per window.
	MaxCount int

	// Window is the length of the sliding interval.
	Window time.Duration
}

// PerSecond returns a rule admitting n events per second.
func PerSecond(n int) Rule {
	return Rule{MaxCount: n, Window: time.Second}
}

// PerMinute returns a rule admitting n events per minute.
func PerMinute(n int) Rule {
	return Rule{MaxCount: n, Window: time.Minute}
}

// Validate checks that the rule has a positive count and window.
func (r Rule) Validate() error {
	if r.MaxCount <= 0 {
		return fmt.Errorf("%w: max count %d for rule %s", ErrInvalidCapacity, r.MaxCount, r)
	}
	if r.Window <= 0 {
		return fmt.Errorf("%w: window %v for rule %s", ErrInvalidWindow, r.Window, r)
	}
	return nil
}

// String returns the rule as "name(count/window)" or "count/window".
func (r Rule) String() string {
	if r.Name != "" {
		return fmt.Sprintf("%s(%d/%v)", r.Name, r.MaxCount, r.Window)
	}
	return fmt.Sprintf("%d/%v", r.MaxCount, r.Window)
}

// Usage describes how much of a rule's window is in use at an instant.
type Usage struct {
	// Rule the usage belongs to.
	Rule Rule

	// InWindow is the number of recorded events still inside the window.
	InWindow int

	// Available is how many more events the rule would admit right now.
	Available int

	// NextAvailable is the earliest instant the rule admits again.
	// Equal to the sampling instant when Available > 0.
	NextAvailable time.Time
}
