package ratelimit

import (
	"sync"
	"time"
)

// Gate combines several sliding windows; an event is admitted only when
// every window has room. The gate owns its windows, so a window is never
// shared between two gates.
type Gate struct {
	mu      sync.Mutex // serializes Admit so check and record are one step
	windows []*SlidingWindow
}

// NewGate builds a gate with one sliding window per rule, in rule order.
func NewGate(rules ...Rule) (*Gate, error) {
	if len(rules) == 0 {
		return nil, ErrNoRules
	}

	windows := make([]*SlidingWindow, 0, len(rules))
	for _, rule := range rules {
		w, err := NewSlidingWindow(rule)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return &Gate{windows: windows}, nil
}

// Rules returns the gate's rules in evaluation order.
func (g *Gate) Rules() []Rule {
	rules := make([]Rule, len(g.windows))
	for i, w := range g.windows {
		rules[i] = w.Rule()
	}
	return rules
}

// AllAdmit reports whether every rule would admit an event at now.
// It stops at the first rule that refuses.
func (g *Gate) AllAdmit(now time.Time) bool {
	for _, w := range g.windows {
		if !w.CanAdmit(now) {
			return false
		}
	}
	return true
}

// RecordAll records an event at now on every rule. Only call it right
// after AllAdmit returned true for the same instant.
func (g *Gate) RecordAll(now time.Time) {
	for _, w := range g.windows {
		w.Record(now)
	}
}

// Admit records an event on every rule if all of them admit at now.
func (g *Gate) Admit(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.AllAdmit(now) {
		return false
	}
	g.RecordAll(now)
	return true
}

// EarliestRetry returns the soonest instant after now at which some rule
// admits again, or now+FallbackDelay if no rule names one. It is a hint
// for when to poll again: a different rule may still refuse at that
// instant, so the gate has to be evaluated in full again.
func (g *Gate) EarliestRetry(now time.Time) time.Time {
	var earliest time.Time
	for _, w := range g.windows {
		next := w.NextAvailable(now)
		if !next.After(now) {
			continue
		}
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	if earliest.IsZero() {
		return now.Add(FallbackDelay)
	}
	return earliest
}

// Usage returns a snapshot of every rule at now, in rule order.
func (g *Gate) Usage(now time.Time) []Usage {
	usages := make([]Usage, len(g.windows))
	for i, w := range g.windows {
		usages[i] = w.Usage(now)
	}
	return usages
}
