package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow tracks the timestamps of admitted events for a single rule.
// Every method takes the current instant from the caller so results are
// deterministic. It is safe for concurrent use.
type SlidingWindow struct {
	mu      sync.Mutex
	rule    Rule
	history []time.Time // admission times, oldest first
	head    int         // index of the oldest live entry in history
}

// NewSlidingWindow creates a window for the given rule.
func NewSlidingWindow(rule Rule) (*SlidingWindow, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return &SlidingWindow{
		rule:    rule,
		history: make([]time.Time, 0, rule.MaxCount),
	}, nil
}

// Rule returns the rule this window enforces.
func (w *SlidingWindow) Rule() Rule {
	return w.rule
}

// Evict drops every timestamp at or before now-window.
func (w *SlidingWindow) Evict(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(now)
}

// CanAdmit reports whether one more event fits in the window at now.
func (w *SlidingWindow) CanAdmit(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(now)
	return w.len() < w.rule.MaxCount
}

// Record appends now to the window. It does not check capacity; callers
// must have confirmed admission first.
func (w *SlidingWindow) Record(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(now)
	w.history = append(w.history, now)
}

// NextAvailable returns the earliest instant at which the window admits
// again: now if it has room, otherwise the moment the oldest event expires.
func (w *SlidingWindow) NextAvailable(now time.Time) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(now)
	return w.nextAvailable(now)
}

// Len returns the number of events inside the window at now.
func (w *SlidingWindow) Len(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(now)
	return w.len()
}

// Usage returns a snapshot of the window at now.
func (w *SlidingWindow) Usage(now time.Time) Usage {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(now)

	n := w.len()
	available := w.rule.MaxCount - n
	if available < 0 {
		available = 0
	}
	return Usage{
		Rule:          w.rule,
		InWindow:      n,
		Available:     available,
		NextAvailable: w.nextAvailable(now),
	}
}

func (w *SlidingWindow) len() int {
	return len(w.history) - w.head
}

func (w *SlidingWindow) nextAvailable(now time.Time) time.Time {
	if w.len() < w.rule.MaxCount {
		return now
	}
	if w.len() == 0 {
		return now.Add(FallbackDelay)
	}
	return w.history[w.head].Add(w.rule.Window)
}

// evict advances head past expired entries and compacts the backing slice
// once at least half of it is dead. Must be called with mu held.
func (w *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-w.rule.Window)
	for w.head < len(w.history) && !w.history[w.head].After(cutoff) {
		w.head++
	}

	if w.head == len(w.history) {
		w.history = w.history[:0]
		w.head = 0
		return
	}
	if w.head > 0 && w.head*2 >= len(w.history) {
		n := copy(w.history, w.history[w.head:])
		w.history = w.history[:n]
		w.head = 0
	}
}
