// Package ratelimit provides sliding-window rate rules and a gate that
// combines them.
//
// A Rule admits at most MaxCount events in any trailing interval of length
// Window. Each rule is tracked by a SlidingWindow, which keeps the
// timestamps of admitted events and evicts them once they fall out of the
// window:
//
//	gate, err := ratelimit.NewGate(
//	    ratelimit.PerSecond(10),
//	    ratelimit.PerMinute(100),
//	)
//	if err != nil {
//	    return err
//	}
//
//	now := time.Now()
//	if gate.Admit(now) {
//	    // run the protected call
//	} else {
//	    time.Sleep(gate.EarliestRetry(now).Sub(now))
//	    // evaluate again: another rule may still refuse
//	}
//
// # Time
//
// Nothing in this package reads the clock. Every method takes the current
// instant from the caller, which keeps the accounting deterministic and
// lets tests drive time explicitly.
//
// # Retry hints
//
// Gate.EarliestRetry returns the soonest instant at which any refusing rule
// frees a slot, not the latest. Waiting for the soonest candidate and then
// re-checking every rule never admits early and avoids over-waiting when a
// shorter rule is the one currently binding.
package ratelimit
