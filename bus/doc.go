// Package bus carries admission lifecycle events between a controller and
// whoever watches it.
//
// MemoryBus keeps everything in process; NATSBus goes through a NATS
// server. Subjects are dot separated tokens and subscription patterns use
// NATS wildcards, so the same pattern works on both:
//
//	sub, _ := b.Subscribe("admission.*.canceled")
//	for msg := range sub.Messages() {
//	    ...
//	}
//
// Publishing never waits for a subscriber. A subscriber that falls behind
// loses messages, which its Dropped count reports.
package bus
