// Package errors holds the coded errors returned by the rate limiter and the
// admission controller.
//
// Every code maps to a category and a default retry hint:
//
//	UNAVAILABLE, TIMEOUT              transient, retry later
//	CAPACITY, RATE_LIMITED            resource, retry after backing off
//	INVALID_INPUT, CANCELED, OPERATION permanent
//	INTERNAL, PANIC                   internal
//
// Use Is to match a code anywhere an *Error sits in a chain, and the standard
// library's errors.Is to match sentinel values such as admission.ErrCanceled:
//
//	if errors.Is(err, errors.ErrCodeCapacity) {
//	    // queue full, shed load
//	}
//
// Errors marshal to JSON so lifecycle events can carry them across a bus.
package errors
