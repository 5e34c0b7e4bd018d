// Package clock abstracts wall time so debounce windows, liveness windows
// and drift checks can be driven deterministically in tests.
package clock

import "time"

// Clock returns the current time.
//
// Implementations must be safe for concurrent use.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock, normalized to UTC.
type System struct{}

// Now returns time.Now in UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Func adapts a plain function to Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time {
	return f()
}

// OrSystem returns c, or System when c is nil.
func OrSystem(c Clock) Clock {
	if c == nil {
		return System{}
	}
	return c
}
