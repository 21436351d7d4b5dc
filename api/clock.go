// Package api
// Author: momentics
//
// Monotonic clock source contract for the wheel driver.

package api

// Clock provides monotonic time in nanoseconds. The driver reads it once
// per loop pass; it is the only time source wheel ticks are derived from.
type Clock interface {
	// Now returns monotonic time in nanoseconds since an arbitrary origin.
	Now() int64
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }
