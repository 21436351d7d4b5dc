// File: clock/clock.go
// Package clock provides monotonic time sources for the wheel driver.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package clock

import "github.com/momentics/hioload-timer/api"

// NewMonotonic returns the platform monotonic clock source. Readings never
// go backwards and are unaffected by wall-clock adjustments.
func NewMonotonic() api.Clock { return api.ClockFunc(nowNanos) }
