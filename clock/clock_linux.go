//go:build linux
// +build linux

// File: clock/clock_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux clock_gettime(2) CLOCK_MONOTONIC source.

package clock

import (
	"time"

	"golang.org/x/sys/unix"
)

func nowNanos() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// Go's runtime clock carries a monotonic reading; fall back to it.
		return int64(time.Since(origin))
	}
	return ts.Nano()
}

var origin = time.Now()
