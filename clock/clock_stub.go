//go:build !linux
// +build !linux

// File: clock/clock_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Portable fallback: Go's time package carries a monotonic component on
// every supported platform.

package clock

import "time"

var origin = time.Now()

func nowNanos() int64 { return int64(time.Since(origin)) }
