// File: sched/ops.go
// Package sched implements the single-goroutine wheel driver and the
// caller-facing timeout handles.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sched

import "time"

type opKind uint8

const (
	opRegister opKind = iota
	opCancel
	opReset
)

// queueOp is one message on the MPMC op ring. Ops are self-contained: the
// driver applies them without any producer-side synchronization. Durations
// travel as-is; tick conversion happens at apply time, because the driver
// is the sole source of truth for the current tick.
type queueOp struct {
	kind opKind
	d    time.Duration
	h    *Handle
}
