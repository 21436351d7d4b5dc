// File: sched/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handle is the caller-facing timeout token plus its completion contract.
// The (index, generation) token is assigned by the driver when the register
// op is applied; because the op ring is FIFO, any cancel or reset pushed
// through the same handle is drained after the register and always finds
// the token in place.

package sched

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-timer/api"
)

// Handle tracks one scheduled timeout. Completion happens exactly once,
// on the driver side (or synchronously on enqueue rejection); after that
// every further Cancel/Reset is a best-effort no-op.
type Handle struct {
	drv     *Driver
	tok     atomic.Uint64 // packed api.Token, driver-written
	outcome atomic.Uint32 // api.Outcome
	done    chan struct{}
}

// Done returns a channel closed when the handle completes.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Outcome reports the terminal state, or OutcomePending before completion.
func (h *Handle) Outcome() api.Outcome {
	return api.Outcome(h.outcome.Load())
}

// Err maps the outcome to the error taxonomy. A fired or still-pending
// handle reports nil.
func (h *Handle) Err() error {
	switch h.Outcome() {
	case api.OutcomeCancelled:
		return api.ErrCancelled
	case api.OutcomeShutdown:
		return api.ErrShutdown
	case api.OutcomeRejected:
		return api.ErrQueueFull
	case api.OutcomeExhausted:
		return api.ErrNoCapacity
	default:
		return nil
	}
}

// Wait blocks until the handle completes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (api.Outcome, error) {
	select {
	case <-h.done:
		return h.Outcome(), h.Err()
	case <-ctx.Done():
		return api.OutcomePending, ctx.Err()
	}
}

// Token returns the current (index, generation) token, or api.NoToken
// before the driver has applied the register op.
func (h *Handle) Token() api.Token {
	return api.Token(h.tok.Load())
}

// Cancel requests best-effort cancellation. If the driver already fired
// the entry before the op is drained, the firing stands and the cancel is
// a silent no-op; whichever reached the driver first wins, never both.
// Returns ErrQueueFull when the op could not be enqueued.
func (h *Handle) Cancel() error {
	if h.Outcome() != api.OutcomePending {
		return nil
	}
	if !h.drv.ops.Enqueue(queueOp{kind: opCancel, h: h}) {
		return api.ErrQueueFull
	}
	// Ops published after the final shutdown drain are never applied; the
	// shutdown sweep (or this CAS) completes the handle either way.
	if h.drv.down.Load() {
		h.complete(api.OutcomeShutdown)
	}
	return nil
}

// Reset re-arms the timeout with a new duration, preserving token
// identity: any party holding the token keeps referencing the same logical
// timer with a new deadline. Stale handles are a silent no-op.
func (h *Handle) Reset(d time.Duration) error {
	if h.Outcome() != api.OutcomePending {
		return nil
	}
	if !h.drv.ops.Enqueue(queueOp{kind: opReset, d: d, h: h}) {
		return api.ErrQueueFull
	}
	if h.drv.down.Load() {
		h.complete(api.OutcomeShutdown)
	}
	return nil
}

// Recycle returns a completed handle to the driver's pool. Callers must
// have observed completion (Done closed) and must drop every reference
// afterwards; recycling a pending handle is a caller error.
func (h *Handle) Recycle() {
	if h.Outcome() == api.OutcomePending {
		return
	}
	h.drv.handles.Put(h)
}

// complete transitions the handle to a terminal outcome exactly once.
func (h *Handle) complete(o api.Outcome) {
	if h.outcome.CompareAndSwap(uint32(api.OutcomePending), uint32(o)) {
		close(h.done)
	}
}

// rearm resets pooled state before reuse.
func (h *Handle) rearm(drv *Driver) {
	h.drv = drv
	h.tok.Store(uint64(api.NoToken))
	h.outcome.Store(uint32(api.OutcomePending))
	h.done = make(chan struct{})
}
