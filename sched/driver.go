// File: sched/driver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Driver is the single goroutine owning wheel and arena mutation. All other
// goroutines communicate exclusively through the lock-free op ring; the
// ring is the only structure requiring cross-thread synchronization, so the
// wheel hot path runs without locks entirely. Each pass the driver drains
// the ring once, advances the wheel over any elapsed ticks (bounded
// catch-up), and hands fired continuations to the resume executor.

package sched

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-timer/api"
	"github.com/momentics/hioload-timer/clock"
	"github.com/momentics/hioload-timer/core/concurrency"
	"github.com/momentics/hioload-timer/core/timing"
	"github.com/momentics/hioload-timer/pool"
)

// Config carries driver construction parameters.
type Config struct {
	TickDuration  time.Duration // wheel granularity; firing precision bound
	WheelSize     int           // slots per revolution, rounded to power of two
	QueueCapacity int           // op ring capacity, producer backpressure bound
	MaxTimers     int           // arena capacity
	MaxCatchUp    int           // advance budget per pass when the driver lags
	Clock         api.Clock     // monotonic source; nil selects the platform clock
	Resume        api.Resumer   // executor hook; nil resumes inline
}

func (c *Config) normalize() {
	if c.TickDuration <= 0 {
		c.TickDuration = 10 * time.Millisecond
	}
	if c.WheelSize <= 0 {
		c.WheelSize = 512
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 1024
	}
	if c.MaxTimers <= 0 {
		c.MaxTimers = 65536
	}
	if c.MaxCatchUp <= 0 {
		c.MaxCatchUp = 1024
	}
	if c.Clock == nil {
		c.Clock = clock.NewMonotonic()
	}
	if c.Resume == nil {
		c.Resume = func(fn func()) { fn() }
	}
}

// resumeOp is a deferred completion awaiting the resume executor.
type resumeOp struct {
	h *Handle
	o api.Outcome
}

// Driver owns the wheel, arena, and op ring.
type Driver struct {
	ops     *concurrency.RingBuffer[queueOp]
	arena   *timing.Arena
	wheel   *timing.Wheel
	clk     api.Clock
	resume  api.Resumer
	resumeq *queue.Queue
	handles *pool.SyncPool[*Handle]

	tickNs     int64
	maxCatchUp int
	origin     int64

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	down     atomic.Bool

	// counters mirrored for cross-thread observation
	scheduled atomic.Uint64
	fired     atomic.Uint64
	cancelled atomic.Uint64
	resets    atomic.Uint64
	rejected  atomic.Uint64
	exhausted atomic.Uint64
	killed    atomic.Uint64
	obsTick   atomic.Uint64
	obsLive   atomic.Int64
}

// NewDriver builds a driver from cfg. The driver does not advance until
// Run is started (or Turn is called directly).
func NewDriver(cfg Config) *Driver {
	cfg.normalize()
	arena := timing.NewArena(cfg.MaxTimers)
	d := &Driver{
		ops:        concurrency.NewRingBuffer[queueOp](cfg.QueueCapacity),
		arena:      arena,
		wheel:      timing.NewWheel(arena, cfg.WheelSize),
		clk:        cfg.Clock,
		resume:     cfg.Resume,
		resumeq:    queue.New(),
		tickNs:     int64(cfg.TickDuration),
		maxCatchUp: cfg.MaxCatchUp,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	d.handles = pool.NewSyncPool(func() *Handle { return &Handle{} })
	d.origin = d.clk.Now()
	return d
}

// TickDuration returns the configured wheel granularity.
func (d *Driver) TickDuration() time.Duration { return time.Duration(d.tickNs) }

// Schedule creates a handle and enqueues its register op. When the op ring
// is saturated the handle completes immediately with OutcomeRejected; a
// timeout is never lost silently. Safe to call from any goroutine.
func (d *Driver) Schedule(dur time.Duration) *Handle {
	h := d.handles.Get()
	h.rearm(d)
	if d.down.Load() {
		h.complete(api.OutcomeShutdown)
		return h
	}
	if !d.ops.Enqueue(queueOp{kind: opRegister, d: dur, h: h}) {
		d.rejected.Add(1)
		h.complete(api.OutcomeRejected)
		return h
	}
	d.scheduled.Add(1)
	// The final shutdown drain may have run between the check above and the
	// publish, leaving this op in the ring unseen. Completion is CAS-once,
	// so finishing the handle here cannot collide with the driver.
	if d.down.Load() {
		h.complete(api.OutcomeShutdown)
	}
	return h
}

// Run executes the driver loop until Stop. Idle between tick boundaries,
// Ticking when a boundary is reached; a late wakeup catches up by advancing
// multiple ticks in one pass instead of resleeping.
func (d *Driver) Run() {
	defer close(d.doneCh)
	for {
		select {
		case <-d.stopCh:
			d.shutdown()
			return
		default:
		}

		now := d.clk.Now()
		d.Turn(now)

		next := d.origin + int64(d.wheel.CurrentTick()+1)*d.tickNs
		wait := next - now
		if wait <= 0 {
			continue
		}
		t := time.NewTimer(time.Duration(wait))
		select {
		case <-d.stopCh:
			t.Stop()
			d.shutdown()
			return
		case <-t.C:
		}
	}
}

// Stop signals the loop and waits for shutdown to finish. All still
// scheduled handles complete with ErrShutdown, never silently dropped.
// Valid only after Run has been started.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	<-d.doneCh
}

// Turn performs one driver pass against the supplied monotonic reading:
// drain the op ring once, advance the wheel over elapsed ticks (bounded by
// MaxCatchUp), then flush pending resumes through the executor.
func (d *Driver) Turn(now int64) {
	var target uint64
	if now > d.origin {
		target = uint64((now - d.origin) / d.tickNs)
	}

	d.drainOps()

	cur := d.wheel.CurrentTick()
	if target > cur {
		lag := target - cur
		if lag > uint64(d.maxCatchUp) {
			lag = uint64(d.maxCatchUp)
		}
		for ; lag > 0; lag-- {
			d.wheel.Advance(d.onFire)
		}
	}

	d.flushResumes()
	d.obsTick.Store(d.wheel.CurrentTick())
	d.obsLive.Store(int64(d.wheel.Live()))
}

// drainOps applies every currently published op in FIFO publish order.
// Bounded work: the ring is bounded, and ops pushed mid-drain at most top
// it back up once.
func (d *Driver) drainOps() {
	for {
		op, ok := d.ops.Dequeue()
		if !ok {
			return
		}
		switch op.kind {
		case opRegister:
			d.applyRegister(op)
		case opCancel:
			d.applyCancel(op)
		case opReset:
			d.applyReset(op)
		}
	}
}

func (d *Driver) applyRegister(op queueOp) {
	if d.down.Load() {
		d.resumeq.Add(resumeOp{op.h, api.OutcomeShutdown})
		return
	}
	idx, ok := d.arena.Alloc()
	if !ok {
		d.exhausted.Add(1)
		d.resumeq.Add(resumeOp{op.h, api.OutcomeExhausted})
		return
	}
	e := d.arena.At(idx)
	e.Waiter = op.h
	op.h.tok.Store(uint64(d.arena.Token(idx)))
	d.wheel.Place(idx, d.wheel.CurrentTick()+d.ticks(op.d))
}

// applyCancel resolves a cancel op. A stale token, or an entry already
// fired or cancelled, is a silent no-op: the expected outcome of the race
// between cancel and fire.
func (d *Driver) applyCancel(op queueOp) {
	e := d.arena.Lookup(op.h.Token())
	if e == nil || e.State != timing.StateScheduled {
		return
	}
	// Lazily unlinked: the entry stays in its slot list until the cursor
	// reaches it, and is skipped rather than fired.
	e.State = timing.StateCancelled
	e.Waiter = nil
	d.cancelled.Add(1)
	d.resumeq.Add(resumeOp{op.h, api.OutcomeCancelled})
}

// applyReset relocates the entry under the same token identity.
func (d *Driver) applyReset(op queueOp) {
	tok := op.h.Token()
	e := d.arena.Lookup(tok)
	if e == nil || e.State != timing.StateScheduled {
		return
	}
	idx := int32(tok.Index())
	d.wheel.Unlink(idx)
	d.wheel.Place(idx, d.wheel.CurrentTick()+d.ticks(op.d))
	d.resets.Add(1)
}

// ticks converts a caller duration to whole wheel ticks.
func (d *Driver) ticks(dur time.Duration) uint64 {
	if dur <= 0 {
		return 0
	}
	return uint64(int64(dur) / d.tickNs)
}

func (d *Driver) onFire(waiter any) {
	h := waiter.(*Handle)
	d.fired.Add(1)
	d.resumeq.Add(resumeOp{h, api.OutcomeFired})
}

// flushResumes hands buffered completions to the resume executor in firing
// order. The executor must not block; by default completions run inline.
func (d *Driver) flushResumes() {
	for d.resumeq.Length() > 0 {
		r := d.resumeq.Remove().(resumeOp)
		h, o := r.h, r.o
		d.resume(func() { h.complete(o) })
	}
}

// shutdown completes every still-scheduled waiter with the shutdown
// outcome after a final drain of the op ring.
func (d *Driver) shutdown() {
	d.down.Store(true)
	d.drainOps()
	d.arena.Each(func(_ int32, e *timing.Entry) {
		if e.State != timing.StateScheduled {
			return
		}
		if h, ok := e.Waiter.(*Handle); ok && h != nil {
			d.killed.Add(1)
			d.resumeq.Add(resumeOp{h, api.OutcomeShutdown})
		}
		e.Waiter = nil
	})
	d.flushResumes()
}

// Stats returns counters safe to read from any goroutine.
func (d *Driver) Stats() map[string]any {
	return map[string]any{
		"timer.scheduled":         d.scheduled.Load(),
		"timer.fired":             d.fired.Load(),
		"timer.cancelled":         d.cancelled.Load(),
		"timer.resets":            d.resets.Load(),
		"timer.rejected":          d.rejected.Load(),
		"timer.exhausted":         d.exhausted.Load(),
		"timer.shutdown_killed":   d.killed.Load(),
		"timer.current_tick":      d.obsTick.Load(),
		"timer.live_entries":      d.obsLive.Load(),
		"timer.op_queue_depth":    d.ops.Len(),
		"timer.op_queue_capacity": d.ops.Cap(),
	}
}
