package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-timer/api"
)

// fakeClock is a hand-driven monotonic source.
type fakeClock struct{ now int64 }

func (c *fakeClock) Now() int64 { return c.now }

// testDriver builds a driver around a fake clock starting at zero, with a
// 1ms tick so durations in milliseconds map 1:1 onto wheel ticks.
func testDriver(t *testing.T, cfg Config) (*Driver, *fakeClock) {
	t.Helper()
	clk := &fakeClock{}
	cfg.Clock = clk
	if cfg.TickDuration == 0 {
		cfg.TickDuration = time.Millisecond
	}
	return NewDriver(cfg), clk
}

// turnAt advances the fake clock and performs one driver pass.
func turnAt(d *Driver, clk *fakeClock, ms int64) {
	clk.now = ms * int64(time.Millisecond)
	d.Turn(clk.now)
}

func requireOutcome(t *testing.T, h *Handle, want api.Outcome) {
	t.Helper()
	if got := h.Outcome(); got != want {
		t.Fatalf("outcome = %v, want %v", got, want)
	}
}

// recordOrder replaces the driver's resume hook with one that runs each
// completion inline and appends the name of the handle that just completed.
func recordOrder(d *Driver, names map[*Handle]string, out *[]string) {
	d.resume = func(fn func()) {
		before := make(map[*Handle]api.Outcome, len(names))
		for h := range names {
			before[h] = h.Outcome()
		}
		fn()
		for h, name := range names {
			if before[h] == api.OutcomePending && h.Outcome() != api.OutcomePending {
				*out = append(*out, name)
			}
		}
	}
}

func TestDriver_SameTickFIFOAndDeferredRounds(t *testing.T) {
	d, clk := testDriver(t, Config{WheelSize: 8})

	a := d.Schedule(3 * time.Millisecond)
	b := d.Schedule(3 * time.Millisecond)
	c := d.Schedule(11 * time.Millisecond)

	var order []string
	recordOrder(d, map[*Handle]string{a: "A", b: "B", c: "C"}, &order)

	turnAt(d, clk, 0) // apply registers
	if a.Token() == api.NoToken || b.Token() == api.NoToken || c.Token() == api.NoToken {
		t.Fatal("tokens not assigned after register drain")
	}

	turnAt(d, clk, 3)
	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Fatalf("tick 3 completions = %v, want [A B]", order)
	}
	requireOutcome(t, c, api.OutcomePending)

	turnAt(d, clk, 10)
	requireOutcome(t, c, api.OutcomePending)

	turnAt(d, clk, 11)
	requireOutcome(t, c, api.OutcomeFired)
	if c.Err() != nil {
		t.Fatalf("fired handle Err = %v, want nil", c.Err())
	}
}

func TestDriver_FiringOrderWithinSlotIsRegistrationOrder(t *testing.T) {
	d, clk := testDriver(t, Config{WheelSize: 8})

	names := make(map[*Handle]string)
	var hs []*Handle
	for _, n := range []string{"h0", "h1", "h2", "h3"} {
		h := d.Schedule(4 * time.Millisecond)
		names[h] = n
		hs = append(hs, h)
	}
	var order []string
	recordOrder(d, names, &order)

	turnAt(d, clk, 0)
	turnAt(d, clk, 4)

	want := []string{"h0", "h1", "h2", "h3"}
	if len(order) != len(want) {
		t.Fatalf("completions = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("completions = %v, want %v", order, want)
		}
	}
	for _, h := range hs {
		requireOutcome(t, h, api.OutcomeFired)
	}
}

func TestDriver_ShorterDurationFiresFirst(t *testing.T) {
	d, clk := testDriver(t, Config{WheelSize: 8})
	short := d.Schedule(2 * time.Millisecond)
	long := d.Schedule(5 * time.Millisecond)
	turnAt(d, clk, 0)

	turnAt(d, clk, 2)
	requireOutcome(t, short, api.OutcomeFired)
	requireOutcome(t, long, api.OutcomePending)

	turnAt(d, clk, 5)
	requireOutcome(t, long, api.OutcomeFired)
}

func TestDriver_CancelBeforeFireNeverResumesFired(t *testing.T) {
	d, clk := testDriver(t, Config{WheelSize: 8})
	h := d.Schedule(5 * time.Millisecond)
	turnAt(d, clk, 0)

	if err := h.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	turnAt(d, clk, 1)
	requireOutcome(t, h, api.OutcomeCancelled)
	if !errors.Is(h.Err(), api.ErrCancelled) {
		t.Fatalf("Err = %v, want ErrCancelled", h.Err())
	}

	// Advance past the original deadline: the lazily linked entry must be
	// skipped, not fired.
	turnAt(d, clk, 8)
	if got := d.fired.Load(); got != 0 {
		t.Fatalf("fired count = %d after cancelled timeout, want 0", got)
	}
}

func TestDriver_CancelIsIdempotent(t *testing.T) {
	d, clk := testDriver(t, Config{WheelSize: 8})
	h := d.Schedule(5 * time.Millisecond)
	turnAt(d, clk, 0)

	if err := h.Cancel(); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if err := h.Cancel(); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	turnAt(d, clk, 1)
	requireOutcome(t, h, api.OutcomeCancelled)

	// Cancel after completion is a pure no-op.
	if err := h.Cancel(); err != nil {
		t.Fatalf("post-completion cancel: %v", err)
	}
	if got := d.cancelled.Load(); got != 1 {
		t.Fatalf("cancelled count = %d, want 1", got)
	}
}

func TestDriver_ResetYieldsSingleFireAtNewDeadline(t *testing.T) {
	d, clk := testDriver(t, Config{WheelSize: 8})
	h := d.Schedule(3 * time.Millisecond)
	turnAt(d, clk, 0)

	if err := h.Reset(7 * time.Millisecond); err != nil {
		t.Fatalf("reset: %v", err)
	}
	tok := h.Token()

	turnAt(d, clk, 3)
	requireOutcome(t, h, api.OutcomePending) // original deadline must not fire

	turnAt(d, clk, 6)
	requireOutcome(t, h, api.OutcomePending)

	turnAt(d, clk, 7)
	requireOutcome(t, h, api.OutcomeFired)
	if got := d.fired.Load(); got != 1 {
		t.Fatalf("fired count = %d, want exactly 1", got)
	}
	if h.Token() != tok {
		t.Fatal("reset changed token identity")
	}
}

func TestDriver_StaleCancelDoesNotTouchReusedSlot(t *testing.T) {
	// Defer resumes so a fired handle stays pending from the caller's view
	// while its arena slot is already recycled.
	var deferred []func()
	d, clk := testDriver(t, Config{WheelSize: 8, MaxTimers: 1})
	d.resume = func(fn func()) { deferred = append(deferred, fn) }

	h1 := d.Schedule(1 * time.Millisecond)
	turnAt(d, clk, 0)
	turnAt(d, clk, 1) // fires h1; completion deferred; slot freed

	h2 := d.Schedule(5 * time.Millisecond)
	turnAt(d, clk, 2) // h2 reuses index 0 under a new generation

	if h1.Token().Index() != h2.Token().Index() {
		t.Fatal("expected arena index reuse")
	}
	if h1.Token() == h2.Token() {
		t.Fatal("expected a fresh generation on reuse")
	}

	// Cancel through the stale handle: must be a no-op for h2.
	if err := h1.Cancel(); err != nil {
		t.Fatalf("stale cancel: %v", err)
	}
	turnAt(d, clk, 3)
	if got := d.cancelled.Load(); got != 0 {
		t.Fatalf("stale cancel was honored, cancelled = %d", got)
	}

	for _, fn := range deferred {
		fn()
	}
	deferred = nil
	requireOutcome(t, h1, api.OutcomeFired)

	d.resume = func(fn func()) { fn() }
	turnAt(d, clk, 7)
	requireOutcome(t, h2, api.OutcomeFired)
}

func TestDriver_QueueFullRejectsImmediately(t *testing.T) {
	d, _ := testDriver(t, Config{WheelSize: 8, QueueCapacity: 2})

	a := d.Schedule(time.Millisecond)
	b := d.Schedule(time.Millisecond)
	c := d.Schedule(time.Millisecond)

	requireOutcome(t, a, api.OutcomePending)
	requireOutcome(t, b, api.OutcomePending)
	requireOutcome(t, c, api.OutcomeRejected)
	if !errors.Is(c.Err(), api.ErrQueueFull) {
		t.Fatalf("Err = %v, want ErrQueueFull", c.Err())
	}
	select {
	case <-c.Done():
	default:
		t.Fatal("rejected handle must complete immediately")
	}
}

func TestDriver_ArenaExhaustionCompletesHandle(t *testing.T) {
	d, clk := testDriver(t, Config{WheelSize: 8, MaxTimers: 1})
	a := d.Schedule(5 * time.Millisecond)
	b := d.Schedule(5 * time.Millisecond)
	turnAt(d, clk, 0)

	requireOutcome(t, a, api.OutcomePending)
	requireOutcome(t, b, api.OutcomeExhausted)
	if !errors.Is(b.Err(), api.ErrNoCapacity) {
		t.Fatalf("Err = %v, want ErrNoCapacity", b.Err())
	}
}

func TestDriver_ElapsedDeadlineFiresNextTick(t *testing.T) {
	d, clk := testDriver(t, Config{WheelSize: 8})
	h := d.Schedule(0)
	turnAt(d, clk, 0)
	requireOutcome(t, h, api.OutcomePending)
	turnAt(d, clk, 1)
	requireOutcome(t, h, api.OutcomeFired)
}

func TestDriver_ShutdownCancelsScheduled(t *testing.T) {
	d, clk := testDriver(t, Config{WheelSize: 8})
	placed := d.Schedule(50 * time.Millisecond)
	turnAt(d, clk, 0)
	queued := d.Schedule(50 * time.Millisecond) // still in the op ring

	d.shutdown()

	requireOutcome(t, placed, api.OutcomeShutdown)
	requireOutcome(t, queued, api.OutcomeShutdown)
	if !errors.Is(placed.Err(), api.ErrShutdown) {
		t.Fatalf("Err = %v, want ErrShutdown", placed.Err())
	}

	// Scheduling after shutdown completes immediately.
	late := d.Schedule(time.Millisecond)
	requireOutcome(t, late, api.OutcomeShutdown)
}

// Producers racing a concurrent shutdown must never end up with a handle
// stuck pending: a register published after the final drain is completed
// by the producer itself.
func TestDriver_ScheduleDuringShutdownNeverLeavesPending(t *testing.T) {
	for iter := 0; iter < 50; iter++ {
		d, clk := testDriver(t, Config{WheelSize: 8})

		var (
			mu      sync.Mutex
			handles []*Handle
			wg      sync.WaitGroup
		)
		start := make(chan struct{})
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := 0; i < 64; i++ {
					h := d.Schedule(time.Millisecond)
					mu.Lock()
					handles = append(handles, h)
					mu.Unlock()
				}
			}()
		}
		close(start)
		turnAt(d, clk, 1)
		d.shutdown()
		wg.Wait()

		for i, h := range handles {
			if h.Outcome() == api.OutcomePending {
				t.Fatalf("iter %d: handle %d still pending after shutdown", iter, i)
			}
		}
	}
}

// countingClock reports a frozen reading and counts how often it is read.
type countingClock struct{ reads atomic.Int64 }

func (c *countingClock) Now() int64 {
	c.reads.Add(1)
	return 0
}

func TestDriver_RunReadsClockOncePerPass(t *testing.T) {
	clk := &countingClock{}
	d := NewDriver(Config{TickDuration: 10 * time.Millisecond, WheelSize: 8, Clock: clk})
	go d.Run()
	time.Sleep(105 * time.Millisecond)
	d.Stop()

	// One read at construction plus one per pass; the frozen clock keeps
	// every pass sleeping a full tick, so ~10 passes elapsed. Two reads per
	// pass would land near 22.
	if reads := clk.reads.Load(); reads > 16 {
		t.Fatalf("clock read %d times over ~10 driver passes", reads)
	}
}

func TestDriver_CatchUpIsBounded(t *testing.T) {
	d, clk := testDriver(t, Config{WheelSize: 8, MaxCatchUp: 4})
	h := d.Schedule(10 * time.Millisecond)
	turnAt(d, clk, 0)

	// The driver wakes 100 ticks late: it advances at most 4 per pass.
	turnAt(d, clk, 100)
	if got := d.wheel.CurrentTick(); got != 4 {
		t.Fatalf("current tick = %d after bounded catch-up, want 4", got)
	}
	requireOutcome(t, h, api.OutcomePending)

	for i := 0; i < 3; i++ {
		turnAt(d, clk, 100)
	}
	if got := d.wheel.CurrentTick(); got != 16 {
		t.Fatalf("current tick = %d, want 16", got)
	}
	requireOutcome(t, h, api.OutcomeFired)
}

func TestDriver_WaitContext(t *testing.T) {
	d, clk := testDriver(t, Config{WheelSize: 8})
	h := d.Schedule(2 * time.Millisecond)
	turnAt(d, clk, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	go func() {
		turnAt(d, clk, 2)
	}()
	out, err := h.Wait(ctx)
	if err != nil || out != api.OutcomeFired {
		t.Fatalf("Wait = (%v, %v), want (fired, nil)", out, err)
	}
}

func TestDriver_RecycleReusesHandles(t *testing.T) {
	d, clk := testDriver(t, Config{WheelSize: 8})
	h := d.Schedule(time.Millisecond)
	turnAt(d, clk, 0)
	turnAt(d, clk, 1)
	requireOutcome(t, h, api.OutcomeFired)

	h.Recycle()
	h2 := d.Schedule(time.Millisecond)
	requireOutcome(t, h2, api.OutcomePending)
	select {
	case <-h2.Done():
		t.Fatal("recycled handle carried a closed done channel")
	default:
	}
	turnAt(d, clk, 2)
	requireOutcome(t, h2, api.OutcomeFired)
}
