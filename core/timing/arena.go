// File: core/timing/arena.go
// Package timing implements the hashed timing wheel data structures.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Arena is fixed-capacity storage for timer entries addressed by
// (index, generation). Entries double as nodes of the intrusive linked
// lists threaded through the wheel slots. The arena owns no threading
// logic; it is mutated exclusively by the wheel driver.

package timing

import "github.com/momentics/hioload-timer/api"

// State is the lifecycle state of an arena entry.
type State uint8

const (
	// StateFree marks an unallocated arena slot.
	StateFree State = iota
	// StateScheduled marks an entry linked into a wheel slot.
	StateScheduled
	// StateFired marks an entry whose deadline elapsed.
	StateFired
	// StateCancelled marks an entry awaiting lazy reclamation.
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateScheduled:
		return "scheduled"
	case StateFired:
		return "fired"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// nilIdx terminates intrusive lists.
const nilIdx = int32(-1)

// Entry is a single timer record. Waiter is the opaque continuation;
// ownership moves to whoever detaches it (the driver on fire/cancel).
type Entry struct {
	DeadlineTick uint64
	Rounds       uint32
	Generation   uint32
	State        State
	Waiter       any

	prev, next int32
	slot       int32
}

// Arena is a fixed-capacity pool of entries with a free-list. Slot reuse
// bumps the generation counter, permanently invalidating old tokens even
// when the index is recycled.
type Arena struct {
	entries []Entry
	free    []int32
}

// NewArena creates an arena holding up to capacity entries.
func NewArena(capacity int) *Arena {
	if capacity < 1 {
		capacity = 1
	}
	a := &Arena{
		entries: make([]Entry, capacity),
		free:    make([]int32, 0, capacity),
	}
	for i := capacity - 1; i >= 0; i-- {
		a.entries[i].prev = nilIdx
		a.entries[i].next = nilIdx
		a.entries[i].slot = nilIdx
		a.free = append(a.free, int32(i))
	}
	return a
}

// Cap returns the fixed arena capacity.
func (a *Arena) Cap() int { return len(a.entries) }

// Available returns the number of unallocated entries.
func (a *Arena) Available() int { return len(a.free) }

// Alloc reserves an entry, bumping its generation. Returns false when the
// arena is exhausted. Generations start at 1 so a zero token never matches.
func (a *Arena) Alloc() (int32, bool) {
	if len(a.free) == 0 {
		return nilIdx, false
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	e := &a.entries[idx]
	e.Generation++
	e.State = StateScheduled
	e.Rounds = 0
	e.DeadlineTick = 0
	e.prev, e.next, e.slot = nilIdx, nilIdx, nilIdx
	return idx, true
}

// Release returns an entry to the free-list. The waiter reference is
// dropped; the generation is left as-is until the next Alloc bumps it.
func (a *Arena) Release(idx int32) {
	e := &a.entries[idx]
	e.State = StateFree
	e.Waiter = nil
	e.prev, e.next, e.slot = nilIdx, nilIdx, nilIdx
	a.free = append(a.free, idx)
}

// At returns the entry at idx without validation.
func (a *Arena) At(idx int32) *Entry {
	return &a.entries[idx]
}

// Token mints the current token for an allocated entry.
func (a *Arena) Token(idx int32) api.Token {
	return api.MakeToken(uint32(idx), a.entries[idx].Generation)
}

// Lookup resolves a token against the arena. A stale token (generation
// mismatch or freed slot) yields nil: the timer it referred to is gone.
func (a *Arena) Lookup(tok api.Token) *Entry {
	idx := int64(tok.Index())
	if idx >= int64(len(a.entries)) {
		return nil
	}
	e := &a.entries[idx]
	if e.State == StateFree || e.Generation != tok.Generation() {
		return nil
	}
	return e
}

// Each visits every allocated entry. Used for shutdown sweeps.
func (a *Arena) Each(fn func(idx int32, e *Entry)) {
	for i := range a.entries {
		if a.entries[i].State != StateFree {
			fn(int32(i), &a.entries[i])
		}
	}
}
