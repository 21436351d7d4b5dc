// File: core/timing/wheel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Hashed timing wheel with deferred rounds counting, after Varghese and
// Lauck. Each slot holds a FIFO intrusive list of arena entries; a deadline
// D ticks out is placed at (cursor+D) mod N carrying (D-1)/N remaining
// revolutions. Single-level by design: a hierarchical wheel would change
// the firing-order and memory-movement contract.

package timing

// Wheel places, advances and fires arena entries. Owned exclusively by the
// driver goroutine; cursor and currentTick only ever move forward.
type Wheel struct {
	arena *Arena
	slots []slot
	mask  uint64

	cursor      uint64
	currentTick uint64
	live        int
}

type slot struct {
	head, tail int32
}

// NewWheel creates a wheel over the given arena. numSlots is rounded up to
// a power of two so tick-to-slot mapping is a mask.
func NewWheel(arena *Arena, numSlots int) *Wheel {
	if numSlots < 2 {
		numSlots = 2
	}
	size := uint64(1)
	for size < uint64(numSlots) {
		size <<= 1
	}
	w := &Wheel{
		arena: arena,
		slots: make([]slot, size),
		mask:  size - 1,
	}
	for i := range w.slots {
		w.slots[i].head = nilIdx
		w.slots[i].tail = nilIdx
	}
	return w
}

// NumSlots returns the slot count N.
func (w *Wheel) NumSlots() int { return len(w.slots) }

// CurrentTick returns the absolute tick the wheel has advanced to.
func (w *Wheel) CurrentTick() uint64 { return w.currentTick }

// Cursor returns the current slot position.
func (w *Wheel) Cursor() uint64 { return w.cursor }

// Live returns the number of entries currently linked into slots.
func (w *Wheel) Live() int { return w.live }

// Place links an allocated entry for the given absolute deadline tick.
// A deadline at or before the current tick is never lost: it is placed one
// slot ahead with zero rounds and fires on the very next advance.
func (w *Wheel) Place(idx int32, deadlineTick uint64) {
	e := w.arena.At(idx)
	e.DeadlineTick = deadlineTick

	var slotIdx uint64
	if deadlineTick <= w.currentTick {
		slotIdx = (w.cursor + 1) & w.mask
		e.Rounds = 0
	} else {
		d := deadlineTick - w.currentTick
		slotIdx = (w.cursor + d) & w.mask
		e.Rounds = uint32((d - 1) / uint64(len(w.slots)))
	}
	w.link(slotIdx, idx)
}

// link appends at the tail, preserving FIFO firing order within a slot.
func (w *Wheel) link(slotIdx uint64, idx int32) {
	s := &w.slots[slotIdx]
	e := w.arena.At(idx)
	e.slot = int32(slotIdx)
	e.prev = s.tail
	e.next = nilIdx
	if s.tail != nilIdx {
		w.arena.At(s.tail).next = idx
	} else {
		s.head = idx
	}
	s.tail = idx
	w.live++
}

// Unlink detaches an entry from its slot list in O(1).
func (w *Wheel) Unlink(idx int32) {
	e := w.arena.At(idx)
	if e.slot == nilIdx {
		return
	}
	s := &w.slots[e.slot]
	if e.prev != nilIdx {
		w.arena.At(e.prev).next = e.next
	} else {
		s.head = e.next
	}
	if e.next != nilIdx {
		w.arena.At(e.next).prev = e.prev
	} else {
		s.tail = e.prev
	}
	e.prev, e.next, e.slot = nilIdx, nilIdx, nilIdx
	w.live--
}

// Advance moves the cursor one slot forward and processes the slot it
// lands on, in FIFO insertion order: cancelled entries are reclaimed,
// entries with zero rounds remaining fire (their waiter is handed to the
// fire callback and the entry is released), everything else has its
// rounds count decremented and stays for a later revolution.
func (w *Wheel) Advance(fire func(waiter any)) {
	w.cursor = (w.cursor + 1) & w.mask
	w.currentTick++

	idx := w.slots[w.cursor].head
	for idx != nilIdx {
		e := w.arena.At(idx)
		next := e.next
		switch {
		case e.State == StateCancelled:
			w.Unlink(idx)
			w.arena.Release(idx)
		case e.Rounds == 0:
			w.Unlink(idx)
			e.State = StateFired
			waiter := e.Waiter
			w.arena.Release(idx)
			if waiter != nil {
				fire(waiter)
			}
		default:
			e.Rounds--
		}
		idx = next
	}
}
