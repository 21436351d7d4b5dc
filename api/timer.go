// Package api
// Author: momentics <momentics@gmail.com>
//
// Timeout scheduling contracts: tokens, completion outcomes, and the
// resume-side executor hook.

package api

// Token is an opaque (arena index, generation) pair identifying a timer
// entry. Generation invalidates stale references after slot reuse: a token
// whose generation no longer matches the arena slot refers to a timer that
// is already gone, and any operation on it is a silent no-op.
type Token uint64

// NoToken is the zero Token; generations start at 1 so it never matches.
const NoToken Token = 0

// MakeToken packs an arena index and a generation counter.
func MakeToken(index, generation uint32) Token {
	return Token(uint64(index)<<32 | uint64(generation))
}

// Index returns the arena slot index.
func (t Token) Index() uint32 { return uint32(t >> 32) }

// Generation returns the generation counter the token was minted with.
func (t Token) Generation() uint32 { return uint32(t) }

// Outcome is the terminal state of a timeout handle.
type Outcome uint8

const (
	// OutcomePending means the handle has not completed yet.
	OutcomePending Outcome = iota
	// OutcomeFired means the deadline elapsed and the waiter was resumed.
	OutcomeFired
	// OutcomeCancelled means a cancel op reached the driver before firing.
	OutcomeCancelled
	// OutcomeShutdown means the driver was torn down while still scheduled.
	OutcomeShutdown
	// OutcomeRejected means the register op could not be enqueued.
	OutcomeRejected
	// OutcomeExhausted means the entry arena was at capacity at apply time.
	OutcomeExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeFired:
		return "fired"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeShutdown:
		return "shutdown"
	case OutcomeRejected:
		return "rejected"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Resumer hands fired continuations to the surrounding task executor.
// It is invoked from the driver goroutine and must not block.
type Resumer func(fn func())
