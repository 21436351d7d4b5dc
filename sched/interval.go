// File: sched/interval.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Interval is the recurring counterpart to a one-shot Schedule: each time
// the current timeout fires it re-arms a fresh one with the same period
// and notifies the Ticks channel.

package sched

import (
	"sync"
	"time"

	"github.com/momentics/hioload-timer/api"
)

// Interval notifies on Ticks every period until Stop is called or the
// driver shuts down. Notifications coalesce: a slow consumer sees at most
// one buffered tick, never a growing backlog.
type Interval struct {
	drv      *Driver
	period   time.Duration
	ticks    chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewInterval starts a recurring notification with the given period.
// The period counts from each firing, so it is a minimum spacing between
// ticks, not a fixed rate.
func (d *Driver) NewInterval(period time.Duration) (*Interval, error) {
	if period <= 0 {
		return nil, api.ErrInvalidArgument
	}
	iv := &Interval{
		drv:    d,
		period: period,
		ticks:  make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	go iv.run()
	return iv, nil
}

// Ticks returns the notification channel. It is closed when the interval
// ends, whether by Stop or by driver shutdown.
func (iv *Interval) Ticks() <-chan struct{} { return iv.ticks }

// Stop ends the recurrence and cancels the in-flight timeout. Idempotent.
func (iv *Interval) Stop() {
	iv.stopOnce.Do(func() { close(iv.stopCh) })
}

// run arms one timeout per period. Any outcome other than a firing means
// the driver cannot serve the recurrence anymore and the interval ends.
func (iv *Interval) run() {
	defer close(iv.ticks)
	for {
		h := iv.drv.Schedule(iv.period)
		select {
		case <-h.Done():
			fired := h.Outcome() == api.OutcomeFired
			h.Recycle()
			if !fired {
				return
			}
			select {
			case iv.ticks <- struct{}{}:
			default:
			}
		case <-iv.stopCh:
			h.Cancel()
			return
		}
	}
}
