// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import "time"

// windupClock works like a wind-up clock: each tick must be programmed by calling Reschedule. At most one tick is
// pending at a time.
//
// The channel C is never closed to prevent reading the closing as an erroneous tick. A windupClock is owned by a
// single goroutine, which also reads C.
type windupClock struct {
	timer   *time.Timer
	C       <-chan time.Time
	stopped bool
}

func newWindupClock() *windupClock {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	return &windupClock{
		timer: timer,
		C:     timer.C,
	}
}

// Reschedule the next tick, replacing a pending one.
func (clock *windupClock) Reschedule(delay time.Duration) {
	if clock.stopped {
		return
	}

	clock.cancel()
	clock.timer.Reset(delay)
}

// cancel a pending tick.
func (clock *windupClock) cancel() {
	if !clock.timer.Stop() {
		select {
		case <-clock.timer.C:
		default:
		}
	}
}

// Stop this clock. Further calls to Reschedule are ignored.
func (clock *windupClock) Stop() {
	clock.stopped = true
	clock.cancel()
}
