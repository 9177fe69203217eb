// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package dird

import (
	"time"

	"github.com/cenkalti/backoff"
)

// schedSliceMax is the longest a SchedWaiter sleeps before re-checking
// cancellation and the scheduled time. A var, not a const, so tests can
// shrink it instead of waiting out real 30-second slices.
var schedSliceMax = 30 * time.Second

// schedWaiter delays a record until its ScheduledTime, then resubmits it.
// Cancellation is cooperative: the record's cancel flag is observed
// between sleep slices rather than forcibly interrupting the sleep.
type schedWaiter struct {
	q *JobQueue
	r *JobRecord
}

// startSchedWaiter spawns the waiter goroutine. Goroutine creation does
// not fail in Go, but the spawn path goes through the same bounded
// backoff.Retry used for worker spawns, keeping the two symmetric and
// giving a real retry budget to whatever an embedding daemon substitutes
// for goroutine creation (e.g. a bounded goroutine pool that can
// legitimately be full). On exhausted retries the caller sees
// ThreadSpawnFailed.
func (q *JobQueue) startSchedWaiter(r *JobRecord) Status {
	w := &schedWaiter{q: q, r: r}
	err := backoff.Retry(func() error {
		return q.spawn(w.run)
	}, shortBackoff())
	if err != nil {
		return ThreadSpawnFailed
	}
	return Ok
}

func shortBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 1 * time.Second
	return b
}

func (w *schedWaiter) run() {
	r := w.r
	r.setJobStatus(WaitStartTime)

	for {
		if r.IsCancelled() {
			break
		}
		remaining := time.Until(r.ScheduledTime)
		if remaining <= 0 {
			break
		}
		sleep := remaining
		if sleep > schedSliceMax {
			sleep = schedSliceMax
		}
		time.Sleep(sleep)
	}

	w.q.testSchedWaiterFired()

	// Resubmit. Submit takes the synchronous path now that ScheduledTime
	// has arrived, or, if the record was cancelled while we slept, places
	// it at the ready front so it terminates without running.
	w.q.submitNow(r)

	// Drop the SchedWaiter's own reference, acquired when Submit first
	// handed the record off to us.
	w.q.dropReference(r)
}
