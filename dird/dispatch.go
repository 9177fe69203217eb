// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package dird

import "time"

// idleSleep is the release-mutex/sleep/reacquire interval used when the
// queues hold work the arbiter cannot yet satisfy. Without it a worker
// blocked on resources held elsewhere would spin the promotion pass
// continuously.
const idleSleep = 2 * time.Second

// idleTimeout is how long a worker waits on the work signal before
// deciding it is idle and self-terminating. The pool refills on the next
// submission.
const idleTimeout = 4 * time.Second

// workerLoop is the per-worker dispatch loop. Each iteration runs under
// q.mu except while invoking the engine or sleeping.
func (q *JobQueue) workerLoop() {
	for {
		q.mu.Lock()
		q.testDispatchTick()

		// Pop ready work, if any.
		if q.ready.len() > 0 && !q.quit {
			r := q.ready.popFront()
			if q.ready.len() > 0 {
				// Ensure another worker exists to pick up the rest.
				q.startServerLocked()
			}

			// A record already terminal here was cancelled before dispatch
			// and never acquired resources; there is nothing to run.
			if r.Status().IsTerminal() {
				q.recordHistory(r)
				q.dropReference(r)
				q.mu.Unlock()
				continue
			}

			q.running.add(r)
			r.markKillable(true)
			r.newRunToken()
			r.setJobStatus(Running)
			q.mu.Unlock()

			q.runOne(r)

			q.mu.Lock()
			q.maybePromote()
			q.mu.Unlock()
			continue
		}

		// No ready work to run this tick, but waiting records might now be
		// eligible, e.g. a sibling worker just released counters.
		q.maybePromote()

		// Records just promoted are run at the top of the loop, without
		// the idle sleep below.
		if q.ready.len() > 0 && !q.quit {
			q.mu.Unlock()
			continue
		}

		// Quitting: workers run nothing more, and records still in ready
		// are drained by Shutdown once the pool has exited.
		if q.quit {
			q.numWorkers--
			if q.numWorkers == 0 {
				q.work.broadcast()
			}
			q.mu.Unlock()
			return
		}

		anyWork := q.waiting.len() > 0 || q.ready.len() > 0
		q.mu.Unlock()

		if anyWork {
			// Nothing promotable right now but counters may free up
			// elsewhere; avoid a busy-wait.
			time.Sleep(idleSleep)
		}

		if q.waitForWork(idleTimeout) {
			continue
		}

		// Timed out with nothing to do. Idle decay.
		q.mu.Lock()
		if q.ready.len() > 0 || q.quit {
			// Work arrived (or we're shutting down) right as the timer
			// fired; don't decay, let the top of the loop handle it.
			q.mu.Unlock()
			continue
		}
		q.numWorkers--
		q.mu.Unlock()
		return
	}
}

// waitForWork blocks until the work signal fires or timeout elapses,
// reporting whether it was the signal (true) or the timeout (false). It
// returns true at once if the queue is already quitting or has ready work,
// so a signal broadcast while the worker slept is not missed.
func (q *JobQueue) waitForWork(timeout time.Duration) bool {
	q.mu.Lock()
	if q.quit || q.ready.len() > 0 {
		q.mu.Unlock()
		return true
	}
	ch := q.work.wait()
	q.mu.Unlock()
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// runOne invokes the engine and handles the post-run bookkeeping: release
// resources, consult the Rescheduler, and drop the queue's reference.
func (q *JobQueue) runOne(r *JobRecord) {
	q.testEngineInvoked(r)
	q.engine(r)

	q.mu.Lock()
	r.markKillable(false)
	q.running.remove(r)
	if r.AcquiredResourceLocks {
		q.arbiter.Release(r, q.logger)
	}

	outcome := q.resched.handle(q, r)

	if r.Status().IsTerminal() {
		q.recordHistory(r)
	}
	// outcomeRequeued already decremented UseCount itself, for the
	// reference handed back to the new queue insertion. Only the
	// plain-terminate outcome still owns the original pre-run reference
	// here.
	if outcome != outcomeRequeued {
		q.dropReference(r)
	}
	q.mu.Unlock()
}

// recordHistory best-effort indexes a terminal record for status
// reporting (see the history package). Failures are logged there, never
// fatal, and never propagate.
func (q *JobQueue) recordHistory(r *JobRecord) {
	if q.history == nil {
		return
	}
	q.history.Record(r)
}

// maybePromote runs the promotion pass if there is anything waiting and the
// queue is not shutting down. Must be called with q.mu held.
func (q *JobQueue) maybePromote() {
	if q.waiting.len() == 0 || q.quit {
		return
	}
	q.promotionPass()
	q.testPromotionPass()
}

// promotionPass determines the reference priority P and the allowMix flag
// from the running set (or, if nothing is running, from the head of the
// waiting queue), then walks waiting head-to-tail attempting to acquire
// resources for every record eligible under the priority barrier. Must be
// called with q.mu held.
func (q *JobQueue) promotionPass() {
	var refPriority int
	var allowMix bool
	if head := q.running.head(); head != nil {
		refPriority = head.Priority
		allowMix = q.running.allowMix()
	} else {
		refPriority = q.waiting.records[0].Priority
		allowMix = false
	}

	// Walk a snapshot of the waiting slice: promotions mutate q.waiting in
	// place, so indexing into the live slice while removing from it would
	// skip or repeat elements.
	records := append([]*JobRecord(nil), q.waiting.records...)
	for _, r := range records {
		eligible := r.Priority == refPriority ||
			(r.Priority > refPriority && allowMix && r.Job != nil && r.Job.AllowMixedPriority)

		if !eligible {
			if r.Priority < refPriority {
				// Priority barrier: a more urgent job waits for the
				// running set to drain rather than being scheduled
				// behind it.
				r.setJobStatus(WaitPriority)
				return
			}
			continue
		}

		status := q.arbiter.Acquire(r, q.logger)
		if status == Ready {
			q.waiting.remove(r)
			q.ready.pushBack(r)
			continue
		}

		q.testAcquireFailed(r, status)
		if !r.IsCancelled() {
			r.setJobStatus(status)
			continue
		}
		// Resource conflict on a cancelled record: promote it anyway, to
		// the ready front, so it terminates quickly.
		r.setJobStatus(Canceled)
		q.waiting.remove(r)
		q.ready.pushFront(r)
	}
}
