// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package dird

import "github.com/cenkalti/backoff"

// startServerLocked spawns a new detached worker iff the current count is
// below maxWorkers. Called with q.mu held, on every Submit, Cancel, and
// whenever a worker hands off a non-empty ready queue, so at least one
// worker observes any new work.
func (q *JobQueue) startServerLocked() {
	if q.quit || q.numWorkers >= q.maxWorkers {
		return
	}
	err := backoff.Retry(func() error {
		return q.spawn(q.workerLoop)
	}, shortBackoff())
	if err != nil {
		// Transient: the record(s) stay in their queue and promotion is
		// retried on the next dispatch tick by whichever worker is
		// already running.
		q.logger.Printf("jobqueue: worker spawn failed after retries: %v", err)
		return
	}
	q.numWorkers++
	q.testWorkerSpawned()
}

// spawn launches fn as a detached goroutine. It always succeeds in
// practice, unlike a native thread spawn, but keeping it behind an
// error-returning seam lets startServerLocked and startSchedWaiter share
// the same bounded-retry path and gives an embedding daemon a place to
// substitute a real bounded worker pool that can fail.
func (q *JobQueue) spawn(fn func()) error {
	go fn()
	return nil
}
