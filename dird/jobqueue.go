// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package dird

import (
	"sync"
	"sync/atomic"
	"time"
)

// JobQueue owns the three queues, the worker pool, and the dispatch loop.
// Construct one with New; it starts with zero workers and refills the pool
// on demand as records are submitted.
type JobQueue struct {
	logger  Logger
	engine  Engine
	arbiter *ResourceArbiter
	resched *Rescheduler
	history historySink

	maxWorkers int
	jobIDSeq   int64

	mu         sync.Mutex
	work       *broadcastSignal
	quit       bool
	numWorkers int
	waiting    waitingQueue
	ready      readyQueue
	running    runningSet

	// Testing hooks. All default to no-ops; tests replace them to
	// synchronize on specific dispatch events instead of sleeping past
	// race windows.
	testWorkerSpawned    func()
	testDispatchTick     func()
	testPromotionPass    func()
	testAcquireFailed    func(r *JobRecord, status JobStatus)
	testSchedWaiterFired func()
	testShutdownComplete func()
	testEngineInvoked    func(r *JobRecord)
	testRecordDestroyed  func(r *JobRecord)
}

// historySink receives terminal records for best-effort status-reporting
// indexing; see the history package. nil disables it.
type historySink interface {
	Record(r *JobRecord)
}

// Option configures a JobQueue at construction time.
type Option func(*JobQueue)

// WithLogger overrides the default stdlib-backed Logger.
func WithLogger(logger Logger) Option {
	return func(q *JobQueue) { q.logger = logger }
}

// WithResourceArbiter supplies a ResourceArbiter to share across multiple
// JobQueues in the same process. If omitted, a fresh one is created.
func WithResourceArbiter(a *ResourceArbiter) Option {
	return func(q *JobQueue) { q.arbiter = a }
}

// WithDuplicatePolicy overrides the Rescheduler's duplicate-job policy.
func WithDuplicatePolicy(p DuplicateJobPolicy) Option {
	return func(q *JobQueue) {
		if q.resched != nil && p != nil {
			q.resched.DuplicatePolicy = p
		}
	}
}

// WithHistory attaches a history sink (see the history package) that
// receives every record as it reaches a terminal status. It is fed
// best-effort: failures are logged, never fatal, and never block dispatch.
func WithHistory(h historySink) Option {
	return func(q *JobQueue) { q.history = h }
}

// New constructs a JobQueue with zero workers and empty queues. engine is
// the opaque callable invoked once per dispatched record.
func New(maxWorkers int, engine Engine, opts ...Option) *JobQueue {
	q := &JobQueue{
		logger:     stdLogger{},
		engine:     engine,
		maxWorkers: maxWorkers,
		work:       newBroadcastSignal(),
		jobIDSeq:   time.Now().UnixNano(),

		testWorkerSpawned:    func() {},
		testDispatchTick:     func() {},
		testPromotionPass:    func() {},
		testAcquireFailed:    func(*JobRecord, JobStatus) {},
		testSchedWaiterFired: func() {},
		testShutdownComplete: func() {},
		testEngineInvoked:    func(*JobRecord) {},
		testRecordDestroyed:  func(*JobRecord) {},
	}
	q.resched = NewRescheduler(q.nextJobID)
	for _, opt := range opts {
		opt(q)
	}
	if q.arbiter == nil {
		q.arbiter = NewResourceArbiter()
	}
	return q
}

func (q *JobQueue) nextJobID() int64 {
	return atomic.AddInt64(&q.jobIDSeq, 1)
}

// Submit adds a record to the queue. If its ScheduledTime lies in the
// future and it has not been cancelled, a SchedWaiter holds it until then;
// otherwise it is placed on the waiting queue, priority-sorted. A record
// already cancelled when it arrives goes straight to the front of the
// ready queue, so it terminates quickly without acquiring resources.
func (q *JobQueue) Submit(r *JobRecord) Status {
	q.mu.Lock()
	if q.quit {
		q.mu.Unlock()
		return Invalid
	}

	if r.InitialScheduledTime.IsZero() {
		r.InitialScheduledTime = r.ScheduledTime
	}

	if r.ScheduledTime.After(time.Now()) && !r.IsCancelled() {
		q.mu.Unlock()
		r.hold()
		status := q.startSchedWaiter(r)
		if status != Ok {
			q.dropReference(r)
		}
		return status
	}

	r.hold()
	if r.IsCancelled() {
		r.setJobStatus(Canceled)
		q.ready.pushFront(r)
	} else {
		q.waiting.insert(r)
	}
	q.startServerLocked()
	q.work.broadcast()
	q.mu.Unlock()
	return Ok
}

// submitNow is the package-internal re-entry point SchedWaiter and the
// Rescheduler use; it is simply Submit, named separately only to document
// the call sites.
func (q *JobQueue) submitNow(r *JobRecord) Status { return q.Submit(r) }

// Cancel moves a waiting record to the head of the ready queue. If the
// record is not currently in the waiting queue, Cancel returns NotFound.
// Runtime cancellation of an already-running job is the engine's
// responsibility, signalled cooperatively via JobRecord.CancelRequested,
// which Cancel still sets regardless of outcome.
func (q *JobQueue) Cancel(r *JobRecord) Status {
	q.mu.Lock()
	if q.quit {
		q.mu.Unlock()
		return Invalid
	}
	found := q.waiting.remove(r)
	if found {
		r.requestCancel()
		r.setJobStatus(Canceled)
		q.ready.pushFront(r)
		q.startServerLocked()
		q.work.broadcast()
	}
	q.mu.Unlock()

	if found {
		return Ok
	}
	r.requestCancel()
	return NotFound
}

// Shutdown stops the queue: no further Submit/Cancel succeeds, idle
// workers wake and self-terminate, and Shutdown blocks until the worker
// pool has fully drained. Records still waiting or ready when the last
// worker exits are cancelled and released, so the queues are empty when
// Shutdown returns.
func (q *JobQueue) Shutdown() Status {
	q.mu.Lock()
	if q.quit {
		q.mu.Unlock()
		return Invalid
	}
	q.quit = true
	q.work.broadcast()
	for q.numWorkers > 0 {
		ch := q.work.wait()
		q.mu.Unlock()
		<-ch
		q.mu.Lock()
	}
	for q.waiting.len() > 0 {
		r := q.waiting.records[0]
		q.waiting.remove(r)
		q.discardLocked(r)
	}
	for {
		r := q.ready.popFront()
		if r == nil {
			break
		}
		q.discardLocked(r)
	}
	q.mu.Unlock()
	q.testShutdownComplete()
	return Ok
}

// discardLocked cancels and releases a record stranded in a queue at
// shutdown. Must be called with q.mu held.
func (q *JobQueue) discardLocked(r *JobRecord) {
	r.requestCancel()
	r.setJobStatus(Canceled)
	q.recordHistory(r)
	q.dropReference(r)
}

// Snapshot is a point-in-time view of the three queues, for status
// reporting.
type Snapshot struct {
	Waiting []*JobRecord
	Ready   []*JobRecord
	Running []*JobRecord
}

// Snapshot returns the current contents of the three queues.
func (q *JobQueue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Snapshot{
		Waiting: make([]*JobRecord, len(q.waiting.records)),
		Ready:   make([]*JobRecord, len(q.ready.records)),
		Running: make([]*JobRecord, len(q.running.records)),
	}
	copy(s.Waiting, q.waiting.records)
	copy(s.Ready, q.ready.records)
	copy(s.Running, q.running.records)
	return s
}

// dropReference decrements r's UseCount and reports destruction through
// the testing hook when it reaches zero.
func (q *JobQueue) dropReference(r *JobRecord) {
	if r.release() {
		q.testRecordDestroyed(r)
	}
}
