// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package dird

import "time"

// rescheduleOutcome is the result of consulting the Rescheduler after an
// engine invocation returns.
type rescheduleOutcome int

const (
	// outcomeTerminate means the record is done: the dispatch loop should
	// decrement UseCount and let it be destroyed if it reaches zero.
	outcomeTerminate rescheduleOutcome = iota
	// outcomeRequeued means the same record has been resubmitted under its
	// existing JobId. The dispatch loop must not loop on it; it is handled
	// like outcomeTerminate except that the reference drop has already
	// happened inside the reuse branch.
	outcomeRequeued
)

// DuplicateJobPolicy decides whether a reschedule attempt should be
// rejected because an equivalent job is already queued or running. The
// default policy always allows the reschedule.
type DuplicateJobPolicy func(*JobRecord) bool

func allowAllDuplicates(*JobRecord) bool { return true }

// Rescheduler decides whether a completed job re-enters the queue, and
// how. It is invoked under the queue mutex but may release it around
// nested submission, matching the dispatch loop's contract.
type Rescheduler struct {
	// DuplicatePolicy rejects a reschedule attempt that would duplicate
	// already-active work.
	DuplicatePolicy DuplicateJobPolicy

	// NewJobId allocates the JobId for a freshly spawned record (the
	// BytesWritten > 0 path). It must be safe to call concurrently.
	NewJobId func() int64

	// now is overridable in tests.
	now func() time.Time
}

// NewRescheduler constructs a Rescheduler with the default allow-all
// duplicate policy.
func NewRescheduler(newJobId func() int64) *Rescheduler {
	return &Rescheduler{
		DuplicatePolicy: allowAllDuplicates,
		NewJobId:        newJobId,
		now:             time.Now,
	}
}

// eligible reports whether the record's job definition wants it retried:
// either an incomplete non-base backup with RescheduleIncompleteJobs set,
// or a failed (but not cancelled) backup with RescheduleOnError set, in
// both cases only while reschedule attempts remain.
func eligible(def *JobResource, r *JobRecord) bool {
	if def == nil {
		return false
	}
	moreAttemptsLeft := def.RescheduleTimes == 0 || r.RescheduleCount < def.RescheduleTimes
	if !moreAttemptsLeft {
		return false
	}
	incomplete := def.RescheduleIncompleteJobs && r.IsIncomplete() &&
		r.Type == TypeBackup && r.Level != LevelBase
	onError := def.RescheduleOnError && !r.IsTerminatedOk() &&
		r.Status() != Canceled && r.Type == TypeBackup
	return incomplete || onError
}

// handle is called by the dispatch loop after the engine returns, with the
// queue mutex held. q is used only to release/reacquire the mutex around
// nested Submit calls and to allocate JobIds; it does not touch q's queues
// directly, Submit does that itself.
func (rs *Rescheduler) handle(q *JobQueue, r *JobRecord) rescheduleOutcome {
	def := r.Job
	if !eligible(def, r) {
		return outcomeTerminate
	}

	r.RescheduleCount++
	r.ScheduledTime = rs.now().Add(def.RescheduleInterval)
	q.logger.Printf("jobqueue: job %d: rescheduling (attempt %d/%d) for %s",
		r.JobId, r.RescheduleCount, def.RescheduleTimes, r.ScheduledTime)

	if !rs.DuplicatePolicy(r) {
		q.logger.Printf("jobqueue: job %d: reschedule rejected by duplicate-job policy", r.JobId)
		return outcomeTerminate
	}

	// Only clear the per-run fields once the reschedule is actually going
	// ahead: resetRunState replaces r's terminated channel, so doing this
	// before the duplicate check could leave a rejected record stuck in a
	// non-terminal Created status with a channel nobody will ever close,
	// hanging any caller blocked in r.Wait().
	prevStatus := r.Status()
	r.resetRunState()

	if r.BytesWritten == 0 {
		// No output was produced; reuse the same record and JobId.
		q.mu.Unlock()
		q.Submit(r)
		q.mu.Lock()
		q.dropReference(r)
		return outcomeRequeued
	}

	// Output was written, so the old record's run must stand in the books;
	// spawn a fresh record with a new JobId and carry over the pools,
	// storage lists, level, messages binding, spool flag, reschedule count
	// and scheduled times.
	newID := int64(0)
	if rs.NewJobId != nil {
		newID = rs.NewJobId()
	}
	spawned := NewDirectorJcr(newID, def)
	spawned.SetJcrDefaults(def)
	copyRescheduledFields(spawned, r)
	// The old record does not run again: restore its terminal status so it
	// is indexed and its waiters wake.
	r.setJobStatus(prevStatus)

	q.mu.Unlock()
	q.Submit(spawned)
	q.dropReference(spawned)
	q.mu.Lock()

	return outcomeTerminate
}

// copyRescheduledFields copies the carried-over subset of fields from the
// old record to the freshly spawned one.
func copyRescheduledFields(dst, src *JobRecord) {
	dst.Pools = src.Pools
	dst.ReadStorage = src.ReadStorage
	dst.WriteStorage = src.WriteStorage
	dst.RescheduleCount = src.RescheduleCount
	dst.ScheduledTime = src.ScheduledTime
	dst.InitialScheduledTime = src.InitialScheduledTime
	dst.Level = src.Level
	dst.Messages = src.Messages
	dst.Spool = src.Spool
	dst.Client = src.Client
	dst.MigrateJobId = src.MigrateJobId
	dst.setJobStatus(src.Status())
}
