// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package dird

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a JobRecord.
type JobStatus int

const (
	Created JobStatus = iota
	WaitStartTime
	WaitClientRes
	WaitStoreRes
	WaitJobRes
	WaitPriority
	Ready
	Running
	TerminatedOk
	ErrorTerminated
	Canceled
	Incomplete
)

func (s JobStatus) String() string {
	switch s {
	case Created:
		return "Created"
	case WaitStartTime:
		return "WaitStartTime"
	case WaitClientRes:
		return "WaitClientRes"
	case WaitStoreRes:
		return "WaitStoreRes"
	case WaitJobRes:
		return "WaitJobRes"
	case WaitPriority:
		return "WaitPriority"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case TerminatedOk:
		return "TerminatedOk"
	case ErrorTerminated:
		return "ErrorTerminated"
	case Canceled:
		return "Canceled"
	case Incomplete:
		return "Incomplete"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s is one of the four terminal states.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case TerminatedOk, ErrorTerminated, Canceled, Incomplete:
		return true
	default:
		return false
	}
}

// severity ranks statuses so setJobStatus can enforce monotonicity: once a
// record is in a more severe state, a less severe one must never overwrite
// it. Wait* and Ready/Running are all pre-terminal and freely overwritable
// in any order relative to each other; terminal states are maximally
// severe and, among themselves, Canceled/ErrorTerminated/Incomplete
// outrank TerminatedOk so a late cancellation signal is never masked by a
// success already in flight.
func (s JobStatus) severity() int {
	if s.IsTerminal() {
		if s == TerminatedOk {
			return 100
		}
		return 200
	}
	return 0
}

// JobRecord is the mutable per-job state container the queue schedules.
// Pointers to resources are non-owning: resource lifetime is guaranteed by
// the surrounding daemon to outlive any record referencing it.
type JobRecord struct {
	JobId int64

	Type     JobType
	Level    JobLevel
	Priority int

	ScheduledTime        time.Time
	InitialScheduledTime time.Time

	Client       *ClientResource
	Job          *JobResource
	ReadStorage  *StorageResource
	WriteStorage *StorageResource
	Pools        PoolSlots
	Messages     *MessagesResource

	// MigrateJobId is non-zero when this record is the data-moving half of
	// a migrate/copy/consolidate job pair; zero marks it a control job.
	MigrateJobId int64

	RescheduleCount int
	BytesWritten    int64

	// SDJobStatus mirrors the storage-daemon-reported sub-status; reset on
	// reschedule along with Status and JobErrors.
	SDJobStatus string
	JobErrors   int

	Spool bool

	// AcquiredResourceLocks is true exactly while the four arbiter counters
	// have been incremented on this record's behalf.
	AcquiredResourceLocks bool

	// RunToken is regenerated every time the record is promoted into
	// Running; it is the cooperative cancellation/lease identity observed
	// by the engine and used to correlate log lines for a single run.
	RunToken uuid.UUID

	mu         sync.Mutex
	status     JobStatus
	useCount   int
	killable   bool
	cancelled  bool
	terminated chan struct{} // closed exactly once, when Status becomes terminal
}

// NewDirectorJcr constructs a fresh JobRecord from a JobResource
// definition. The record starts with UseCount 1, representing the caller's
// own reference; it is the caller's responsibility to Submit it (which
// adds the queue's reference) and eventually drop its own.
func NewDirectorJcr(jobId int64, def *JobResource) *JobRecord {
	r := &JobRecord{
		JobId:      jobId,
		Job:        def,
		useCount:   1,
		status:     Created,
		terminated: make(chan struct{}),
	}
	if def != nil {
		r.Type = def.Type
		r.Level = def.Level
	}
	return r
}

// SetJcrDefaults copies the job-definition-derived fields onto an
// already-allocated record; used by the Rescheduler when spawning a fresh
// record for a run that produced output.
func (r *JobRecord) SetJcrDefaults(def *JobResource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Job = def
	if def != nil {
		r.Type = def.Type
		r.Level = def.Level
	}
}

// Status returns the record's current status under its own lock.
func (r *JobRecord) Status() JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// setJobStatus enforces the monotonicity-by-severity rule and closes the
// termination channel exactly once when the record first reaches a
// terminal state, waking any joiner blocked in Wait.
func (r *JobRecord) setJobStatus(newStatus JobStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setJobStatusLocked(newStatus)
}

// SetStatus is the exported form of setJobStatus, for use by Engine
// implementations living outside this package: an engine must move the
// record to a terminal status before returning, and setJobStatus itself is
// unexported.
func (r *JobRecord) SetStatus(newStatus JobStatus) {
	r.setJobStatus(newStatus)
}

func (r *JobRecord) setJobStatusLocked(newStatus JobStatus) {
	if newStatus.severity() < r.status.severity() {
		return
	}
	wasTerminal := r.status.IsTerminal()
	r.status = newStatus
	if !wasTerminal && newStatus.IsTerminal() {
		close(r.terminated)
	}
}

// Wait blocks until the record reaches a terminal status.
func (r *JobRecord) Wait() {
	r.mu.Lock()
	ch := r.terminated
	r.mu.Unlock()
	<-ch
}

// hold increments UseCount; called by every queue insertion.
func (r *JobRecord) hold() {
	r.mu.Lock()
	r.useCount++
	r.mu.Unlock()
}

// release decrements UseCount and reports whether it reached zero, meaning
// the record should be destroyed. Go's garbage collector reclaims the
// record's memory once nothing references it; "destroy" here means only
// "the queue must drop its last reference."
func (r *JobRecord) release() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.useCount--
	if r.useCount < 0 {
		// More releases than holds. Clamp to zero and report it as
		// the last release; the underflow itself is not logged.
		r.useCount = 0
		return true
	}
	return r.useCount == 0
}

// UseCount returns the current reference count, for tests and diagnostics.
func (r *JobRecord) UseCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.useCount
}

// markKillable flags the record as bound to a worker and cooperatively
// cancellable.
func (r *JobRecord) markKillable(killable bool) {
	r.mu.Lock()
	r.killable = killable
	r.mu.Unlock()
}

// Killable reports whether the record is currently bound to a worker
// running its engine, and so can be asked to terminate cooperatively via
// a cancellation request.
func (r *JobRecord) Killable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.killable
}

// requestCancel marks the record cancelled. It is idempotent.
func (r *JobRecord) requestCancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
}

// IsCancelled reports whether Cancel has been requested for this record,
// regardless of whether it has reached the Canceled terminal status yet.
func (r *JobRecord) IsCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// CancelRequested is the cooperative signal an Engine implementation
// should poll to decide whether to terminate early. It is equivalent to
// IsCancelled, named for the engine-facing contract.
func (r *JobRecord) CancelRequested() bool {
	return r.IsCancelled()
}

// IsTerminatedOk reports whether the record's current status is
// TerminatedOk, used by the Rescheduler's eligibility check.
func (r *JobRecord) IsTerminatedOk() bool {
	return r.Status() == TerminatedOk
}

// IsIncomplete reports whether the record's current status is Incomplete,
// used by the Rescheduler's eligibility check.
func (r *JobRecord) IsIncomplete() bool {
	return r.Status() == Incomplete
}

// resetRunState clears the per-run fields ahead of a reschedule.
func (r *JobRecord) resetRunState() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = Created
	r.SDJobStatus = ""
	r.JobErrors = 0
	r.cancelled = false
	r.terminated = make(chan struct{})
}

// newRunToken assigns a fresh RunToken, called when the record is promoted
// into Running.
func (r *JobRecord) newRunToken() {
	r.RunToken = uuid.New()
}
