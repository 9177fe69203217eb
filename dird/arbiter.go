// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package dird

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// ResourceArbiter performs counting-semaphore accounting for the four
// concurrency resources: per-client, per-job-definition, per-read-storage,
// and per-write-storage. It owns a single mutex separate from any
// JobQueue's queue mutex, so a worker releasing counters for a terminating
// job never has to wait on a dispatch loop traversing the waiting queue,
// and vice versa. Lock ordering is queue mutex first, arbiter mutex inner;
// the arbiter mutex is never held across anything that blocks.
//
// A single ResourceArbiter is meant to be shared by every JobQueue in the
// process.
type ResourceArbiter struct {
	mu       sync.Mutex
	counters map[counterKey]*resourceCounter
}

type resourceKind int

const (
	kindClient resourceKind = iota
	kindJob
	kindReadStore
	kindWriteStore
)

type counterKey struct {
	kind resourceKind
	name string
}

// resourceCounter is the live state of one (kind, identity) pair. sem
// gates admission; numConcurrent/numConcurrentRead exist for reporting and
// the underflow check. They are only ever touched while the arbiter's
// mutex is held, so they need no atomics of their own.
type resourceCounter struct {
	sem               *semaphore.Weighted
	max               int
	numConcurrent     int
	numConcurrentRead int
}

func newResourceCounter(max int) *resourceCounter {
	if max <= 0 {
		// Unlimited: a semaphore with a very large weight behaves as
		// "never blocks" without special-casing every call site.
		max = 1 << 30
	}
	return &resourceCounter{sem: semaphore.NewWeighted(int64(max)), max: max}
}

// NewResourceArbiter constructs an arbiter with no counters; counters are
// created lazily, one per resource identity seen, the first time Acquire
// needs them.
func NewResourceArbiter() *ResourceArbiter {
	return &ResourceArbiter{counters: make(map[counterKey]*resourceCounter)}
}

func (a *ResourceArbiter) counterFor(kind resourceKind, name string, max int) *resourceCounter {
	key := counterKey{kind: kind, name: name}
	c, ok := a.counters[key]
	if !ok {
		c = newResourceCounter(max)
		a.counters[key] = c
	}
	return c
}

// tryAcquire attempts a non-blocking single-unit acquisition. On success it
// updates the reporting counters and returns true.
func (c *resourceCounter) tryAcquire(isRead bool) bool {
	if !c.sem.TryAcquire(1) {
		return false
	}
	c.numConcurrent++
	if isRead {
		c.numConcurrentRead++
	}
	return true
}

func (c *resourceCounter) release(isRead bool, logger Logger, label string) {
	if c.numConcurrent == 0 {
		fatalf(logger, "arbiter: release of %s would underflow NumConcurrent", label)
		return
	}
	c.numConcurrent--
	if isRead {
		if c.numConcurrentRead == 0 {
			fatalf(logger, "arbiter: release of %s would underflow NumConcurrentRead", label)
		} else {
			c.numConcurrentRead--
		}
	}
	c.sem.Release(1)
}

// Acquire attempts to take all counters the record needs, in fixed order:
// read storage, write storage, client, job definition. On the first
// failure every counter already taken is rolled back. The set of counters
// actually consulted depends on the record's type: migrate/copy/
// consolidate jobs never count against client concurrency, and when their
// MigrateJobId is zero (a control job, not data-moving) they skip storage
// concurrency too.
//
// The return type is JobStatus, not the operation-result Status: a failed
// Acquire reports exactly the Wait*Res value the promotion pass should set
// on the record, and success is reported as Ready, the lifecycle state a
// record enters the instant its resources are granted.
func (a *ResourceArbiter) Acquire(r *JobRecord, logger Logger) JobStatus {
	ignoreClient := r.Type.ignoresClientConcurrency()
	ignoreStorage := ignoreClient && r.MigrateJobId == 0

	a.mu.Lock()
	defer a.mu.Unlock()

	var readC, writeC, clientC, jobC *resourceCounter
	var gotRead, gotWrite, gotClient, gotJob bool

	rollback := func() {
		if gotJob {
			jobC.release(false, logger, "job")
		}
		if gotClient {
			clientC.release(false, logger, "client")
		}
		if gotWrite {
			writeC.release(false, logger, "write-store")
		}
		if gotRead {
			readC.release(true, logger, "read-store")
		}
	}

	// 1. Read storage.
	if r.ReadStorage != nil && !ignoreStorage {
		readC = a.counterFor(kindReadStore, r.ReadStorage.Name, r.ReadStorage.MaxConcurrent())
		if !readC.tryAcquire(true) {
			return WaitStoreRes
		}
		gotRead = true
	}

	// 2. Write storage.
	if r.WriteStorage != nil && !ignoreStorage {
		writeC = a.counterFor(kindWriteStore, r.WriteStorage.Name, r.WriteStorage.MaxConcurrent())
		if !writeC.tryAcquire(false) {
			rollback()
			return WaitStoreRes
		}
		gotWrite = true
	}

	// 3. Client.
	if r.Client != nil && !ignoreClient {
		clientC = a.counterFor(kindClient, r.Client.Name, r.Client.MaxConcurrentJobs)
		if !clientC.tryAcquire(false) {
			rollback()
			return WaitClientRes
		}
		gotClient = true
	}

	// 4. Job definition.
	if r.Job != nil {
		jobC = a.counterFor(kindJob, r.Job.Name, r.Job.MaxConcurrentJobs)
		if !jobC.tryAcquire(false) {
			rollback()
			return WaitJobRes
		}
		gotJob = true
	}

	r.AcquiredResourceLocks = true
	return Ready
}

// Release mirrors Acquire, decrementing only the counters that were not
// ignored for this record's type. A decrement that would underflow is
// reported through logger as fatal and the value is left alone rather than
// clamped, so the breach remains visible for diagnosis.
func (a *ResourceArbiter) Release(r *JobRecord, logger Logger) {
	if !r.AcquiredResourceLocks {
		return
	}
	ignoreClient := r.Type.ignoresClientConcurrency()
	ignoreStorage := ignoreClient && r.MigrateJobId == 0

	a.mu.Lock()
	defer a.mu.Unlock()

	if r.ReadStorage != nil && !ignoreStorage {
		a.counterFor(kindReadStore, r.ReadStorage.Name, r.ReadStorage.MaxConcurrent()).
			release(true, logger, "read-store:"+r.ReadStorage.Name)
	}
	if r.WriteStorage != nil && !ignoreStorage {
		a.counterFor(kindWriteStore, r.WriteStorage.Name, r.WriteStorage.MaxConcurrent()).
			release(false, logger, "write-store:"+r.WriteStorage.Name)
	}
	if r.Client != nil && !ignoreClient {
		a.counterFor(kindClient, r.Client.Name, r.Client.MaxConcurrentJobs).
			release(false, logger, "client:"+r.Client.Name)
	}
	if r.Job != nil {
		a.counterFor(kindJob, r.Job.Name, r.Job.MaxConcurrentJobs).
			release(false, logger, "job:"+r.Job.Name)
	}

	r.AcquiredResourceLocks = false
}

// Snapshot reports the live counters for every resource the arbiter has
// ever seen, for status reporting.
func (a *ResourceArbiter) Snapshot() []ResourceUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ResourceUsage, 0, len(a.counters))
	for k, c := range a.counters {
		out = append(out, ResourceUsage{
			Kind:              k.kind.String(),
			Name:              k.name,
			MaxConcurrent:     c.max,
			NumConcurrent:     c.numConcurrent,
			NumConcurrentRead: c.numConcurrentRead,
		})
	}
	return out
}

func (k resourceKind) String() string {
	switch k {
	case kindClient:
		return "client"
	case kindJob:
		return "job"
	case kindReadStore:
		return "read-store"
	case kindWriteStore:
		return "write-store"
	default:
		return "unknown"
	}
}

// ResourceUsage is a point-in-time view of one resource's counters.
type ResourceUsage struct {
	Kind              string
	Name              string
	MaxConcurrent     int
	NumConcurrent     int
	NumConcurrentRead int
}

// MaxConcurrent returns the storage resource's cap, treating zero as
// unlimited.
func (s *StorageResource) MaxConcurrent() int {
	if s == nil {
		return 0
	}
	return s.MaxConcurrentJobs
}
