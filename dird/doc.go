// Package dird implements the scheduling and admission-control core of
// a backup director daemon.
//
// A JobQueue accepts JobRecords and holds them until their scheduled start
// time (via a SchedWaiter), arbitrates a fixed set of shared concurrency
// resources (per-client, per-job-definition, per-read-storage and
// per-write-storage) through a ResourceArbiter, runs eligible records on a
// bounded pool of worker goroutines, and consults a Rescheduler after every
// run to decide whether a record re-enters the queue.
//
// Applications construct a JobQueue with New, supplying an Engine (the
// opaque callback that actually runs a job). Records are admitted with
// Submit, which places them on the waiting queue, or, if their
// ScheduledTime lies in the future, hands them to a SchedWaiter first. The dispatch loop promotes waiting records to the ready queue once
// the ResourceArbiter can grant all of their required counters, honoring
// job priority and the mixed-priority exception described in JobResource.
//
// Cancel moves a waiting record to the front of the ready queue without
// acquiring resources; a worker drains it without invoking the engine. A
// record cancelled after it started running is the engine's to stop: it
// polls CancelRequested and terminates cooperatively. Shutdown stops
// accepting new work, wakes idle workers, and blocks until the worker pool
// has fully drained.
//
// This package holds no persisted state: everything lives in memory and is
// lost on restart. A best-effort, in-memory index of terminated records for
// status reporting lives in the history subpackage; it is not the queue's
// live state and carries no durability guarantee either.
package dird
