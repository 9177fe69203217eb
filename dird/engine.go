// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package dird

// Engine is the opaque, blocking callable supplied by the surrounding
// daemon that actually runs a job. It is invoked once per dispatched
// record, runs the job to a terminal status, and must set the record's
// status to a terminal value (via SetStatus) before returning. It must
// never touch the queue directly; in particular it must not call Submit,
// Cancel, or Shutdown on the JobQueue that invoked it.
//
// The engine observes CancelRequested on the record to cooperate with
// cancellation; the queue never forcibly interrupts an engine invocation.
type Engine func(record *JobRecord)
