// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package dird

import (
	"testing"
	"time"
)

func TestJobRecordStatusMonotonicity(t *testing.T) {
	r := NewDirectorJcr(1, &JobResource{Name: "job-def"})
	r.setJobStatus(Running)
	r.setJobStatus(TerminatedOk)

	// A less severe status must never overwrite a terminal one.
	r.setJobStatus(WaitClientRes)
	if have, want := r.Status(), TerminatedOk; have != want {
		t.Fatalf("status = %v, want %v (monotonicity violated)", have, want)
	}

	// Canceled/ErrorTerminated/Incomplete outrank TerminatedOk.
	r.setJobStatus(Canceled)
	if have, want := r.Status(), Canceled; have != want {
		t.Fatalf("status = %v, want %v", have, want)
	}

	// TerminatedOk must never downgrade a Canceled record.
	r.setJobStatus(TerminatedOk)
	if have, want := r.Status(), Canceled; have != want {
		t.Fatalf("status = %v, want %v (TerminatedOk must not override Canceled)", have, want)
	}
}

func TestJobRecordWaitUnblocksOnTerminal(t *testing.T) {
	r := NewDirectorJcr(1, &JobResource{Name: "job-def"})
	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before the record reached a terminal status")
	case <-time.After(50 * time.Millisecond):
	}

	r.setJobStatus(ErrorTerminated)

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Wait did not return after the record reached a terminal status")
	}
}

func TestJobRecordUseCountLifecycle(t *testing.T) {
	r := NewDirectorJcr(1, &JobResource{Name: "job-def"})
	if have, want := r.UseCount(), 1; have != want {
		t.Fatalf("UseCount = %d, want %d", have, want)
	}

	r.hold()
	if have, want := r.UseCount(), 2; have != want {
		t.Fatalf("UseCount = %d, want %d", have, want)
	}

	if r.release() {
		t.Fatal("release should not report zero while the caller's own reference remains")
	}
	if !r.release() {
		t.Fatal("release should report zero once the last reference drops")
	}
}

func TestJobRecordCancelRequestedIsSticky(t *testing.T) {
	r := NewDirectorJcr(1, &JobResource{Name: "job-def"})
	if r.CancelRequested() {
		t.Fatal("CancelRequested should be false before any cancellation")
	}
	r.requestCancel()
	if !r.CancelRequested() {
		t.Fatal("CancelRequested should be true after requestCancel")
	}
	r.requestCancel() // idempotent
	if !r.CancelRequested() {
		t.Fatal("CancelRequested should remain true")
	}
}

func TestJobRecordResetRunState(t *testing.T) {
	r := NewDirectorJcr(1, &JobResource{Name: "job-def"})
	r.setJobStatus(ErrorTerminated)
	r.SDJobStatus = "sd-error"
	r.JobErrors = 3
	r.requestCancel()

	r.resetRunState()

	if have, want := r.Status(), Created; have != want {
		t.Fatalf("status = %v, want %v", have, want)
	}
	if r.SDJobStatus != "" {
		t.Fatalf("SDJobStatus = %q, want empty", r.SDJobStatus)
	}
	if r.JobErrors != 0 {
		t.Fatalf("JobErrors = %d, want 0", r.JobErrors)
	}
	if r.IsCancelled() {
		t.Fatal("resetRunState should clear the cancellation flag for the new run")
	}

	// A fresh terminated channel means Wait blocks again until the next
	// run reaches a terminal status.
	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Wait returned immediately after resetRunState; terminated channel was not replaced")
	case <-time.After(50 * time.Millisecond):
	}
	r.setJobStatus(TerminatedOk)
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Wait did not unblock after the reset record reached a terminal status")
	}
}
