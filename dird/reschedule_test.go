// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package dird

import (
	"testing"
	"time"
)

func TestRescheduleEligibility(t *testing.T) {
	base := &JobResource{
		Name:                     "backup-job",
		Type:                     TypeBackup,
		RescheduleOnError:        true,
		RescheduleIncompleteJobs: true,
		RescheduleTimes:          1,
	}
	// incompleteOnly leaves RescheduleOnError off, so only the
	// incomplete-job arm of the check can make a record eligible.
	incompleteOnly := &JobResource{
		Name:                     "backup-job",
		Type:                     TypeBackup,
		RescheduleIncompleteJobs: true,
		RescheduleTimes:          1,
	}

	cases := []struct {
		name string
		def  *JobResource
		r    func() *JobRecord
		want bool
	}{
		{
			name: "error terminated backup is eligible",
			def:  base,
			r: func() *JobRecord {
				r := NewDirectorJcr(1, base)
				r.Type = TypeBackup
				r.setJobStatus(ErrorTerminated)
				return r
			},
			want: true,
		},
		{
			name: "cancelled backup is never eligible for RescheduleOnError",
			def:  base,
			r: func() *JobRecord {
				r := NewDirectorJcr(1, base)
				r.Type = TypeBackup
				r.setJobStatus(Canceled)
				return r
			},
			want: false,
		},
		{
			name: "incomplete backup at base level is excluded",
			def:  incompleteOnly,
			r: func() *JobRecord {
				r := NewDirectorJcr(1, incompleteOnly)
				r.Type = TypeBackup
				r.Level = LevelBase
				r.setJobStatus(Incomplete)
				return r
			},
			want: false,
		},
		{
			name: "incomplete incremental backup is eligible",
			def:  base,
			r: func() *JobRecord {
				r := NewDirectorJcr(1, base)
				r.Type = TypeBackup
				r.Level = LevelIncremental
				r.setJobStatus(Incomplete)
				return r
			},
			want: true,
		},
		{
			name: "restore jobs are never eligible",
			def:  base,
			r: func() *JobRecord {
				r := NewDirectorJcr(1, base)
				r.Type = TypeRestore
				r.setJobStatus(ErrorTerminated)
				return r
			},
			want: false,
		},
		{
			name: "exhausted attempts are not eligible",
			def:  base,
			r: func() *JobRecord {
				r := NewDirectorJcr(1, base)
				r.Type = TypeBackup
				r.RescheduleCount = 1
				r.setJobStatus(ErrorTerminated)
				return r
			},
			want: false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if have, want := eligible(c.def, c.r()), c.want; have != want {
				t.Fatalf("eligible() = %v, want %v", have, want)
			}
		})
	}
}

func TestRescheduleSpawnsNewRecordWhenBytesWritten(t *testing.T) {
	def := &JobResource{
		Name:               "backup-job",
		Type:               TypeBackup,
		RescheduleOnError:  true,
		RescheduleTimes:    1,
		RescheduleInterval: 5 * time.Millisecond,
	}

	seenJobIDs := make(chan int64, 4)
	q := New(1, func(r *JobRecord) {
		seenJobIDs <- r.JobId
		r.BytesWritten = 4096
		r.setJobStatus(ErrorTerminated)
	})
	defer q.Shutdown()

	original := NewDirectorJcr(7, def)
	original.Priority = 10
	original.ScheduledTime = time.Now()
	original.Client = &ClientResource{Name: "client-a"}

	if status := q.Submit(original); status != Ok {
		t.Fatalf("Submit failed: %v", status)
	}

	first := <-seenJobIDs
	if first != 7 {
		t.Fatalf("first run JobId = %d, want 7", first)
	}

	second := <-seenJobIDs
	if second == 7 {
		t.Fatal("reschedule with BytesWritten > 0 must spawn a new JobId, not reuse 7")
	}
	if second == 0 {
		t.Fatal("spawned record got a zero JobId")
	}
}

func TestRescheduleDuplicatePolicyRejection(t *testing.T) {
	def := &JobResource{
		Name:               "backup-job",
		Type:               TypeBackup,
		RescheduleOnError:  true,
		RescheduleTimes:    3,
		RescheduleInterval: 5 * time.Millisecond,
	}

	var attempts int
	done := make(chan struct{})
	q := New(1, func(r *JobRecord) {
		attempts++
		r.setJobStatus(ErrorTerminated)
		if attempts == 1 {
			return
		}
		close(done)
	}, WithDuplicatePolicy(func(*JobRecord) bool { return false }))
	defer q.Shutdown()

	r := NewDirectorJcr(1, def)
	r.Priority = 10
	r.ScheduledTime = time.Now()

	if status := q.Submit(r); status != Ok {
		t.Fatalf("Submit failed: %v", status)
	}
	r.Wait()

	// Give a potential (incorrect) second attempt a moment to show up.
	select {
	case <-done:
		t.Fatal("reschedule proceeded despite a rejecting duplicate-job policy")
	case <-time.After(200 * time.Millisecond):
	}
	if attempts != 1 {
		t.Fatalf("engine invoked %d times, want exactly 1", attempts)
	}
}
