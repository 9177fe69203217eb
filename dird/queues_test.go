// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package dird

import "testing"

func priorityRecord(id int64, priority int) *JobRecord {
	r := NewDirectorJcr(id, &JobResource{Name: "job-def"})
	r.Priority = priority
	return r
}

func TestWaitingQueueInsertOrder(t *testing.T) {
	var q waitingQueue
	q.insert(priorityRecord(1, 20))
	q.insert(priorityRecord(2, 10))
	q.insert(priorityRecord(3, 30))
	q.insert(priorityRecord(4, 10))

	want := []int64{2, 4, 1, 3}
	if len(q.records) != len(want) {
		t.Fatalf("len = %d, want %d", len(q.records), len(want))
	}
	for i, id := range want {
		if q.records[i].JobId != id {
			t.Fatalf("position %d: JobId = %d, want %d", i, q.records[i].JobId, id)
		}
	}
}

func TestWaitingQueueInsertStableForTies(t *testing.T) {
	var q waitingQueue
	first := priorityRecord(1, 10)
	second := priorityRecord(2, 10)
	third := priorityRecord(3, 10)
	q.insert(first)
	q.insert(second)
	q.insert(third)

	if q.records[0] != first || q.records[1] != second || q.records[2] != third {
		t.Fatal("equal-priority records reordered; insertion should be stable")
	}
}

func TestWaitingQueueRemove(t *testing.T) {
	var q waitingQueue
	r1 := priorityRecord(1, 10)
	r2 := priorityRecord(2, 20)
	q.insert(r1)
	q.insert(r2)

	if !q.remove(r1) {
		t.Fatal("expected remove to find r1")
	}
	if q.remove(r1) {
		t.Fatal("expected second remove of r1 to report not found")
	}
	if q.len() != 1 || q.records[0] != r2 {
		t.Fatal("unexpected queue contents after remove")
	}
}

func TestReadyQueueCancelledPushesToFront(t *testing.T) {
	var q readyQueue
	normal := priorityRecord(1, 10)
	cancelled := priorityRecord(2, 10)
	q.pushBack(normal)
	q.pushFront(cancelled)

	if q.popFront() != cancelled {
		t.Fatal("cancelled record should drain before normal ready work")
	}
	if q.popFront() != normal {
		t.Fatal("expected normal record next")
	}
	if q.popFront() != nil {
		t.Fatal("expected nil from an empty queue")
	}
}

func TestRunningSetAllowMix(t *testing.T) {
	var s runningSet
	a := priorityRecord(1, 10)
	a.Job.AllowMixedPriority = true
	b := priorityRecord(2, 20)
	b.Job.AllowMixedPriority = true
	s.add(a)
	s.add(b)

	if !s.allowMix() {
		t.Fatal("expected allowMix true when every running record permits it")
	}

	b.Job.AllowMixedPriority = false
	if s.allowMix() {
		t.Fatal("expected allowMix false when any running record forbids it")
	}
}

func TestRunningSetHeadIsInsertionOrder(t *testing.T) {
	var s runningSet
	a := priorityRecord(1, 20)
	b := priorityRecord(2, 10)
	s.add(a)
	s.add(b)

	if s.head() != a {
		t.Fatal("head should be the first-inserted record regardless of priority value")
	}
	s.remove(a)
	if s.head() != b {
		t.Fatal("head should advance to the next record after removal")
	}
}
