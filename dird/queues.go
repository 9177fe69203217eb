// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package dird

// waitingQueue holds records whose scheduled time has arrived but whose
// resources have not yet been granted, sorted ascending by Priority at
// insertion, stable for ties.
type waitingQueue struct {
	records []*JobRecord
}

// insert places r in priority order: immediately before the first record
// with strictly greater Priority value, which puts it after every existing
// record of equal Priority.
func (q *waitingQueue) insert(r *JobRecord) {
	i := 0
	for i < len(q.records) && q.records[i].Priority <= r.Priority {
		i++
	}
	q.records = append(q.records, nil)
	copy(q.records[i+1:], q.records[i:])
	q.records[i] = r
}

// remove deletes r from the queue if present, reporting whether it was
// found.
func (q *waitingQueue) remove(r *JobRecord) bool {
	for i, v := range q.records {
		if v == r {
			q.records = append(q.records[:i], q.records[i+1:]...)
			return true
		}
	}
	return false
}

func (q *waitingQueue) len() int { return len(q.records) }

// readyQueue is FIFO, except cancelled records are pushed to the front so
// they drain ahead of non-cancelled ready work.
type readyQueue struct {
	records []*JobRecord
}

func (q *readyQueue) pushBack(r *JobRecord) {
	q.records = append(q.records, r)
}

func (q *readyQueue) pushFront(r *JobRecord) {
	q.records = append([]*JobRecord{r}, q.records...)
}

// popFront removes and returns the head of the ready queue, or nil if
// empty.
func (q *readyQueue) popFront() *JobRecord {
	if len(q.records) == 0 {
		return nil
	}
	r := q.records[0]
	q.records = q.records[1:]
	return r
}

func (q *readyQueue) remove(r *JobRecord) bool {
	for i, v := range q.records {
		if v == r {
			q.records = append(q.records[:i], q.records[i+1:]...)
			return true
		}
	}
	return false
}

func (q *readyQueue) len() int { return len(q.records) }

// runningSet holds the records currently bound to a worker, in insertion
// order. A plain slice is enough since membership checks only ever happen
// for a handful of concurrently-running records.
type runningSet struct {
	records []*JobRecord
}

func (s *runningSet) add(r *JobRecord) {
	s.records = append(s.records, r)
}

func (s *runningSet) remove(r *JobRecord) bool {
	for i, v := range s.records {
		if v == r {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return true
		}
	}
	return false
}

func (s *runningSet) len() int { return len(s.records) }

// head returns the first record inserted into the running set still
// present, or nil if empty. The promotion pass uses it as the reference
// record for the priority barrier.
func (s *runningSet) head() *JobRecord {
	if len(s.records) == 0 {
		return nil
	}
	return s.records[0]
}

// allowMix reports whether every currently-running record's JobResource
// permits mixed-priority promotion. An empty running set vacuously allows
// mixing; the promotion pass only consults allowMix when the set is
// non-empty.
func (s *runningSet) allowMix() bool {
	for _, r := range s.records {
		if r.Job == nil || !r.Job.AllowMixedPriority {
			return false
		}
	}
	return true
}
