package history_test

import (
	"testing"
	"time"

	"github.com/dirdaemon/jobqueue/dird"
	"github.com/dirdaemon/jobqueue/history"
)

// recordTerminal drives a fresh JobRecord through a real dird.JobQueue
// wired to st, so the queue's own post-run bookkeeping is what calls
// history.Record; there is no shortcut to a terminal record outside the
// dispatch path.
func recordTerminal(t *testing.T, st *history.Store, jobID int64, typ dird.JobType, client string, bytesWritten int64) *dird.JobRecord {
	t.Helper()
	def := &dird.JobResource{Name: "job-def"}
	q := dird.New(1, func(r *dird.JobRecord) {
		r.BytesWritten = bytesWritten
		r.SetStatus(dird.TerminatedOk)
	}, dird.WithHistory(st))
	defer q.Shutdown()

	r := dird.NewDirectorJcr(jobID, def)
	r.Type = typ
	r.Priority = 5
	r.Client = &dird.ClientResource{Name: client, MaxConcurrentJobs: 1}
	r.ScheduledTime = time.Now()

	if status := q.Submit(r); status != dird.Ok {
		t.Fatalf("Submit failed: %v", status)
	}
	r.Wait()
	return r
}

func waitForEntries(t *testing.T, st *history.Store, q history.Query, min int) []history.Entry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := st.Query(q)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(entries) >= min {
			return entries
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d history entries, have %d", min, len(entries))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStoreRecordAndQuery(t *testing.T) {
	st, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	recordTerminal(t, st, 1, dird.TypeBackup, "client-a", 2048)

	entries := waitForEntries(t, st, history.Query{}, 1)
	if len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(entries))
	}
	if have, want := entries[0].JobId, int64(1); have != want {
		t.Fatalf("JobId = %d, want %d", have, want)
	}
	if have, want := entries[0].Client, "client-a"; have != want {
		t.Fatalf("Client = %q, want %q", have, want)
	}
	if have, want := entries[0].BytesWritten, int64(2048); have != want {
		t.Fatalf("BytesWritten = %d, want %d", have, want)
	}
}

func TestStoreQueryFilters(t *testing.T) {
	st, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	recordTerminal(t, st, 10, dird.TypeBackup, "client-a", 0)
	recordTerminal(t, st, 11, dird.TypeRestore, "client-b", 0)

	waitForEntries(t, st, history.Query{}, 2)

	filtered, err := st.Query(history.Query{Client: "client-b"})
	if err != nil {
		t.Fatalf("Query with filter failed: %v", err)
	}
	if len(filtered) == 0 {
		t.Fatal("expected at least one entry for client-b")
	}
	for _, e := range filtered {
		if e.Client != "client-b" {
			t.Fatalf("unexpected client %q in filtered results", e.Client)
		}
	}
}
