// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

// Package status is a thin HTTP surface over a dird.JobQueue and its
// history.Store, for the surrounding daemon to expose status reporting
// without reaching into queue internals. It speaks plain polled JSON; a
// client that wants push semantics can layer one on top of this package
// from the outside.
package status

import (
	"encoding/json"
	"net/http"

	"github.com/dirdaemon/jobqueue/dird"
	"github.com/dirdaemon/jobqueue/history"
)

// Server serves the current queue snapshot and a recent history slice.
type Server struct {
	q    *dird.JobQueue
	hist *history.Store
}

// New initializes a new Server over q and hist. hist may be nil, in which
// case /history always responds with an empty list.
func New(q *dird.JobQueue, hist *history.Store) *Server {
	return &Server{q: q, hist: hist}
}

// Handler returns the status routes as an http.Handler, for embedding
// into a larger daemon's mux.
func (srv *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", srv.handleSnapshot)
	mux.HandleFunc("/history", srv.handleHistory)
	return mux
}

// Serve starts the web server at addr. It blocks until the server stops.
func (srv *Server) Serve(addr string) error {
	return http.ListenAndServe(addr, srv.Handler())
}

// jobView is the wire shape of one queued or running record. The record's
// status is only reachable through its accessor, so the snapshot is
// flattened into views rather than encoded directly.
type jobView struct {
	JobId           int64  `json:"job_id"`
	Type            string `json:"type"`
	Level           int    `json:"level"`
	Priority        int    `json:"priority"`
	Status          string `json:"status"`
	Client          string `json:"client,omitempty"`
	RescheduleCount int    `json:"reschedule_count,omitempty"`
}

type snapshotView struct {
	Waiting []jobView `json:"waiting"`
	Ready   []jobView `json:"ready"`
	Running []jobView `json:"running"`
}

func viewsOf(records []*dird.JobRecord) []jobView {
	out := make([]jobView, 0, len(records))
	for _, r := range records {
		v := jobView{
			JobId:           r.JobId,
			Type:            r.Type.String(),
			Level:           int(r.Level),
			Priority:        r.Priority,
			Status:          r.Status().String(),
			RescheduleCount: r.RescheduleCount,
		}
		if r.Client != nil {
			v.Client = r.Client.Name
		}
		out = append(out, v)
	}
	return out
}

func (srv *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s := srv.q.Snapshot()
	writeJSON(w, snapshotView{
		Waiting: viewsOf(s.Waiting),
		Ready:   viewsOf(s.Ready),
		Running: viewsOf(s.Running),
	})
}

func (srv *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := history.Query{
		Type:   r.URL.Query().Get("type"),
		Status: r.URL.Query().Get("status"),
		Client: r.URL.Query().Get("client"),
	}
	if srv.hist == nil {
		writeJSON(w, []history.Entry{})
		return
	}
	entries, err := srv.hist.Query(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
