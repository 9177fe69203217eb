package dird

import "sync"

// broadcastSignal is a channel-based work condition: something Submit,
// Cancel, a worker handing off ready work, and a worker draining to zero
// can all broadcast on, and that other goroutines can wait on with a
// timeout.
//
// sync.Cond cannot be waited on with a timeout without a helper goroutine
// per wait, so this package uses the well-worn "close-and-replace channel"
// broadcaster instead: wait() snapshots the current channel while the
// caller still holds the queue mutex, the caller then selects on it (and a
// timer) after unlocking, and broadcast() closes the snapshotted channel
// and installs a fresh one so earlier waiters are never re-woken by a
// later broadcast.
type broadcastSignal struct {
	mu sync.Mutex
	ch chan struct{}
}

func newBroadcastSignal() *broadcastSignal {
	return &broadcastSignal{ch: make(chan struct{})}
}

// wait returns the channel to select on. Call it while still holding the
// lock that guards the condition being waited for, then release that lock
// before selecting on the returned channel.
func (s *broadcastSignal) wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// broadcast wakes every goroutine currently selecting on a channel
// returned by wait.
func (s *broadcastSignal) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.ch)
	s.ch = make(chan struct{})
}
