// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package store

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/scene"
)

// Subscription receives every delta committed after it was created.
//
// Deltas arrive on C in commit order. If the consumer falls behind and the
// buffer fills, the subscription is marked lagged, further deltas are
// dropped until Resume is called, and the consumer must resync from a
// snapshot.
type Subscription struct {
	C <-chan scene.Delta

	ch     chan scene.Delta
	store  *Store
	lagged atomic.Bool
	once   sync.Once
}

// Subscribe registers a new subscription with the given channel capacity.
// A non-positive buffer uses DefaultSubscriberBuffer.
func (s *Store) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan scene.Delta, buffer)
	sub := &Subscription{C: ch, ch: ch, store: s}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

// SubscribeAt registers a subscription and returns the snapshot it starts
// from, atomically: the first delta on C, if any, has BaseVersion equal to
// the snapshot version.
func (s *Store) SubscribeAt(buffer int) (*Subscription, scene.Snapshot) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan scene.Delta, buffer)
	sub := &Subscription{C: ch, ch: ch, store: s}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub] = struct{}{}
	return sub, s.graph.Snapshot()
}

// Lagged reports whether deltas were dropped because the buffer was full.
func (sub *Subscription) Lagged() bool {
	return sub.lagged.Load()
}

// Resume clears the lagged flag and drains any buffered deltas. It
// returns what a consumer that last saw version from needs instead of the
// dropped deltas: catch-up deltas from history when it reaches back that
// far, a snapshot otherwise. Deltas published afterwards continue from the
// returned state without a gap.
func (sub *Subscription) Resume(from uint64) ([]scene.Delta, *scene.Snapshot) {
	st := sub.store
	st.mu.Lock()
	defer st.mu.Unlock()
	sub.drainLocked()
	return st.snapshotOrSinceLocked(from)
}

// Restart drains any buffered deltas and returns a snapshot of the current
// graph. Deltas published afterwards continue from the snapshot's version.
// A consumer asking for a fresh snapshot uses it in place of the deltas it
// has not read yet.
func (sub *Subscription) Restart() scene.Snapshot {
	st := sub.store
	st.mu.Lock()
	defer st.mu.Unlock()
	sub.drainLocked()
	return st.graph.Snapshot()
}

func (sub *Subscription) drainLocked() {
drain:
	for {
		select {
		case _, ok := <-sub.ch:
			if !ok {
				break drain
			}
		default:
			break drain
		}
	}
	sub.lagged.Store(false)
}

// Close unregisters the subscription and closes C. It is safe to call
// more than once.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		st := sub.store
		st.mu.Lock()
		delete(st.subs, sub)
		close(sub.ch)
		st.mu.Unlock()
	})
}

// offer is called with the store lock held.
func (sub *Subscription) offer(d scene.Delta) {
	if sub.lagged.Load() {
		return
	}
	select {
	case sub.ch <- d:
	default:
		sub.lagged.Store(true)
		canvas.Logger().Warn("store: subscriber lagged, deltas dropped until resync",
			"version", d.NewVersion)
	}
}
