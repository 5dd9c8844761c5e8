// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package store holds the authoritative scene graph of one session.
//
// A Store is the single writer for its graph. Every accepted batch bumps
// the version by exactly one and publishes exactly one delta, in commit
// order, to every subscriber. Publication never blocks the writer: a
// subscriber that cannot keep up is marked lagged and must resync from a
// snapshot.
package store

import (
	"fmt"
	"sync"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/scene"
)

// Default configuration constants.
const (
	// DefaultHistory is the number of recent deltas kept for lagged
	// subscribers.
	DefaultHistory = 256

	// DefaultSubscriberBuffer is the channel capacity of a subscription.
	DefaultSubscriberBuffer = 64
)

// Option configures a Store.
type Option func(*options)

type options struct {
	history int
}

// WithHistory sets how many recent deltas are retained for Since. A
// lagged subscription catches up from them when they reach back far
// enough; zero disables that and every lagged subscriber gets a snapshot.
func WithHistory(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.history = n
		}
	}
}

// Store is the authoritative scene graph for one session.
// It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	graph   *scene.Graph
	subs    map[*Subscription]struct{}
	history *ring
}

// New creates an empty store at version 0.
func New(opts ...Option) *Store {
	o := options{history: DefaultHistory}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{
		graph:   scene.NewGraph(),
		subs:    make(map[*Subscription]struct{}),
		history: newRing(o.history),
	}
}

// Apply commits a single op. See ApplyBatch.
func (s *Store) Apply(op scene.Op) (scene.Delta, error) {
	return s.ApplyBatch([]scene.Op{op})
}

// ApplyBatch commits ops as one all-or-nothing batch. On success the
// version advances by one and the returned delta has been published to
// every subscriber. On failure the graph and version are unchanged and the
// error is a *scene.OpError wrapping canvas.ErrDuplicateID,
// canvas.ErrUnknownID or canvas.ErrInvalidOp.
func (s *Store) ApplyBatch(ops []scene.Op) (scene.Delta, error) {
	if len(ops) == 0 {
		return scene.Delta{}, fmt.Errorf("store: empty batch: %w", canvas.ErrInvalidOp)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.graph.Commit(ops)
	if err != nil {
		return scene.Delta{}, err
	}
	s.publishLocked(d)
	canvas.Logger().Debug("store: committed",
		"base_version", d.BaseVersion, "version", d.NewVersion, "ops", len(d.Ops))
	return d, nil
}

// Clear deletes every element as one batch. Clearing an empty store is a
// no-op and returns a zero delta without bumping the version.
func (s *Store) Clear() (scene.Delta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elems := s.graph.Elements()
	if len(elems) == 0 {
		return scene.Delta{}, nil
	}
	ops := make([]scene.Op, len(elems))
	for i, e := range elems {
		ops[i] = scene.Delete(e.ID)
	}
	d, err := s.graph.Commit(ops)
	if err != nil {
		return scene.Delta{}, err
	}
	s.publishLocked(d)
	return d, nil
}

// Update runs fn against a read-only view of the graph and commits the ops
// it returns as one batch, all under the store lock. It lets callers build
// a batch that depends on current contents (upserts) without racing other
// writers. If fn returns no ops nothing is committed.
func (s *Store) Update(fn func(g *scene.Graph) ([]scene.Op, error)) (scene.Delta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ops, err := fn(s.graph.Clone())
	if err != nil {
		return scene.Delta{}, err
	}
	if len(ops) == 0 {
		return scene.Delta{}, nil
	}
	d, err := s.graph.Commit(ops)
	if err != nil {
		return scene.Delta{}, err
	}
	s.publishLocked(d)
	return d, nil
}

// Version returns the current version.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Version()
}

// Snapshot returns a complete copy of the current graph.
func (s *Store) Snapshot() scene.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Snapshot()
}

// Graph returns a deep copy of the current graph.
func (s *Store) Graph() *scene.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Clone()
}

// Since returns the deltas that take a graph at version from to the
// current version. It returns false when the history no longer reaches
// back to from (or from is ahead of the store); the caller must then send
// a snapshot instead.
func (s *Store) Since(from uint64) ([]scene.Delta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.graph.Version()
	if from > cur {
		return nil, false
	}
	if from == cur {
		return nil, true
	}
	return s.history.since(from, cur)
}

// SnapshotOrSince returns what a consumer at version from needs to catch
// up: the deltas after from when history reaches back far enough and at
// least one is missing, a snapshot otherwise.
func (s *Store) SnapshotOrSince(from uint64) (deltas []scene.Delta, snap *scene.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotOrSinceLocked(from)
}

func (s *Store) snapshotOrSinceLocked(from uint64) ([]scene.Delta, *scene.Snapshot) {
	if cur := s.graph.Version(); from < cur {
		if ds, ok := s.history.since(from, cur); ok {
			return ds, nil
		}
	}
	sn := s.graph.Snapshot()
	return nil, &sn
}

// publishLocked hands a copy of d to the history and the subscribers, so
// the caller keeps sole ownership of d. Subscribers share that copy and
// must treat it as read-only.
func (s *Store) publishLocked(d scene.Delta) {
	shared := scene.Delta{BaseVersion: d.BaseVersion, NewVersion: d.NewVersion, Ops: scene.CloneOps(d.Ops)}
	s.history.push(shared)
	for sub := range s.subs {
		sub.offer(shared)
	}
}
