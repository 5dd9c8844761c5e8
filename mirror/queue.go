// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mirror

import (
	"slices"

	"github.com/gogpu/canvas/scene"
)

// QueuedEdit is a local edit waiting to be sent to the host. Seq orders
// replay and matches the host's Result to the edit.
type QueuedEdit struct {
	Seq uint64
	Op  scene.Op
}

// OfflineQueue holds local edits in the order they were made.
// It is not safe for concurrent use; the Engine guards it.
type OfflineQueue struct {
	items []QueuedEdit
	seq   uint64
}

// NextSeq allocates a sequence number without queueing anything. Online
// edits use it so that queued and sent edits share one sequence.
func (q *OfflineQueue) NextSeq() uint64 {
	q.seq++
	return q.seq
}

// Push appends op with a fresh sequence number.
func (q *OfflineQueue) Push(op scene.Op) QueuedEdit {
	e := QueuedEdit{Seq: q.NextSeq(), Op: op.Clone()}
	q.items = append(q.items, e)
	return e
}

func (q *OfflineQueue) pushEdit(e QueuedEdit) {
	q.items = append(q.items, e)
}

// PushFront puts an edit back at the head of the queue, keeping its
// sequence number. It is used when an edit in flight loses its transport.
func (q *OfflineQueue) PushFront(e QueuedEdit) {
	q.items = slices.Insert(q.items, 0, e)
}

// Front returns the oldest edit.
func (q *OfflineQueue) Front() (QueuedEdit, bool) {
	if len(q.items) == 0 {
		return QueuedEdit{}, false
	}
	return q.items[0], true
}

// Pop removes the oldest edit.
func (q *OfflineQueue) Pop() {
	if len(q.items) > 0 {
		q.items[0] = QueuedEdit{}
		q.items = q.items[1:]
	}
}

// Len returns the number of queued edits.
func (q *OfflineQueue) Len() int { return len(q.items) }

// Pending returns a copy of the queued edits in replay order.
func (q *OfflineQueue) Pending() []QueuedEdit {
	out := make([]QueuedEdit, len(q.items))
	for i, e := range q.items {
		out[i] = QueuedEdit{Seq: e.Seq, Op: e.Op.Clone()}
	}
	return out
}
