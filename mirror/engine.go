// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package mirror keeps a remote copy of a session's scene consistent with
// the host.
//
// The Engine is an explicit state machine (see State). It applies deltas in
// version order, resyncs from a snapshot whenever versions disagree, and
// queues local edits while the transport is down, replaying them one at a
// time once a fresh snapshot has arrived.
//
// The graph readers see is an immutable *scene.Graph swapped atomically;
// every change builds a new graph, so a render loop never observes a
// partially applied delta.
package mirror

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/protocol"
	"github.com/gogpu/canvas/scene"
)

// DefaultResyncTimeout bounds how long the engine waits for an expected
// snapshot or replayed edit result before asking again.
const DefaultResyncTimeout = 2 * time.Second

// Sender delivers frames to the host.
//
// Send must not block and must not call back into the Engine. It returns
// an error wrapping canvas.ErrTransportClosed when the transport is gone.
type Sender interface {
	Send(m protocol.Message) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithResyncTimeout sets the watchdog timeout.
func WithResyncTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// Engine reconciles a mirror graph with the host.
// It is safe for concurrent use.
type Engine struct {
	view atomic.Pointer[scene.Graph]

	mu       sync.Mutex
	state    State
	base     *scene.Graph // last authoritative graph
	sender   Sender
	queue    OfflineQueue
	inflight *QueuedEdit  // replayed edit awaiting its result
	unacked  []QueuedEdit // online edits awaiting their results, in send order
	deadline time.Time    // zero when the watchdog is idle
	timeout  time.Duration
	now      func() time.Time

	observers []func(Transition)
	pending   []Transition
}

// NewEngine returns an engine in StateEmpty with an empty graph.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		state:   StateEmpty,
		base:    scene.NewGraph(),
		timeout: DefaultResyncTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.view.Store(e.base)
	return e
}

// Graph returns the graph to display. The result is shared and must not
// be modified. While offline it includes queued local edits.
func (e *Engine) Graph() *scene.Graph {
	return e.view.Load()
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Version returns the last authoritative version the mirror holds.
func (e *Engine) Version() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.base.Version()
}

// Pending returns the edits not yet acknowledged by the host, including
// those already sent, in replay order.
func (e *Engine) Pending() []QueuedEdit {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]QueuedEdit, 0, len(e.unacked)+1+e.queue.Len())
	for _, q := range e.unacked {
		out = append(out, QueuedEdit{Seq: q.Seq, Op: q.Op.Clone()})
	}
	if e.inflight != nil {
		out = append(out, QueuedEdit{Seq: e.inflight.Seq, Op: e.inflight.Op.Clone()})
	}
	return append(out, e.queue.Pending()...)
}

// Observe registers fn to be called after every state transition. Calls
// happen outside the engine lock, in transition order.
func (e *Engine) Observe(fn func(Transition)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obs := make([]func(Transition), len(e.observers), len(e.observers)+1)
	copy(obs, e.observers)
	e.observers = append(obs, fn)
}

// Run consumes decoded frames until ctx is done or in is closed. It also
// drives the watchdog. Run returns ctx.Err() on cancellation and nil when
// in is closed; either way the engine ends in StateClosed.
func (e *Engine) Run(ctx context.Context, in <-chan protocol.Message) error {
	tick := e.timeout / 4
	if tick < 5*time.Millisecond {
		tick = 5 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Disconnected()
			return ctx.Err()
		case m, ok := <-in:
			if !ok {
				e.Disconnected()
				return nil
			}
			e.Handle(m)
		case <-ticker.C:
			e.do(func() { e.checkWatchdog(e.now()) })
		}
	}
}

// Handle processes one frame from the host.
func (e *Engine) Handle(m protocol.Message) {
	e.do(func() {
		switch m := m.(type) {
		case *protocol.Snapshot:
			e.onSnapshot(m.Scene())
		case *protocol.Delta:
			e.onDelta(m.Scene())
		case *protocol.Result:
			e.onResult(m)
		default:
			canvas.Logger().Debug("mirror: ignoring frame", "type", m.Type())
		}
	})
}

// Connected attaches a live transport.
//
// The transport is expected to deliver a snapshot on its own. Until it
// does, deltas are discarded; if nothing arrives within the resync timeout
// the engine requests one explicitly.
func (e *Engine) Connected(s Sender) {
	e.do(func() {
		e.sender = s
		e.arm()
		if e.state != StateEmpty {
			e.setState(StateResyncing, "connected")
		}
		canvas.Logger().Info("mirror: connected", "version", e.base.Version(), "queued", e.queue.Len())
	})
}

// Disconnected detaches the transport. The engine keeps its graph, moves
// every sent but unacknowledged edit back to the queue and accepts local
// edits offline.
func (e *Engine) Disconnected() {
	e.do(func() {
		if e.state == StateClosed && e.sender == nil {
			return
		}
		e.sender = nil
		e.deadline = time.Time{}
		e.requeueSent()
		e.setState(StateClosed, "disconnected")
		e.rebuildView()
		canvas.Logger().Info("mirror: disconnected", "version", e.base.Version(), "queued", e.queue.Len())
	})
}

// Edit submits a local edit.
//
// When synced with nothing queued, the edit is sent right away and takes
// effect when the host's delta arrives. It stays pending until the host's
// result; a transport lost before then puts it back in the queue. Offline,
// it is applied to the displayed graph at once and queued; an edit that
// cannot apply locally is rejected with the same error the host would
// return. In every other state it queues behind the edits already pending.
func (e *Engine) Edit(op scene.Op) error {
	if err := op.Check(); err != nil {
		return err
	}
	var err error
	e.do(func() {
		switch {
		case e.sender == nil:
			next := e.view.Load().Clone()
			if err = next.Apply([]scene.Op{op}); err != nil {
				return
			}
			e.view.Store(next)
			e.queue.Push(op)
		case e.state == StateSynced && e.inflight == nil && e.queue.Len() == 0:
			item := QueuedEdit{Seq: e.queue.NextSeq(), Op: op.Clone()}
			if sendErr := e.send(&protocol.Edit{Seq: item.Seq, Ops: []scene.Op{op.Clone()}}); sendErr != nil {
				e.queue.pushEdit(item)
				return
			}
			e.unacked = append(e.unacked, item)
		default:
			e.queue.Push(op)
		}
	})
	return err
}

// do runs fn under the engine lock and then notifies observers of the
// transitions fn produced.
func (e *Engine) do(fn func()) {
	e.mu.Lock()
	fn()
	ts := e.pending
	e.pending = nil
	obs := e.observers
	e.mu.Unlock()

	for _, t := range ts {
		for _, o := range obs {
			o(t)
		}
	}
}

func (e *Engine) setState(to State, reason string) {
	if e.state == to {
		return
	}
	t := Transition{From: e.state, To: to, Version: e.base.Version(), Reason: reason}
	e.state = to
	e.pending = append(e.pending, t)
	canvas.Logger().Debug("mirror: transition",
		"from", t.From.String(), "to", t.To.String(), "version", t.Version, "reason", reason)
}

func (e *Engine) onSnapshot(s scene.Snapshot) {
	if e.state == StateClosed {
		return
	}
	g, err := scene.FromSnapshot(s)
	if err != nil {
		canvas.Logger().Warn("mirror: rejecting snapshot", "version", s.Version, "err", err)
		e.requestResync("bad snapshot")
		return
	}
	e.install(g)
	e.deadline = time.Time{}
	e.afterSync("snapshot")
}

func (e *Engine) onDelta(d scene.Delta) {
	v := e.base.Version()
	switch {
	case e.state == StateClosed:
		return
	case e.state == StateEmpty:
		canvas.Logger().Debug("mirror: delta before snapshot", "base_version", d.BaseVersion)
		e.requestResync("delta before snapshot")
		return
	case e.state == StateResyncing:
		// Only a snapshot ends a resync.
		canvas.Logger().Debug("mirror: discarding delta while resyncing",
			"base_version", d.BaseVersion, "version", d.NewVersion)
		return
	case d.NewVersion <= v:
		// Already covered by the snapshot installed last.
		return
	case d.BaseVersion != v:
		canvas.Logger().Warn("mirror: version mismatch",
			"have", v, "base_version", d.BaseVersion, "version", d.NewVersion)
		e.requestResync("version mismatch")
		return
	}

	next := e.base.Clone()
	if err := next.ApplyDelta(d); err != nil {
		canvas.Logger().Warn("mirror: delta rejected", "base_version", d.BaseVersion, "err", err)
		e.requestResync("delta rejected")
		return
	}
	e.install(next)
}

func (e *Engine) onResult(r *protocol.Result) {
	if i := slices.IndexFunc(e.unacked, func(q QueuedEdit) bool { return q.Seq == r.Seq }); i >= 0 {
		if err := r.Err(); err != nil {
			canvas.Logger().Warn("mirror: edit rejected",
				"seq", r.Seq, "op", e.unacked[i].Op.Kind.String(), "id", e.unacked[i].Op.ID, "err", err)
		}
		e.unacked = slices.Delete(e.unacked, i, i+1)
		return
	}
	if e.inflight == nil || r.Seq != e.inflight.Seq {
		canvas.Logger().Debug("mirror: result for unknown edit", "seq", r.Seq)
		return
	}
	if err := r.Err(); err != nil {
		canvas.Logger().Warn("mirror: dropping replayed edit",
			"seq", r.Seq, "op", e.inflight.Op.Kind.String(), "id", e.inflight.Op.ID, "err", err)
	}
	e.inflight = nil
	e.deadline = time.Time{}
	if e.state == StateReplaying {
		e.sendNext()
	}
}

// requeueSent moves every edit sent on the lost transport back into the
// queue, ahead of the edits never sent.
func (e *Engine) requeueSent() {
	if e.inflight != nil {
		e.queue.PushFront(*e.inflight)
		e.inflight = nil
	}
	for i := len(e.unacked) - 1; i >= 0; i-- {
		e.queue.PushFront(e.unacked[i])
	}
	e.unacked = nil
}

// install makes g the authoritative and displayed graph. Optimistic local
// state is discarded.
func (e *Engine) install(g *scene.Graph) {
	e.base = g
	e.view.Store(g)
}

// afterSync picks the state that follows a completed resync.
func (e *Engine) afterSync(reason string) {
	switch {
	case e.inflight != nil:
		e.setState(StateReplaying, reason)
		e.arm()
	case e.queue.Len() > 0:
		e.setState(StateReplaying, reason)
		e.sendNext()
	default:
		e.setState(StateSynced, reason)
	}
}

func (e *Engine) sendNext() {
	item, ok := e.queue.Front()
	if !ok {
		e.setState(StateSynced, "replay done")
		return
	}
	e.queue.Pop()
	if err := e.send(&protocol.Edit{Seq: item.Seq, Ops: []scene.Op{item.Op}}); err != nil {
		e.queue.PushFront(item)
		return
	}
	e.inflight = &item
	e.arm()
}

func (e *Engine) requestResync(reason string) {
	e.setState(StateResyncing, reason)
	if e.sender == nil {
		return
	}
	_ = e.send(&protocol.Resync{HaveVersion: e.base.Version()})
	e.arm()
}

func (e *Engine) send(m protocol.Message) error {
	if e.sender == nil {
		return canvas.ErrTransportClosed
	}
	err := e.sender.Send(m)
	if err != nil && !errors.Is(err, canvas.ErrTransportClosed) {
		canvas.Logger().Warn("mirror: send failed", "type", m.Type(), "err", err)
	}
	return err
}

// arm starts (or restarts) the watchdog. A new request supersedes the one
// in flight.
func (e *Engine) arm() {
	e.deadline = e.now().Add(e.timeout)
}

func (e *Engine) checkWatchdog(now time.Time) {
	if e.deadline.IsZero() || now.Before(e.deadline) {
		return
	}
	e.deadline = time.Time{}
	if e.sender == nil {
		return
	}
	canvas.Logger().Warn("mirror: no answer from host, resyncing",
		"state", e.state.String(), "version", e.base.Version())
	if e.inflight != nil {
		e.queue.PushFront(*e.inflight)
		e.inflight = nil
	}
	e.requestResync("timeout")
}

// rebuildView replays queued edits on top of the authoritative graph so
// the offline view reflects them. Edits that no longer apply are kept in
// the queue; the host decides their fate on replay.
func (e *Engine) rebuildView() {
	if e.queue.Len() == 0 {
		e.view.Store(e.base)
		return
	}
	g := e.base.Clone()
	for _, q := range e.queue.items {
		if err := g.Apply([]scene.Op{q.Op}); err != nil {
			canvas.Logger().Debug("mirror: queued edit does not apply locally", "seq", q.Seq, "err", err)
		}
	}
	e.view.Store(g)
}
