package mirror

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/protocol"
	"github.com/gogpu/canvas/scene"
	"github.com/gogpu/canvas/store"
)

func box(id string, x float64) scene.Element {
	return scene.Element{
		ID:        id,
		Kind:      scene.KindShape,
		Transform: scene.Transform{X: x, Width: 10, Height: 10},
		Color:     scene.Black,
		Payload:   &scene.ShapePayload{Shape: "rect"},
	}
}

// fakeHost plays the host side of a connection in-process. Frames pass
// through the JSON codec so the wire format is exercised as well.
type fakeHost struct {
	t      *testing.T
	store  *store.Store
	sub    *store.Subscription
	out    []protocol.Message
	closed bool
}

func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	return &fakeHost{t: t, store: store.New(), closed: true}
}

func (h *fakeHost) Send(m protocol.Message) error {
	if h.closed {
		return canvas.ErrTransportClosed
	}
	h.out = append(h.out, m)
	return nil
}

func (h *fakeHost) roundTrip(m protocol.Message) protocol.Message {
	h.t.Helper()
	data, err := protocol.JSONCodec{}.Encode(m)
	if err != nil {
		h.t.Fatalf("encode %s: %v", m.Type(), err)
	}
	out, err := protocol.JSONCodec{}.Decode(data)
	if err != nil {
		h.t.Fatalf("decode %s: %v", m.Type(), err)
	}
	return out
}

// connect attaches e. Like the hub, the host opens every connection with a
// snapshot.
func (h *fakeHost) connect(e *Engine) {
	h.t.Helper()
	h.closed = false
	e.Connected(h)
	sub, snap := h.store.SubscribeAt(64)
	h.sub = sub
	e.Handle(h.roundTrip(protocol.NewSnapshot(snap)))
	h.pump(e)
}

func (h *fakeHost) disconnect(e *Engine) {
	h.closed = true
	if h.sub != nil {
		h.sub.Close()
		h.sub = nil
	}
	h.out = nil
	e.Disconnected()
}

// pump delivers frames both ways until the connection is quiet.
func (h *fakeHost) pump(e *Engine) {
	h.t.Helper()
	for range 1000 {
		progressed := false
		if h.sub != nil {
		drain:
			for {
				select {
				case d := <-h.sub.C:
					e.Handle(h.roundTrip(protocol.NewDelta(d)))
					progressed = true
				default:
					break drain
				}
			}
		}
		if len(h.out) > 0 {
			m := h.roundTrip(h.out[0])
			h.out = h.out[1:]
			progressed = true
			switch m := m.(type) {
			case *protocol.Edit:
				d, err := h.store.ApplyBatch(m.Ops)
				v := d.NewVersion
				if err != nil {
					v = h.store.Version()
				}
				e.Handle(h.roundTrip(protocol.NewResult(m.Seq, v, err)))
			case *protocol.Resync:
				snap := h.store.Snapshot()
				if h.sub != nil {
					snap = h.sub.Restart()
				}
				e.Handle(h.roundTrip(protocol.NewSnapshot(snap)))
			}
		}
		if !progressed {
			return
		}
	}
	h.t.Fatal("pump did not settle")
}

func TestEngineInitialSnapshot(t *testing.T) {
	h := newFakeHost(t)
	_, _ = h.store.Apply(scene.Insert(box("a", 0)))

	e := NewEngine()
	if e.State() != StateEmpty {
		t.Fatalf("new engine state = %s, want empty", e.State())
	}
	h.connect(e)

	if e.State() != StateSynced || e.Version() != 1 {
		t.Errorf("after snapshot: state %s version %d", e.State(), e.Version())
	}
	if !e.Graph().Has("a") {
		t.Error("graph lacks element from snapshot")
	}
}

func TestEngineDeltaInEmptyRequestsResync(t *testing.T) {
	h := newFakeHost(t)
	h.closed = false
	e := NewEngine()
	e.Connected(h)

	e.Handle(&protocol.Delta{BaseVersion: 4, Version: 5})
	if e.State() != StateResyncing {
		t.Fatalf("state = %s, want resyncing", e.State())
	}
	if len(h.out) != 1 || h.out[0].Type() != protocol.TypeResync {
		t.Errorf("sent %v, want one resync frame", h.out)
	}
}

func TestEngineDeltaOrdering(t *testing.T) {
	h := newFakeHost(t)
	e := NewEngine()
	h.connect(e)

	d1, _ := h.store.Apply(scene.Insert(box("a", 0)))
	d2, _ := h.store.Apply(scene.Insert(box("b", 0)))
	d3, _ := h.store.Apply(scene.Insert(box("c", 0)))
	h.sub.Close()
	h.sub = nil

	e.Handle(protocol.NewDelta(d1))
	if e.Version() != 1 {
		t.Fatalf("Version() = %d, want 1", e.Version())
	}
	// Duplicate delivery is ignored.
	e.Handle(protocol.NewDelta(d1))
	if e.State() != StateSynced || e.Version() != 1 {
		t.Fatalf("duplicate delta changed state to %s v%d", e.State(), e.Version())
	}

	// A gap forces a resync and the out-of-order delta is discarded.
	e.Handle(protocol.NewDelta(d3))
	if e.State() != StateResyncing || e.Version() != 1 {
		t.Fatalf("gap: state %s version %d", e.State(), e.Version())
	}
	if got := h.out[len(h.out)-1]; got.Type() != protocol.TypeResync || got.(*protocol.Resync).HaveVersion != 1 {
		t.Errorf("last sent frame = %#v, want resync from 1", got)
	}
	e.Handle(protocol.NewDelta(d3))
	if e.Version() != 1 {
		t.Error("delta applied while resyncing from a different base")
	}

	// Even a delta that fits the current version waits for the snapshot.
	e.Handle(protocol.NewDelta(d2))
	if e.State() != StateResyncing || e.Version() != 1 || e.Graph().Has("b") {
		t.Fatalf("fitting delta while resyncing: state %s version %d", e.State(), e.Version())
	}

	e.Handle(protocol.NewSnapshot(h.store.Snapshot()))
	if e.State() != StateSynced || e.Version() != 3 {
		t.Errorf("after snapshot: state %s version %d", e.State(), e.Version())
	}
	if e.Graph().Digest() != h.store.Graph().Digest() {
		t.Error("mirror differs from host after resync")
	}
}

func TestEngineReconnectWaitsForSnapshot(t *testing.T) {
	h := newFakeHost(t)
	e := NewEngine()
	h.connect(e)
	h.disconnect(e)

	d, _ := h.store.Apply(scene.Insert(box("a", 0)))
	h.closed = false
	e.Connected(h)
	if e.State() != StateResyncing {
		t.Fatalf("state = %s, want resyncing", e.State())
	}
	e.Handle(protocol.NewDelta(d))
	if e.State() != StateResyncing || e.Version() != 0 || e.Graph().Has("a") {
		t.Fatalf("delta applied before snapshot: state %s version %d", e.State(), e.Version())
	}

	e.Handle(protocol.NewSnapshot(h.store.Snapshot()))
	if e.State() != StateSynced || e.Version() != 1 || !e.Graph().Has("a") {
		t.Errorf("after snapshot: state %s version %d", e.State(), e.Version())
	}
}

func TestEngineDeltaAllOrNothing(t *testing.T) {
	h := newFakeHost(t)
	_, _ = h.store.Apply(scene.Insert(box("a", 0)))
	e := NewEngine()
	h.connect(e)
	before := e.Graph()

	bad := &protocol.Delta{BaseVersion: 1, Version: 2, Ops: []scene.Op{
		scene.Insert(box("b", 0)),
		scene.Insert(box("a", 0)),
	}}
	e.Handle(bad)
	if e.Graph() != before || e.Graph().Has("b") {
		t.Error("partially applied delta became visible")
	}
	if e.State() != StateResyncing {
		t.Errorf("state = %s, want resyncing", e.State())
	}
}

func TestEngineSnapshotIdempotent(t *testing.T) {
	h := newFakeHost(t)
	_, _ = h.store.ApplyBatch([]scene.Op{scene.Insert(box("a", 0)), scene.Insert(box("b", 5))})
	snap := protocol.NewSnapshot(h.store.Snapshot())

	e := NewEngine()
	e.Handle(snap)
	first := e.Graph().Digest()
	e.Handle(snap)
	if e.Graph().Digest() != first {
		t.Error("applying the same snapshot twice changed the graph")
	}
	if first != h.store.Graph().Digest() {
		t.Error("mirror differs from host after snapshot")
	}
}

func TestEngineOnlineEdit(t *testing.T) {
	h := newFakeHost(t)
	e := NewEngine()
	h.connect(e)

	if err := e.Edit(scene.Insert(box("a", 0))); err != nil {
		t.Fatal(err)
	}
	if e.Graph().Has("a") {
		t.Error("online edit should not apply before the host's delta")
	}
	if n := len(e.Pending()); n != 1 {
		t.Errorf("Pending() before result = %d, want 1", n)
	}
	h.pump(e)
	if !e.Graph().Has("a") || e.Version() != 1 {
		t.Errorf("after pump: has a = %v, version %d", e.Graph().Has("a"), e.Version())
	}
	if n := len(e.Pending()); n != 0 {
		t.Errorf("Pending() after result = %d, want 0", n)
	}
}

// An online edit whose result never arrives is replayed after reconnect,
// whether or not the host applied it before the transport dropped.
func TestEngineOnlineEditSurvivesDrop(t *testing.T) {
	tests := []struct {
		name        string
		hostApplied bool
		wantVersion uint64
	}{
		{name: "lost before host", wantVersion: 1},
		{name: "applied before drop", hostApplied: true, wantVersion: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newFakeHost(t)
			e := NewEngine()
			h.connect(e)

			if err := e.Edit(scene.Insert(box("a", 0))); err != nil {
				t.Fatal(err)
			}
			if len(h.out) != 1 || h.out[0].Type() != protocol.TypeEdit {
				t.Fatalf("sent %v, want one edit", h.out)
			}
			if tt.hostApplied {
				if _, err := h.store.ApplyBatch(h.out[0].(*protocol.Edit).Ops); err != nil {
					t.Fatal(err)
				}
			}
			h.disconnect(e)

			if n := len(e.Pending()); n != 1 {
				t.Fatalf("Pending() after drop = %d, want 1", n)
			}
			if !e.Graph().Has("a") {
				t.Error("offline view lacks the unacknowledged edit")
			}

			h.connect(e)
			if e.State() != StateSynced {
				t.Fatalf("state = %s, want synced", e.State())
			}
			if n := len(e.Pending()); n != 0 {
				t.Errorf("%d edits still pending", n)
			}
			if !h.store.Graph().Has("a") || e.Version() != tt.wantVersion {
				t.Errorf("host has a = %v, mirror version %d", h.store.Graph().Has("a"), e.Version())
			}
			if e.Graph().Digest() != h.store.Graph().Digest() {
				t.Error("mirror differs from host")
			}
		})
	}
}

// Edits made offline and replayed after reconnect leave the mirror equal to
// the host, and the host equal to applying those edits in order.
func TestEngineOfflineReplayEquivalence(t *testing.T) {
	h := newFakeHost(t)
	_, _ = h.store.ApplyBatch([]scene.Op{scene.Insert(box("a", 0)), scene.Insert(box("b", 0))})

	e := NewEngine()
	h.connect(e)
	h.disconnect(e)
	if e.State() != StateClosed {
		t.Fatalf("state = %s, want closed", e.State())
	}

	x := 50.0
	offline := []scene.Op{
		scene.Insert(box("c", 20)),
		scene.Update("a", scene.Patch{Transform: &scene.Transform{X: x, Width: 5, Height: 5}}),
		scene.Delete("b"),
	}
	for _, op := range offline {
		if err := e.Edit(op); err != nil {
			t.Fatalf("offline Edit(%s %s): %v", op.Kind, op.ID, err)
		}
	}
	if !e.Graph().Has("c") || e.Graph().Has("b") {
		t.Error("offline edits not applied optimistically")
	}
	if e.Version() != 1 {
		t.Errorf("offline edits bumped version to %d", e.Version())
	}
	if len(e.Pending()) != 3 {
		t.Fatalf("Pending() = %d, want 3", len(e.Pending()))
	}

	// Meanwhile the host moves on.
	_, _ = h.store.Apply(scene.Insert(box("d", 30)))

	expected := h.store.Graph()
	for _, op := range offline {
		if err := expected.Apply([]scene.Op{op}); err != nil {
			t.Fatal(err)
		}
	}

	h.connect(e)

	if e.State() != StateSynced {
		t.Fatalf("state after replay = %s, want synced", e.State())
	}
	if n := len(e.Pending()); n != 0 {
		t.Errorf("%d edits still pending", n)
	}
	host := h.store.Graph()
	if e.Graph().Digest() != host.Digest() {
		t.Error("mirror differs from host after replay")
	}
	if e.Version() != 5 {
		t.Errorf("Version() = %d, want 5 (one per replayed edit)", e.Version())
	}
	if got, want := ids(host), ids(expected); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("host elements %v, want %v", got, want)
	}
}

func ids(g *scene.Graph) []string {
	var out []string
	for _, e := range g.Elements() {
		out = append(out, e.ID)
	}
	return out
}

func TestEngineReplayDropsRejectedEdit(t *testing.T) {
	h := newFakeHost(t)
	_, _ = h.store.Apply(scene.Insert(box("a", 0)))

	e := NewEngine()
	h.connect(e)
	h.disconnect(e)

	z := 3
	_ = e.Edit(scene.Update("a", scene.Patch{ZIndex: &z}))
	_ = e.Edit(scene.Insert(box("n", 0)))

	// Someone else deletes "a" while this mirror is offline.
	_, _ = h.store.Apply(scene.Delete("a"))

	h.connect(e)

	if e.State() != StateSynced {
		t.Fatalf("state = %s, want synced", e.State())
	}
	g := e.Graph()
	if g.Has("a") || !g.Has("n") {
		t.Errorf("graph = %v, want only n", ids(g))
	}
	if len(e.Pending()) != 0 {
		t.Error("rejected edit was retried")
	}
}

func TestEngineOfflineEditRejectedLocally(t *testing.T) {
	e := NewEngine()
	err := e.Edit(scene.Update("ghost", scene.Patch{}))
	if !errors.Is(err, canvas.ErrUnknownID) {
		t.Errorf("Edit() error = %v, want ErrUnknownID", err)
	}
	if len(e.Pending()) != 0 {
		t.Error("locally rejected edit was queued")
	}
}

func TestEngineEditsQueueWhileResyncing(t *testing.T) {
	h := newFakeHost(t)
	e := NewEngine()
	h.connect(e)

	e.Handle(&protocol.Delta{BaseVersion: 7, Version: 8})
	if e.State() != StateResyncing {
		t.Fatalf("state = %s", e.State())
	}
	h.out = nil
	if err := e.Edit(scene.Insert(box("q", 0))); err != nil {
		t.Fatal(err)
	}
	if len(h.out) != 0 {
		t.Error("edit sent while resyncing")
	}
	if len(e.Pending()) != 1 {
		t.Fatalf("Pending() = %d, want 1", len(e.Pending()))
	}

	e.Handle(protocol.NewSnapshot(h.store.Snapshot()))
	if e.State() != StateReplaying {
		t.Fatalf("state = %s, want replaying", e.State())
	}
	h.pump(e)
	if e.State() != StateSynced || !e.Graph().Has("q") {
		t.Errorf("state %s, has q %v", e.State(), e.Graph().Has("q"))
	}
}

func TestEngineWatchdog(t *testing.T) {
	h := newFakeHost(t)
	h.closed = false
	e := NewEngine(WithResyncTimeout(time.Second))
	e.Connected(h)

	e.do(func() { e.checkWatchdog(time.Now()) })
	if e.State() != StateEmpty || len(h.out) != 0 {
		t.Fatal("watchdog fired before the timeout")
	}

	e.do(func() { e.checkWatchdog(time.Now().Add(2 * time.Second)) })
	if e.State() != StateResyncing {
		t.Fatalf("state = %s, want resyncing", e.State())
	}
	if len(h.out) != 1 || h.out[0].Type() != protocol.TypeResync {
		t.Fatalf("sent %v, want one resync", h.out)
	}

	// The new request re-armed the watchdog, superseding the first.
	e.do(func() { e.checkWatchdog(time.Now().Add(4 * time.Second)) })
	if len(h.out) != 2 {
		t.Errorf("re-request count = %d, want 2", len(h.out))
	}
}

func TestEngineObserve(t *testing.T) {
	h := newFakeHost(t)
	e := NewEngine()
	var got []string
	e.Observe(func(tr Transition) {
		// Observers run outside the lock.
		_ = e.State()
		got = append(got, tr.From.String()+">"+tr.To.String())
	})

	h.connect(e)
	h.disconnect(e)
	h.connect(e)

	want := "[empty>synced synced>closed closed>resyncing resyncing>synced]"
	if fmt.Sprint(got) != want {
		t.Errorf("transitions = %v, want %s", got, want)
	}
}

func TestEngineRun(t *testing.T) {
	h := newFakeHost(t)
	_, _ = h.store.Apply(scene.Insert(box("a", 0)))

	e := NewEngine(WithResyncTimeout(time.Hour))
	in := make(chan protocol.Message, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, in) }()

	in <- protocol.NewSnapshot(h.store.Snapshot())
	deadline := time.After(2 * time.Second)
	for e.Version() != 1 {
		select {
		case <-deadline:
			t.Fatal("Run did not apply the snapshot")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	if e.State() != StateClosed {
		t.Errorf("state after Run = %s, want closed", e.State())
	}
	if !e.Graph().Has("a") {
		t.Error("closed engine should keep its graph")
	}
}
