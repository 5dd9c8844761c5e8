// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"fmt"
	"slices"

	"github.com/zeebo/blake3"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/internal/codec"
)

// Graph is a versioned set of elements keyed by id.
//
// Elements keep the order in which they were inserted. Draw order sorts
// by ZIndex and falls back to insertion order for ties.
type Graph struct {
	version uint64
	elems   []Element
	index   map[string]int
}

// NewGraph returns an empty graph at version 0.
func NewGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

// FromSnapshot builds a graph holding exactly the snapshot's elements at
// the snapshot's version.
func FromSnapshot(s Snapshot) (*Graph, error) {
	g := &Graph{
		version: s.Version,
		elems:   make([]Element, 0, len(s.Elements)),
		index:   make(map[string]int, len(s.Elements)),
	}
	for i, e := range s.Elements {
		if err := e.Validate(); err != nil {
			return nil, &OpError{Index: i, Op: OpInsert, ID: e.ID, Err: err}
		}
		if _, dup := g.index[e.ID]; dup {
			return nil, &OpError{Index: i, Op: OpInsert, ID: e.ID, Err: canvas.ErrDuplicateID}
		}
		g.index[e.ID] = len(g.elems)
		g.elems = append(g.elems, e.Clone())
	}
	return g, nil
}

// Version returns the graph version.
func (g *Graph) Version() uint64 { return g.version }

// Len returns the number of elements.
func (g *Graph) Len() int { return len(g.elems) }

// Has reports whether an element with id exists.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Get returns a copy of the element with id.
func (g *Graph) Get(id string) (Element, bool) {
	i, ok := g.index[id]
	if !ok {
		return Element{}, false
	}
	return g.elems[i].Clone(), true
}

// Elements returns copies of all elements in insertion order.
func (g *Graph) Elements() []Element {
	out := make([]Element, len(g.elems))
	for i, e := range g.elems {
		out[i] = e.Clone()
	}
	return out
}

// DrawOrder returns copies of all elements sorted back to front.
func (g *Graph) DrawOrder() []Element {
	out := g.Elements()
	slices.SortStableFunc(out, func(a, b Element) int {
		return a.ZIndex - b.ZIndex
	})
	return out
}

// Hit returns the topmost element whose rectangle contains (x, y).
func (g *Graph) Hit(x, y float64) (Element, bool) {
	order := g.DrawOrder()
	for i := len(order) - 1; i >= 0; i-- {
		if order[i].Transform.Contains(x, y) {
			return order[i], true
		}
	}
	return Element{}, false
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		version: g.version,
		elems:   make([]Element, len(g.elems)),
		index:   make(map[string]int, len(g.index)),
	}
	for i, e := range g.elems {
		c.elems[i] = e.Clone()
		c.index[e.ID] = i
	}
	return c
}

// Snapshot returns a complete copy of the graph.
func (g *Graph) Snapshot() Snapshot {
	return Snapshot{Version: g.version, Elements: g.Elements()}
}

// Check validates ops against the current graph without modifying it.
// Ops are checked in order, each seeing the effect of the ones before.
// The returned error is an *OpError naming the first rejected op.
func (g *Graph) Check(ops []Op) error {
	// Overlay of ids touched by earlier ops in the batch: true means
	// present (with the recorded kind), false means deleted.
	present := make(map[string]bool)
	kinds := make(map[string]Kind)
	lookup := func(id string) (Kind, bool) {
		if p, ok := present[id]; ok {
			return kinds[id], p
		}
		if i, ok := g.index[id]; ok {
			return g.elems[i].Kind, true
		}
		return "", false
	}

	for i, op := range ops {
		if err := op.Check(); err != nil {
			oe := err.(*OpError)
			oe.Index = i
			return oe
		}
		kind, exists := lookup(op.ID)
		switch op.Kind {
		case OpInsert:
			if exists {
				return &OpError{Index: i, Op: op.Kind, ID: op.ID, Err: canvas.ErrDuplicateID}
			}
			present[op.ID] = true
			kinds[op.ID] = op.Element.Kind
		case OpUpdate:
			if !exists {
				return &OpError{Index: i, Op: op.Kind, ID: op.ID, Err: canvas.ErrUnknownID}
			}
			if pl := op.Patch.Payload; pl != nil && pl.Kind() != kind {
				return &OpError{Index: i, Op: op.Kind, ID: op.ID,
					Err: fmt.Errorf("%s payload on %s element: %w", pl.Kind(), kind, canvas.ErrInvalidOp)}
			}
			if c := op.Patch.Color; c != nil && !c.valid() {
				return &OpError{Index: i, Op: op.Kind, ID: op.ID, Err: fmt.Errorf("color out of range: %w", canvas.ErrInvalidOp)}
			}
			if t := op.Patch.Transform; t != nil && !t.finite() {
				return &OpError{Index: i, Op: op.Kind, ID: op.ID, Err: fmt.Errorf("non-finite transform: %w", canvas.ErrInvalidOp)}
			}
			if t := op.Patch.Transform; t != nil && (t.Width < 0 || t.Height < 0) {
				return &OpError{Index: i, Op: op.Kind, ID: op.ID, Err: fmt.Errorf("negative size: %w", canvas.ErrInvalidOp)}
			}
			if !payloadFinite(op.Patch.Payload) {
				return &OpError{Index: i, Op: op.Kind, ID: op.ID, Err: fmt.Errorf("non-finite payload value: %w", canvas.ErrInvalidOp)}
			}
		case OpDelete:
			if !exists {
				return &OpError{Index: i, Op: op.Kind, ID: op.ID, Err: canvas.ErrUnknownID}
			}
			present[op.ID] = false
		}
	}
	return nil
}

// Apply applies ops as one all-or-nothing batch without changing the
// version. On error the graph is unchanged.
func (g *Graph) Apply(ops []Op) error {
	if err := g.Check(ops); err != nil {
		return err
	}
	for i, op := range ops {
		if err := g.applyOne(op); err != nil {
			// Check accepted the batch, so this is a bug in Check.
			panic(fmt.Sprintf("scene: op %d passed Check but failed: %v", i, err))
		}
	}
	return nil
}

// Commit applies ops as one batch and advances the version by one. The
// returned delta owns copies of the ops.
func (g *Graph) Commit(ops []Op) (Delta, error) {
	if err := g.Apply(ops); err != nil {
		return Delta{}, err
	}
	base := g.version
	g.version++
	return Delta{BaseVersion: base, NewVersion: g.version, Ops: CloneOps(ops)}, nil
}

// ApplyDelta applies a committed delta. The delta must start at the
// graph's version and advance it by exactly one; otherwise the error wraps
// canvas.ErrVersionMismatch and the graph is unchanged.
func (g *Graph) ApplyDelta(d Delta) error {
	if d.BaseVersion != g.version || d.NewVersion != d.BaseVersion+1 {
		return fmt.Errorf("scene: delta %d->%d on version %d: %w",
			d.BaseVersion, d.NewVersion, g.version, canvas.ErrVersionMismatch)
	}
	if err := g.Apply(d.Ops); err != nil {
		return err
	}
	g.version = d.NewVersion
	return nil
}

// Reset removes every element and sets the version.
func (g *Graph) Reset(version uint64) {
	g.version = version
	g.elems = g.elems[:0]
	clear(g.index)
}

func (g *Graph) applyOne(op Op) error {
	switch op.Kind {
	case OpInsert:
		g.index[op.ID] = len(g.elems)
		g.elems = append(g.elems, op.Element.Clone())
	case OpUpdate:
		i := g.index[op.ID]
		e, err := op.Patch.applyTo(g.elems[i])
		if err != nil {
			return err
		}
		g.elems[i] = e
	case OpDelete:
		i := g.index[op.ID]
		g.elems = slices.Delete(g.elems, i, i+1)
		delete(g.index, op.ID)
		for j := i; j < len(g.elems); j++ {
			g.index[g.elems[j].ID] = j
		}
	}
	return nil
}

// Digest returns a BLAKE3 hash of the graph's deterministic CBOR encoding.
// Two graphs with equal digests hold the same elements in the same order
// at the same version.
func (g *Graph) Digest() [32]byte {
	data, err := codec.Marshal(digestForm{Version: g.version, Elements: g.elems})
	if err != nil {
		panic("scene: digest encoding failed: " + err.Error())
	}
	return blake3.Sum256(data)
}

type digestForm struct {
	Version  uint64    `json:"version"`
	Elements []Element `json:"elements"`
}
