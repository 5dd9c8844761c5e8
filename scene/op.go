// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"fmt"

	"github.com/gogpu/canvas"
)

// OpKind is the type of a scene mutation.
type OpKind string

// Mutation types.
const (
	OpInsert OpKind = "insert"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// String returns the wire name of the op kind.
func (k OpKind) String() string {
	switch k {
	case OpInsert, OpUpdate, OpDelete:
		return string(k)
	default:
		return unknownStr
	}
}

// Op is a single mutation of the scene graph.
//
// Insert carries the full Element, Update carries a Patch, Delete carries
// only the id.
type Op struct {
	Kind    OpKind   `json:"op"`
	ID      string   `json:"id"`
	Element *Element `json:"element,omitempty"`
	Patch   *Patch   `json:"fields,omitempty"`
}

// Insert returns an op adding e to the graph.
func Insert(e Element) Op {
	c := e.Clone()
	return Op{Kind: OpInsert, ID: e.ID, Element: &c}
}

// Update returns an op patching the element id.
func Update(id string, p Patch) Op {
	c := p.Clone()
	return Op{Kind: OpUpdate, ID: id, Patch: &c}
}

// Delete returns an op removing the element id.
func Delete(id string) Op {
	return Op{Kind: OpDelete, ID: id}
}

// Clone returns a deep copy of op.
func (op Op) Clone() Op {
	if op.Element != nil {
		e := op.Element.Clone()
		op.Element = &e
	}
	if op.Patch != nil {
		p := op.Patch.Clone()
		op.Patch = &p
	}
	return op
}

// Check validates the op's shape without looking at any graph: the op kind
// is known, the id is set, and the op carries what its kind needs.
func (op Op) Check() error {
	if op.ID == "" {
		return &OpError{Op: op.Kind, Err: fmt.Errorf("empty id: %w", canvas.ErrInvalidOp)}
	}
	switch op.Kind {
	case OpInsert:
		if op.Element == nil {
			return &OpError{Op: op.Kind, ID: op.ID, Err: fmt.Errorf("missing element: %w", canvas.ErrInvalidOp)}
		}
		if op.Element.ID != op.ID {
			return &OpError{Op: op.Kind, ID: op.ID, Err: fmt.Errorf("element id %q: %w", op.Element.ID, canvas.ErrInvalidOp)}
		}
		if err := op.Element.Validate(); err != nil {
			return &OpError{Op: op.Kind, ID: op.ID, Err: err}
		}
	case OpUpdate:
		if op.Patch == nil {
			return &OpError{Op: op.Kind, ID: op.ID, Err: fmt.Errorf("missing fields: %w", canvas.ErrInvalidOp)}
		}
	case OpDelete:
	default:
		return &OpError{Op: op.Kind, ID: op.ID, Err: fmt.Errorf("unknown op %q: %w", string(op.Kind), canvas.ErrInvalidOp)}
	}
	return nil
}

// CloneOps deep-copies a batch.
func CloneOps(ops []Op) []Op {
	if ops == nil {
		return nil
	}
	out := make([]Op, len(ops))
	for i, op := range ops {
		out[i] = op.Clone()
	}
	return out
}

// OpError reports which op of a batch was rejected. Err wraps one of
// canvas.ErrDuplicateID, canvas.ErrUnknownID or canvas.ErrInvalidOp.
type OpError struct {
	Index int
	Op    OpKind
	ID    string
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("scene: op %d %s %q: %v", e.Index, e.Op, e.ID, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Delta records one committed batch: applying Ops to a graph at
// BaseVersion yields the graph at NewVersion. NewVersion is always
// BaseVersion+1.
type Delta struct {
	BaseVersion uint64
	NewVersion  uint64
	Ops         []Op
}

// Snapshot is a complete copy of a graph at one version. Elements are in
// insertion order, so a graph rebuilt from a snapshot draws ties in the
// same order as the original.
type Snapshot struct {
	Version  uint64
	Elements []Element
}
