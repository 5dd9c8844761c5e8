// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package protocol defines the frames exchanged between a host and its
// mirrors and the codecs that put them on the wire.
//
// Every frame is an object with a "type" discriminator. JSON is the
// canonical form and travels in WebSocket text frames; CBOR carries the
// same schema in binary frames.
package protocol

import (
	"errors"
	"fmt"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/scene"
)

// Type is the frame discriminator.
type Type string

// Frame types.
const (
	TypeSnapshot Type = "snapshot"
	TypeDelta    Type = "delta"
	TypeInteract Type = "interact"
	TypeResync   Type = "resync"
	TypeEdit     Type = "edit"
	TypeResult   Type = "result"
)

// Message is one decoded frame. The set of implementations is closed.
type Message interface {
	Type() Type
	validate() error
}

// Snapshot carries a complete graph (host to mirror).
type Snapshot struct {
	Version  uint64          `json:"version"`
	Elements []scene.Element `json:"elements"`
}

// NewSnapshot converts a scene snapshot to a frame.
func NewSnapshot(s scene.Snapshot) *Snapshot {
	elems := s.Elements
	if elems == nil {
		elems = []scene.Element{}
	}
	return &Snapshot{Version: s.Version, Elements: elems}
}

// Type implements Message.
func (*Snapshot) Type() Type { return TypeSnapshot }

// Scene converts the frame to a scene snapshot.
func (m *Snapshot) Scene() scene.Snapshot {
	return scene.Snapshot{Version: m.Version, Elements: m.Elements}
}

func (m *Snapshot) validate() error {
	for i, e := range m.Elements {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// Delta carries one committed batch (host to mirror).
type Delta struct {
	BaseVersion uint64     `json:"base_version"`
	Version     uint64     `json:"version"`
	Ops         []scene.Op `json:"ops"`
}

// NewDelta converts a scene delta to a frame.
func NewDelta(d scene.Delta) *Delta {
	return &Delta{BaseVersion: d.BaseVersion, Version: d.NewVersion, Ops: d.Ops}
}

// Type implements Message.
func (*Delta) Type() Type { return TypeDelta }

// Scene converts the frame to a scene delta.
func (m *Delta) Scene() scene.Delta {
	return scene.Delta{BaseVersion: m.BaseVersion, NewVersion: m.Version, Ops: m.Ops}
}

func (m *Delta) validate() error {
	if m.Version != m.BaseVersion+1 {
		return fmt.Errorf("version %d does not follow base_version %d", m.Version, m.BaseVersion)
	}
	for i, op := range m.Ops {
		if err := op.Check(); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
	}
	return nil
}

// Touch is a pointer or finger position in element space. Element names
// the touched element when the sender already knows it.
type Touch struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Element *string `json:"element"`
}

// Interact reports a user interaction (mirror to host).
type Interact struct {
	Touch *Touch  `json:"touch"`
	Voice *string `json:"voice"`
}

// Type implements Message.
func (*Interact) Type() Type { return TypeInteract }

func (m *Interact) validate() error {
	if m.Touch == nil && m.Voice == nil {
		return errors.New("interact without touch or voice")
	}
	return nil
}

// Resync asks the host for a fresh snapshot. HaveVersion is the mirror's
// current version and is only logged.
type Resync struct {
	HaveVersion uint64 `json:"have_version"`
}

// Type implements Message.
func (*Resync) Type() Type { return TypeResync }

func (*Resync) validate() error { return nil }

// Edit asks the host to commit ops as one batch (mirror to host). Seq is
// the mirror's local sequence number and is echoed in the Result.
type Edit struct {
	Seq uint64     `json:"seq"`
	Ops []scene.Op `json:"ops"`
}

// Type implements Message.
func (*Edit) Type() Type { return TypeEdit }

func (m *Edit) validate() error {
	if len(m.Ops) == 0 {
		return errors.New("edit without ops")
	}
	return nil
}

// Result reports the outcome of an Edit (host to mirror). On success Error
// is nil and Version is the version the edit produced; on failure Version
// is the host's current version.
type Result struct {
	Seq     uint64     `json:"seq"`
	Version uint64     `json:"version"`
	Error   *ErrorCode `json:"error"`
	Message *string    `json:"message"`
}

// Type implements Message.
func (*Result) Type() Type { return TypeResult }

func (m *Result) validate() error {
	if m.Error != nil && !m.Error.Valid() {
		return fmt.Errorf("unknown error code %q", string(*m.Error))
	}
	return nil
}

// NewResult builds the Result for an edit that produced version, or failed
// with err.
func NewResult(seq, version uint64, err error) *Result {
	r := &Result{Seq: seq, Version: version}
	if err != nil {
		code := CodeOf(err)
		msg := err.Error()
		r.Error = &code
		r.Message = &msg
	}
	return r
}

// Err returns the sentinel error matching the result's code, or nil.
func (m *Result) Err() error {
	if m.Error == nil {
		return nil
	}
	return m.Error.Err()
}

// ErrorCode classifies a rejected edit on the wire.
type ErrorCode string

// Error codes.
const (
	CodeDuplicateID ErrorCode = "duplicate_id"
	CodeUnknownID   ErrorCode = "unknown_id"
	CodeInvalidOp   ErrorCode = "invalid_op"
)

// Valid reports whether c is a known code.
func (c ErrorCode) Valid() bool {
	switch c {
	case CodeDuplicateID, CodeUnknownID, CodeInvalidOp:
		return true
	default:
		return false
	}
}

// Err returns the sentinel error for c.
func (c ErrorCode) Err() error {
	switch c {
	case CodeDuplicateID:
		return canvas.ErrDuplicateID
	case CodeUnknownID:
		return canvas.ErrUnknownID
	default:
		return canvas.ErrInvalidOp
	}
}

// CodeOf maps a store error to its wire code. Anything that is not a
// duplicate or unknown id is reported as invalid_op.
func CodeOf(err error) ErrorCode {
	switch {
	case errors.Is(err, canvas.ErrDuplicateID):
		return CodeDuplicateID
	case errors.Is(err, canvas.ErrUnknownID):
		return CodeUnknownID
	default:
		return CodeInvalidOp
	}
}
