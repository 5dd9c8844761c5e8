// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/internal/codec"
)

// Codec encodes and decodes frames. Implementations are symmetric:
// Decode(Encode(m)) yields a message equal to m.
type Codec interface {
	Encode(m Message) ([]byte, error)

	// Decode parses one frame. Any failure wraps canvas.ErrMalformedFrame.
	Decode(data []byte) (Message, error)

	// Binary reports whether frames go in WebSocket binary messages.
	Binary() bool
}

// JSONCodec is the canonical text codec.
type JSONCodec struct{}

// CBORCodec encodes the same schema as JSONCodec in deterministic CBOR.
type CBORCodec struct{}

var (
	_ Codec = JSONCodec{}
	_ Codec = CBORCodec{}
)

// Encode implements Codec.
func (JSONCodec) Encode(m Message) ([]byte, error) {
	env, err := envelope(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode implements Codec.
func (JSONCodec) Decode(data []byte) (Message, error) {
	return decode(data, json.Unmarshal)
}

// Binary implements Codec.
func (JSONCodec) Binary() bool { return false }

// Encode implements Codec.
func (CBORCodec) Encode(m Message) ([]byte, error) {
	env, err := envelope(m)
	if err != nil {
		return nil, err
	}
	return codec.Marshal(env)
}

// Decode implements Codec.
func (CBORCodec) Decode(data []byte) (Message, error) {
	return decode(data, codec.Unmarshal)
}

// Binary implements Codec.
func (CBORCodec) Binary() bool { return true }

// envelope flattens the type discriminator into the frame object.
func envelope(m Message) (any, error) {
	switch v := m.(type) {
	case *Snapshot:
		return struct {
			Type Type `json:"type"`
			Snapshot
		}{TypeSnapshot, *v}, nil
	case *Delta:
		return struct {
			Type Type `json:"type"`
			Delta
		}{TypeDelta, *v}, nil
	case *Interact:
		return struct {
			Type Type `json:"type"`
			Interact
		}{TypeInteract, *v}, nil
	case *Resync:
		return struct {
			Type Type `json:"type"`
			Resync
		}{TypeResync, *v}, nil
	case *Edit:
		return struct {
			Type Type `json:"type"`
			Edit
		}{TypeEdit, *v}, nil
	case *Result:
		return struct {
			Type Type `json:"type"`
			Result
		}{TypeResult, *v}, nil
	default:
		return nil, fmt.Errorf("protocol: cannot encode %T", m)
	}
}

func decode(data []byte, unmarshal func([]byte, any) error) (Message, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("protocol: %w: %v", canvas.ErrMalformedFrame, err)
	}

	var m Message
	switch head.Type {
	case TypeSnapshot:
		m = &Snapshot{}
	case TypeDelta:
		m = &Delta{}
	case TypeInteract:
		m = &Interact{}
	case TypeResync:
		m = &Resync{}
	case TypeEdit:
		m = &Edit{}
	case TypeResult:
		m = &Result{}
	default:
		return nil, fmt.Errorf("protocol: %w: unknown type %q", canvas.ErrMalformedFrame, string(head.Type))
	}

	if err := unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("protocol: %w: %s: %v", canvas.ErrMalformedFrame, head.Type, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("protocol: %w: %s: %v", canvas.ErrMalformedFrame, head.Type, err)
	}
	return m, nil
}
