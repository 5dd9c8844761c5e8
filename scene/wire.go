// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/internal/codec"
)

// Elements and patches share one wire shape for JSON and CBOR. The payload
// is carried as a raw value of whichever codec is in use and decoded once
// the kind is known.

// rawPayload holds an encoded payload. It passes its bytes through
// unchanged for both JSON and CBOR.
type rawPayload []byte

func (r rawPayload) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func (r *rawPayload) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

func (r rawPayload) MarshalCBOR() ([]byte, error) {
	if len(r) == 0 {
		return []byte{codec.Null}, nil
	}
	return r, nil
}

func (r *rawPayload) UnmarshalCBOR(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

func isNullRaw(raw []byte) bool {
	if len(raw) == 0 {
		return true
	}
	if len(raw) == 1 && raw[0] == codec.Null {
		return true
	}
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

type elementWire struct {
	ID        string      `json:"id"`
	Kind      Kind        `json:"kind"`
	Transform [4]float64  `json:"transform"`
	ZIndex    int         `json:"z_index"`
	Color     *[4]float64 `json:"color,omitempty"`
	Tint      *[4]float64 `json:"tint,omitempty"`
	Payload   rawPayload  `json:"payload,omitempty"`
}

type patchWire struct {
	Kind      Kind        `json:"kind,omitempty"`
	Transform *[4]float64 `json:"transform,omitempty"`
	ZIndex    *int        `json:"z_index,omitempty"`
	Color     *[4]float64 `json:"color,omitempty"`
	Tint      *[4]float64 `json:"tint,omitempty"`
	Payload   rawPayload  `json:"payload,omitempty"`
}

type marshalFunc func(any) ([]byte, error)
type unmarshalFunc func([]byte, any) error

func (e Element) toWire(marshal marshalFunc) (elementWire, error) {
	w := elementWire{
		ID:        e.ID,
		Kind:      e.Kind,
		Transform: e.Transform.Array(),
		ZIndex:    e.ZIndex,
	}
	c := e.Color.Array()
	if e.Kind.Textured() {
		w.Tint = &c
	} else {
		w.Color = &c
	}
	if e.Payload != nil {
		raw, err := marshal(e.Payload)
		if err != nil {
			return w, fmt.Errorf("scene: element %q payload: %w", e.ID, err)
		}
		w.Payload = raw
	}
	return w, nil
}

func (e *Element) fromWire(w elementWire, unmarshal unmarshalFunc) error {
	if !w.Kind.Valid() {
		return fmt.Errorf("scene: element %q: kind %q: %w", w.ID, string(w.Kind), canvas.ErrInvalidOp)
	}
	p, err := decodePayload(w.Kind, w.Payload, unmarshal)
	if err != nil {
		return err
	}
	*e = Element{
		ID:        w.ID,
		Kind:      w.Kind,
		Transform: TransformFromArray(w.Transform),
		ZIndex:    w.ZIndex,
		Color:     White,
		Payload:   p,
	}
	// Either name is accepted; the kind decides which one is written.
	switch {
	case w.Tint != nil:
		e.Color = RGBAFromArray(*w.Tint)
	case w.Color != nil:
		e.Color = RGBAFromArray(*w.Color)
	}
	return nil
}

func (p Patch) toWire(marshal marshalFunc) (patchWire, error) {
	var w patchWire
	if p.Transform != nil {
		a := p.Transform.Array()
		w.Transform = &a
	}
	w.ZIndex = p.ZIndex
	if p.Color != nil {
		c := p.Color.Array()
		w.Color = &c
	}
	if p.Payload != nil {
		// The payload schema depends on the kind, which a patch alone
		// does not know, so it travels with the payload.
		w.Kind = p.Payload.Kind()
		raw, err := marshal(p.Payload)
		if err != nil {
			return w, fmt.Errorf("scene: patch payload: %w", err)
		}
		w.Payload = raw
	}
	return w, nil
}

func (p *Patch) fromWire(w patchWire, unmarshal unmarshalFunc) error {
	*p = Patch{ZIndex: w.ZIndex}
	if w.Transform != nil {
		t := TransformFromArray(*w.Transform)
		p.Transform = &t
	}
	switch {
	case w.Tint != nil:
		c := RGBAFromArray(*w.Tint)
		p.Color = &c
	case w.Color != nil:
		c := RGBAFromArray(*w.Color)
		p.Color = &c
	}
	if !isNullRaw(w.Payload) {
		if w.Kind == "" {
			return fmt.Errorf("scene: patch payload without kind: %w", canvas.ErrInvalidOp)
		}
		pl, err := decodePayload(w.Kind, w.Payload, unmarshal)
		if err != nil {
			return err
		}
		p.Payload = pl
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e Element) MarshalJSON() ([]byte, error) {
	w, err := e.toWire(json.Marshal)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Element) UnmarshalJSON(b []byte) error {
	var w elementWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	return e.fromWire(w, json.Unmarshal)
}

// MarshalCBOR implements cbor.Marshaler.
func (e Element) MarshalCBOR() ([]byte, error) {
	w, err := e.toWire(codec.Marshal)
	if err != nil {
		return nil, err
	}
	return codec.Marshal(w)
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (e *Element) UnmarshalCBOR(b []byte) error {
	var w elementWire
	if err := codec.Unmarshal(b, &w); err != nil {
		return err
	}
	return e.fromWire(w, codec.Unmarshal)
}

// MarshalJSON implements json.Marshaler.
func (p Patch) MarshalJSON() ([]byte, error) {
	w, err := p.toWire(json.Marshal)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Patch) UnmarshalJSON(b []byte) error {
	var w patchWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	return p.fromWire(w, json.Unmarshal)
}

// MarshalCBOR implements cbor.Marshaler.
func (p Patch) MarshalCBOR() ([]byte, error) {
	w, err := p.toWire(codec.Marshal)
	if err != nil {
		return nil, err
	}
	return codec.Marshal(w)
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (p *Patch) UnmarshalCBOR(b []byte) error {
	var w patchWire
	if err := codec.Unmarshal(b, &w); err != nil {
		return err
	}
	return p.fromWire(w, codec.Unmarshal)
}
