// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"fmt"
	"slices"

	"github.com/gogpu/canvas"
)

// Payload is the kind-specific part of an element. It is a closed set: the
// only implementations are ChartPayload, ImagePayload and ShapePayload.
type Payload interface {
	// Kind returns the element kind this payload belongs to.
	Kind() Kind

	// Anchor returns the coordinate space of the element.
	Anchor() Anchor

	clonePayload() Payload
}

// Series is one named data series of a chart.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// ChartPayload describes a chart. The chart itself is rasterized by the
// host into a texture keyed by the element id.
type ChartPayload struct {
	ChartType string   `json:"chart_type"`
	Title     string   `json:"title,omitempty"`
	Series    []Series `json:"series,omitempty"`
	Space     Anchor   `json:"anchor,omitempty"`
}

// Kind implements Payload.
func (*ChartPayload) Kind() Kind { return KindChart }

// Anchor implements Payload.
func (p *ChartPayload) Anchor() Anchor { return normalizeAnchor(p.Space) }

func (p *ChartPayload) clonePayload() Payload {
	c := *p
	if p.Series != nil {
		c.Series = make([]Series, len(p.Series))
		for i, s := range p.Series {
			c.Series[i] = Series{Name: s.Name, Values: slices.Clone(s.Values)}
		}
	}
	return &c
}

// ImagePayload references an image asset. Source is resolved by the
// renderer's asset loader; decoding happens outside this module.
type ImagePayload struct {
	Source      string `json:"src"`
	PixelWidth  int    `json:"pixel_width,omitempty"`
	PixelHeight int    `json:"pixel_height,omitempty"`
	Space       Anchor `json:"anchor,omitempty"`
}

// Kind implements Payload.
func (*ImagePayload) Kind() Kind { return KindImage }

// Anchor implements Payload.
func (p *ImagePayload) Anchor() Anchor { return normalizeAnchor(p.Space) }

func (p *ImagePayload) clonePayload() Payload {
	c := *p
	return &c
}

// ShapePayload describes a flat primitive.
type ShapePayload struct {
	Shape       string  `json:"shape"`
	StrokeWidth float64 `json:"stroke_width,omitempty"`
}

// Kind implements Payload.
func (*ShapePayload) Kind() Kind { return KindShape }

// Anchor implements Payload. Shapes are always screen-space.
func (*ShapePayload) Anchor() Anchor { return AnchorScreen }

func (p *ShapePayload) clonePayload() Payload {
	c := *p
	return &c
}

func normalizeAnchor(a Anchor) Anchor {
	if a == AnchorWorld {
		return AnchorWorld
	}
	return AnchorScreen
}

// newPayload returns an empty payload for kind, ready to be decoded into.
func newPayload(kind Kind) (Payload, error) {
	switch kind {
	case KindChart:
		return &ChartPayload{}, nil
	case KindImage:
		return &ImagePayload{}, nil
	case KindShape:
		return &ShapePayload{}, nil
	default:
		return nil, fmt.Errorf("scene: kind %q: %w", kind, canvas.ErrInvalidOp)
	}
}

// decodePayload decodes raw into the payload schema of kind. An empty raw
// value yields the zero payload.
func decodePayload(kind Kind, raw []byte, unmarshal func([]byte, any) error) (Payload, error) {
	p, err := newPayload(kind)
	if err != nil {
		return nil, err
	}
	if isNullRaw(raw) {
		return p, nil
	}
	if err := unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("scene: %s payload: %w", kind, err)
	}
	return p, nil
}

func clonePayload(p Payload) Payload {
	if p == nil {
		return nil
	}
	return p.clonePayload()
}

// payloadFinite reports whether every float in p is finite. JSON has no
// encoding for NaN or Inf.
func payloadFinite(p Payload) bool {
	switch p := p.(type) {
	case *ChartPayload:
		for _, s := range p.Series {
			if !finite(s.Values...) {
				return false
			}
		}
	case *ShapePayload:
		return finite(p.StrokeWidth)
	}
	return true
}
