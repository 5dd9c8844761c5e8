// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"math"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/protocol"
	"github.com/gogpu/canvas/scene"
)

// Format is an export format.
type Format string

// Export formats.
const (
	FormatPNG  Format = "png"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatJSON Format = "json"
)

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF:
		return "image/tiff"
	case FormatJSON:
		return "application/json"
	}
	return "application/octet-stream"
}

// ParseFormat parses a case-insensitive format name. "tif" is accepted for
// TIFF.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPNG, FormatBMP, FormatTIFF, FormatJSON:
		return f, nil
	case "tif":
		return FormatTIFF, nil
	}
	return "", fmt.Errorf("render: export format %q: %w", s, canvas.ErrInvalidOp)
}

// ExportOptions configures Export.
type ExportOptions struct {
	// Frame supplies canvas size, camera, textures and placeholder color.
	Frame Frame

	// Width and Height are the output size in pixels. Zero uses the canvas
	// size.
	Width, Height int

	Background scene.RGBA
}

// Export encodes g. Image formats are drawn by the software renderer;
// json is the snapshot frame a mirror would receive.
func Export(ctx context.Context, g *scene.Graph, format Format, opts ExportOptions) ([]byte, string, error) {
	if format == FormatJSON {
		b, err := protocol.JSONCodec{}.Encode(protocol.NewSnapshot(g.Snapshot()))
		if err != nil {
			return nil, "", fmt.Errorf("render: export json: %w", err)
		}
		return b, format.ContentType(), nil
	}

	w, h := opts.Width, opts.Height
	if w <= 0 {
		w = int(math.Ceil(opts.Frame.Width))
	}
	if h <= 0 {
		h = int(math.Ceil(opts.Frame.Height))
	}
	if w <= 0 || h <= 0 {
		return nil, "", fmt.Errorf("render: export size %dx%d: %w", w, h, canvas.ErrInvalidOp)
	}

	target := NewPixmapTarget(w, h)
	r := NewSoftwareRenderer(opts.Background)
	if err := r.Render(target, BuildDrawList(ctx, g, opts.Frame)); err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	var err error
	switch format {
	case FormatPNG:
		err = png.Encode(&buf, target.Image())
	case FormatBMP:
		err = bmp.Encode(&buf, target.Image())
	case FormatTIFF:
		err = tiff.Encode(&buf, target.Image(), &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	default:
		return nil, "", fmt.Errorf("render: export format %q: %w", format, canvas.ErrInvalidOp)
	}
	if err != nil {
		return nil, "", fmt.Errorf("render: encode %s: %w", format, err)
	}
	return buf.Bytes(), format.ContentType(), nil
}
