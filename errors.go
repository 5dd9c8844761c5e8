// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package canvas

import "errors"

// Error taxonomy shared by all canvas packages. None of these is fatal to the
// process: store errors are reported to the caller with the graph unchanged,
// sync errors trigger a resync, render errors trigger a redraw or fallback.
// Callers match with errors.Is; packages wrap them with context.
var (
	// ErrDuplicateID is returned when an insert targets an id already present.
	ErrDuplicateID = errors.New("canvas: duplicate element id")

	// ErrUnknownID is returned when an update or delete targets a missing id.
	ErrUnknownID = errors.New("canvas: unknown element id")

	// ErrInvalidOp is returned for structurally invalid operations, such as a
	// payload whose kind differs from the element kind.
	ErrInvalidOp = errors.New("canvas: invalid operation")

	// ErrVersionMismatch is returned by a mirror when a delta does not apply
	// to its current version. The mirror resyncs from a snapshot.
	ErrVersionMismatch = errors.New("canvas: version mismatch")

	// ErrMalformedFrame is returned when a wire frame cannot be decoded.
	// The frame is dropped; the connection survives unless it repeats.
	ErrMalformedFrame = errors.New("canvas: malformed frame")

	// ErrTransportClosed is returned when sending on a mirror with no live
	// transport. The mirror switches to offline editing.
	ErrTransportClosed = errors.New("canvas: transport closed")

	// ErrDeviceLost is returned by the GPU renderer when the device stops
	// responding. GPU objects are recreated and the frame redrawn.
	ErrDeviceLost = errors.New("canvas: GPU device lost")

	// ErrAssetUnavailable is returned by asset loaders when a texture source
	// cannot be produced. Renderers fall back to a placeholder quad.
	ErrAssetUnavailable = errors.New("canvas: asset unavailable")
)
