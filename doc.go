// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package canvas keeps a shared, versioned visual scene consistent between one
// authoritative host and any number of remote mirrors, and renders that scene
// through a single quad pipeline used for both screen-space and camera-space
// elements.
//
// # Overview
//
// A host owns one [github.com/gogpu/canvas/store.Store] per session. Every
// committed mutation batch bumps the store version by exactly one and emits a
// delta. Deltas travel as JSON text (or CBOR binary) frames over a WebSocket
// to mirrors, whose reconciliation engine applies them in order or resyncs
// from a snapshot when versions disagree. Mirrors that lose their transport
// keep editing locally and replay those edits on reconnect.
//
// # Packages
//
//   - scene: elements, graph, ops, deltas, snapshots
//   - store: authoritative single-writer store and fan-out
//   - protocol: wire frames and codecs
//   - mirror: reconciliation state machine and offline queue
//   - transport: WebSocket hub (host) and client (mirror)
//   - render: coordinate math, uniform layout, GPU and software renderers
//   - session: session lifecycle and the render/interact/export surface
//   - config: configuration files and defaults
//
// # Coordinate System
//
// Element space has its origin at the top-left of the canvas, x grows right
// and y grows down. Clip space is the usual [-1, 1] range with y up.
//
// # Logging
//
// canvas logs nothing by default. Call [SetLogger] to enable output for the
// root package and every sub-package.
package canvas

// Version is the current version of the library.
const Version = "0.1.0"
