// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package transport carries protocol frames over WebSocket.
//
// The host side is a Hub, one per session, mounted as an http.Handler.
// The mirror side is a Client, which dials the hub, feeds decoded frames
// to a mirror.Engine and reconnects with capped exponential backoff.
//
// Text messages carry JSON frames and binary messages carry CBOR frames.
// A peer may send either; replies use the codec chosen when the
// connection was opened.
package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/protocol"
)

// Connection is the host's view of one mirror. It exists from handshake to
// close and caches only the last version sent to the mirror.
type Connection struct {
	SessionID string
	Remote    string

	ws    *websocket.Conn
	codec protocol.Codec
	send   chan protocol.Message
	resync chan struct{}
	done   chan struct{}
	once   sync.Once

	lastKnown  atomic.Uint64
	subscribed atomic.Bool
}

func newConnection(sessionID string, ws *websocket.Conn, c protocol.Codec, buffer int) *Connection {
	return &Connection{
		SessionID: sessionID,
		Remote:    ws.RemoteAddr().String(),
		ws:        ws,
		codec:     c,
		send:      make(chan protocol.Message, buffer),
		resync:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// LastKnownVersion returns the version of the last snapshot or delta sent
// to the mirror.
func (c *Connection) LastKnownVersion() uint64 { return c.lastKnown.Load() }

// Subscribed reports whether the connection receives store deltas.
func (c *Connection) Subscribed() bool { return c.subscribed.Load() }

// Codec returns the codec used for frames sent on this connection.
func (c *Connection) Codec() protocol.Codec { return c.codec }

// Enqueue queues a frame for the writer. It never blocks: a connection
// whose queue is full is closed, and the mirror resyncs on reconnect.
func (c *Connection) Enqueue(m protocol.Message) error {
	select {
	case <-c.done:
		return canvas.ErrTransportClosed
	default:
	}
	select {
	case c.send <- m:
		return nil
	default:
		canvas.Logger().Warn("transport: send queue full, closing connection",
			"session", c.SessionID, "remote", c.Remote)
		c.Close()
		return fmt.Errorf("transport: send queue full: %w", canvas.ErrTransportClosed)
	}
}

// Close ends the connection. It is safe to call more than once.
func (c *Connection) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}

// closeWith ends the connection with a close code and reason.
func (c *Connection) closeWith(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}

// write encodes m with the connection's codec. Only the writer goroutine
// calls it.
func (c *Connection) write(m protocol.Message, timeout time.Duration) error {
	data, err := c.codec.Encode(m)
	if err != nil {
		return err
	}
	typ := websocket.TextMessage
	if c.codec.Binary() {
		typ = websocket.BinaryMessage
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(timeout))
	if err := c.ws.WriteMessage(typ, data); err != nil {
		return err
	}
	switch m := m.(type) {
	case *protocol.Snapshot:
		c.lastKnown.Store(m.Version)
	case *protocol.Delta:
		c.lastKnown.Store(m.Version)
	}
	return nil
}

// codecFor picks the decoder for an incoming WebSocket message type.
func codecFor(messageType int) (protocol.Codec, bool) {
	switch messageType {
	case websocket.TextMessage:
		return protocol.JSONCodec{}, true
	case websocket.BinaryMessage:
		return protocol.CBORCodec{}, true
	default:
		return nil, false
	}
}

// CodecByName returns the codec registered under name: "json" (the
// default when name is empty) or "cbor".
func CodecByName(name string) (protocol.Codec, error) {
	switch name {
	case "", "json":
		return protocol.JSONCodec{}, nil
	case "cbor":
		return protocol.CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("transport: unknown codec %q", name)
	}
}
