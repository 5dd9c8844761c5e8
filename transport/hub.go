// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package transport

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/protocol"
	"github.com/gogpu/canvas/store"
)

// Default hub settings.
const (
	DefaultSendBuffer   = 256
	DefaultMaxMalformed = 8
	DefaultPingInterval = 20 * time.Second
	DefaultWriteTimeout = 5 * time.Second

	// maxFrameSize bounds a single incoming frame.
	maxFrameSize = 8 << 20
)

// InteractFunc receives interact frames from mirrors.
type InteractFunc func(c *Connection, m *protocol.Interact)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithSendBuffer sets the per-connection outgoing frame queue length.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithSubscriberBuffer sets the per-connection store subscription buffer.
func WithSubscriberBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.subBuffer = n
		}
	}
}

// WithMaxMalformed sets how many consecutive malformed frames a connection
// may send before it is closed.
func WithMaxMalformed(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.maxMalformed = n
		}
	}
}

// WithPingInterval sets the keepalive ping interval. The read deadline is
// a little over twice this value.
func WithPingInterval(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithInteractHandler sets the handler for interact frames.
func WithInteractHandler(fn InteractFunc) HubOption {
	return func(h *Hub) { h.onInteract = fn }
}

// Hub serves the WebSocket endpoint of one session.
//
// Every connection starts with a snapshot, and every resync request is
// answered with one. The optional codec=json|cbor query parameter selects
// the codec for frames sent to the mirror (default json).
type Hub struct {
	sessionID string
	store     *store.Store
	upgrader  websocket.Upgrader

	sendBuffer   int
	subBuffer    int
	maxMalformed int
	pingInterval time.Duration
	onInteract   InteractFunc

	mu     sync.Mutex
	conns  map[*Connection]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewHub returns a hub publishing st to mirrors of session sessionID.
func NewHub(sessionID string, st *store.Store, opts ...HubOption) *Hub {
	h := &Hub{
		sessionID:    sessionID,
		store:        st,
		sendBuffer:   DefaultSendBuffer,
		subBuffer:    store.DefaultSubscriberBuffer,
		maxMalformed: DefaultMaxMalformed,
		pingInterval: DefaultPingInterval,
		conns:        make(map[*Connection]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// Origin policy belongs to the listener in front of the hub.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Connections returns the open connections.
func (h *Hub) Connections() []*Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Connection, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, c)
	}
	return out
}

// Close closes every connection, refuses new ones and waits for the
// connection goroutines to finish.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Connection, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, "session closed")
	}
	h.wg.Wait()
}

// ServeHTTP upgrades the request and serves the connection until it
// closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	codec, err := CodecByName(q.Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		canvas.Logger().Debug("transport: upgrade failed", "err", err)
		return
	}
	c := newConnection(h.sessionID, ws, codec, h.sendBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.closeWith(websocket.CloseGoingAway, "session closed")
		return
	}
	h.conns[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
		h.wg.Done()
	}()

	h.serve(c)
}

func (h *Hub) serve(c *Connection) {
	sub, snap := h.store.SubscribeAt(h.subBuffer)
	defer sub.Close()
	c.subscribed.Store(true)
	defer c.subscribed.Store(false)

	canvas.Logger().Info("transport: mirror connected",
		"session", h.sessionID, "remote", c.Remote, "version", snap.Version)

	// The snapshot goes first; the writer has not started yet.
	if err := c.write(protocol.NewSnapshot(snap), DefaultWriteTimeout); err != nil {
		c.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(c, sub)
	}()

	h.readLoop(c)
	c.Close()
	<-writerDone
	canvas.Logger().Info("transport: mirror disconnected",
		"session", h.sessionID, "remote", c.Remote, "version", c.LastKnownVersion())
}

// writeLoop is the only goroutine writing data frames to c. It never holds
// the store lock while writing.
func (h *Hub) writeLoop(c *Connection, sub *store.Subscription) {
	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		if sub.Lagged() {
			// The mirror stays synced: history fills the gap when it can.
			canvas.Logger().Warn("transport: mirror lagged, catching up",
				"session", h.sessionID, "remote", c.Remote, "version", c.LastKnownVersion())
			deltas, snap := sub.Resume(c.LastKnownVersion())
			for _, d := range deltas {
				if err := c.write(protocol.NewDelta(d), DefaultWriteTimeout); err != nil {
					c.Close()
					return
				}
			}
			if snap != nil {
				if err := c.write(protocol.NewSnapshot(*snap), DefaultWriteTimeout); err != nil {
					c.Close()
					return
				}
			}
		}

		select {
		case <-c.done:
			return
		case d, ok := <-sub.C:
			if !ok {
				c.Close()
				return
			}
			if d.NewVersion <= c.LastKnownVersion() {
				// Already covered by a snapshot sent after a resync.
				continue
			}
			if err := c.write(protocol.NewDelta(d), DefaultWriteTimeout); err != nil {
				c.Close()
				return
			}
		case <-c.resync:
			// Deltas still buffered are covered by the snapshot.
			snap := sub.Restart()
			if err := c.write(protocol.NewSnapshot(snap), DefaultWriteTimeout); err != nil {
				c.Close()
				return
			}
		case m := <-c.send:
			if err := c.write(m, DefaultWriteTimeout); err != nil {
				c.Close()
				return
			}
		case <-ping.C:
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(DefaultWriteTimeout))
			if err != nil {
				c.Close()
				return
			}
		}
	}
}

func (h *Hub) readLoop(c *Connection) {
	wait := 2*h.pingInterval + h.pingInterval/2
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(wait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(wait))
	})

	malformed := 0
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				canvas.Logger().Debug("transport: read failed", "remote", c.Remote, "err", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(wait))

		codec, ok := codecFor(typ)
		var m protocol.Message
		if ok {
			m, err = codec.Decode(data)
		} else {
			err = canvas.ErrMalformedFrame
		}
		if err != nil {
			malformed++
			canvas.Logger().Warn("transport: dropping malformed frame",
				"session", h.sessionID, "remote", c.Remote, "count", malformed, "err", err)
			if malformed > h.maxMalformed {
				c.closeWith(websocket.CloseUnsupportedData, "too many malformed frames")
				return
			}
			continue
		}
		malformed = 0
		h.dispatch(c, m)
	}
}

func (h *Hub) dispatch(c *Connection, m protocol.Message) {
	switch m := m.(type) {
	case *protocol.Edit:
		d, err := h.store.ApplyBatch(m.Ops)
		version := d.NewVersion
		if err != nil {
			version = h.store.Version()
			canvas.Logger().Debug("transport: edit rejected", "seq", m.Seq, "err", err)
		}
		_ = c.Enqueue(protocol.NewResult(m.Seq, version, err))
	case *protocol.Resync:
		canvas.Logger().Debug("transport: resync requested",
			"session", h.sessionID, "remote", c.Remote, "have_version", m.HaveVersion)
		select {
		case c.resync <- struct{}{}:
		default:
			// A snapshot is already pending.
		}
	case *protocol.Interact:
		if h.onInteract != nil {
			h.onInteract(c, m)
		}
	default:
		canvas.Logger().Debug("transport: ignoring frame from mirror", "type", m.Type())
	}
}
