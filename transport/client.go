// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/mirror"
	"github.com/gogpu/canvas/protocol"
)

// Default client settings.
const (
	DefaultInboundBuffer = 256
	DefaultMinBackoff    = 100 * time.Millisecond
	DefaultMaxBackoff    = 5 * time.Second
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCodec selects the codec for frames the client sends and asks the hub
// to use the same one for its replies.
func WithCodec(c protocol.Codec) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.codec = c
		}
	}
}

// WithBackoff sets the reconnect delay range. The delay doubles after each
// failed attempt, up to hi, and resets after a successful connection.
func WithBackoff(lo, hi time.Duration) ClientOption {
	return func(cl *Client) {
		if lo > 0 && hi >= lo {
			cl.minBackoff, cl.maxBackoff = lo, hi
		}
	}
}

// WithDialer sets the WebSocket dialer.
func WithDialer(d *websocket.Dialer) ClientOption {
	return func(cl *Client) {
		if d != nil {
			cl.dialer = d
		}
	}
}

// Client connects a mirror.Engine to a hub.
type Client struct {
	url    string
	engine *mirror.Engine
	codec  protocol.Codec
	dialer *websocket.Dialer
	in     chan protocol.Message

	minBackoff time.Duration
	maxBackoff time.Duration

	mu  sync.Mutex
	cur *clientConn
}

var _ mirror.Sender = (*Client)(nil)

// NewClient returns a client for the hub at rawURL (ws:// or wss://).
func NewClient(rawURL string, engine *mirror.Engine, opts ...ClientOption) *Client {
	c := &Client{
		url:        rawURL,
		engine:     engine,
		codec:      protocol.JSONCodec{},
		dialer:     websocket.DefaultDialer,
		in:         make(chan protocol.Message, DefaultInboundBuffer),
		minBackoff: DefaultMinBackoff,
		maxBackoff: DefaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run drives the engine and keeps a connection open until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.engine.Run(ctx, c.in)
	})
	g.Go(func() error {
		return c.connectLoop(ctx)
	})
	return g.Wait()
}

// Send implements mirror.Sender. It queues m on the live connection
// without blocking.
func (c *Client) Send(m protocol.Message) error {
	c.mu.Lock()
	cc := c.cur
	c.mu.Unlock()
	if cc == nil {
		return canvas.ErrTransportClosed
	}
	select {
	case <-cc.done:
		return canvas.ErrTransportClosed
	case cc.send <- m:
		return nil
	default:
		cc.close()
		return fmt.Errorf("transport: send queue full: %w", canvas.ErrTransportClosed)
	}
}

func (c *Client) connectLoop(ctx context.Context) error {
	backoff := c.minBackoff
	for {
		err := c.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			backoff = c.minBackoff
		} else {
			canvas.Logger().Warn("transport: connection failed", "url", c.url, "retry_in", backoff, "err", err)
		}

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if err != nil {
			backoff = min(2*backoff, c.maxBackoff)
		}
	}
}

// dialURL adds the codec query parameter.
func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if c.codec.Binary() {
		q.Set("codec", "cbor")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connectOnce serves one connection. It returns nil if the connection was
// established and later lost.
func (c *Client) connectOnce(ctx context.Context) error {
	target, err := c.dialURL()
	if err != nil {
		return err
	}
	ws, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return err
	}

	cc := &clientConn{
		ws:    ws,
		codec: c.codec,
		send:  make(chan protocol.Message, DefaultSendBuffer),
		done:  make(chan struct{}),
	}
	c.mu.Lock()
	c.cur = cc
	c.mu.Unlock()
	c.engine.Connected(c)

	stop := context.AfterFunc(ctx, cc.close)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cc.writeLoop()
	}()
	cc.readLoop(ctx, c.in)
	cc.close()
	wg.Wait()

	c.mu.Lock()
	c.cur = nil
	c.mu.Unlock()
	c.engine.Disconnected()
	return nil
}

type clientConn struct {
	ws    *websocket.Conn
	codec protocol.Codec
	send  chan protocol.Message
	done  chan struct{}
	once  sync.Once
}

func (cc *clientConn) close() {
	cc.once.Do(func() {
		close(cc.done)
		_ = cc.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = cc.ws.Close()
	})
}

func (cc *clientConn) writeLoop() {
	typ := websocket.TextMessage
	if cc.codec.Binary() {
		typ = websocket.BinaryMessage
	}
	for {
		select {
		case <-cc.done:
			return
		case m := <-cc.send:
			data, err := cc.codec.Encode(m)
			if err != nil {
				canvas.Logger().Warn("transport: encode failed", "type", m.Type(), "err", err)
				continue
			}
			_ = cc.ws.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
			if err := cc.ws.WriteMessage(typ, data); err != nil {
				cc.close()
				return
			}
		}
	}
}

func (cc *clientConn) readLoop(ctx context.Context, out chan<- protocol.Message) {
	cc.ws.SetReadLimit(maxFrameSize)
	for {
		typ, data, err := cc.ws.ReadMessage()
		if err != nil {
			return
		}
		codec, ok := codecFor(typ)
		if !ok {
			continue
		}
		m, err := codec.Decode(data)
		if err != nil {
			canvas.Logger().Warn("transport: dropping malformed frame from host", "err", err)
			continue
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return
		case <-cc.done:
			return
		}
	}
}
