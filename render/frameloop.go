// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/scene"
)

// DefaultFrameInterval is about 60 frames per second.
const DefaultFrameInterval = 16 * time.Millisecond

// GraphSource supplies the graph to draw. mirror.Engine implements it.
// The returned graph is treated as immutable.
type GraphSource interface {
	Graph() *scene.Graph
}

// FrameInfo describes one rendered frame.
type FrameInfo struct {
	Frame        uint64
	Version      uint64
	Draws        int
	Placeholders int
	Duration     time.Duration

	// Recovered is set when the frame was redrawn after a device loss.
	Recovered bool
}

// FrameLoop renders the source graph on a ticker. A frame is drawn only
// when the graph pointer changed since the last successful frame, since a
// new graph is installed for every applied delta.
type FrameLoop struct {
	src      GraphSource
	renderer Renderer
	target   RenderTarget
	interval time.Duration
	always   bool
	hook     func(FrameInfo)

	mu     sync.Mutex
	frame  Frame
	last   *scene.Graph
	frames uint64
}

// LoopOption configures a FrameLoop.
type LoopOption func(*FrameLoop)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) LoopOption {
	return func(l *FrameLoop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithFrameHook registers fn to run after every drawn frame.
func WithFrameHook(fn func(FrameInfo)) LoopOption {
	return func(l *FrameLoop) { l.hook = fn }
}

// WithRedrawAlways draws every tick, for surfaces that must be presented
// each frame.
func WithRedrawAlways() LoopOption {
	return func(l *FrameLoop) { l.always = true }
}

// NewFrameLoop creates a loop drawing src into target.
func NewFrameLoop(src GraphSource, r Renderer, target RenderTarget, frame Frame, opts ...LoopOption) *FrameLoop {
	l := &FrameLoop{
		src:      src,
		renderer: r,
		target:   target,
		interval: DefaultFrameInterval,
		frame:    frame,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetFrame replaces the frame parameters and forces a redraw on the next
// tick.
func (l *FrameLoop) SetFrame(f Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frame = f
	l.last = nil
}

// Run ticks until ctx is done. Frame errors are logged and retried on the
// next tick.
func (l *FrameLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		if _, err := l.Step(ctx); err != nil {
			canvas.Logger().Warn("render: frame failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Step draws one frame if the graph changed. It reports whether a frame
// was drawn. On canvas.ErrDeviceLost a Recoverer renderer is recovered and
// the same draw list is drawn again.
func (l *FrameLoop) Step(ctx context.Context) (bool, error) {
	g := l.src.Graph()
	if g == nil {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if g == l.last && !l.always {
		return false, nil
	}

	start := time.Now()
	calls := BuildDrawList(ctx, g, l.frame)
	info := FrameInfo{Version: g.Version(), Draws: len(calls)}
	for i := range calls {
		if calls[i].Placeholder {
			info.Placeholders++
		}
	}

	err := l.renderer.Render(l.target, calls)
	if errors.Is(err, canvas.ErrDeviceLost) {
		rec, ok := l.renderer.(Recoverer)
		if !ok {
			return false, err
		}
		if rerr := rec.Recover(); rerr != nil {
			return false, fmt.Errorf("render: recover: %w", rerr)
		}
		info.Recovered = true
		err = l.renderer.Render(l.target, calls)
	}
	if err != nil {
		return false, err
	}

	l.last = g
	l.frames++
	info.Frame = l.frames
	info.Duration = time.Since(start)
	canvas.Logger().Debug("render: frame", "frame", info.Frame, "version", info.Version, "draws", info.Draws)
	if l.hook != nil {
		l.hook(info)
	}
	return true, nil
}
