// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package session

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/protocol"
	"github.com/gogpu/canvas/transport"
)

// Touch is a pointer interaction in canvas pixels. When Element is set it
// names the touched element directly and the point is not hit-tested.
type Touch struct {
	X, Y    float64
	Element string
}

// Interaction is one user interaction: a touch, a voice utterance, or both.
type Interaction struct {
	Touch *Touch
	Voice string
}

// InteractResult tells the caller which element the interaction landed on
// and the scene version it was resolved against. ElementID is empty when
// a touch hit nothing or there was no touch.
type InteractResult struct {
	ElementID string
	Version   uint64
}

// Event is a recorded interaction.
type Event struct {
	Seq         uint64
	Time        time.Time
	Source      string
	Interaction Interaction
	InteractResult
}

// Interact resolves in against the current scene and records it. A touch
// with an explicit element id must name an existing element; otherwise
// the topmost element under the point is chosen. Voice text is trimmed and
// normalized to NFC.
func (s *Session) Interact(in Interaction) (InteractResult, error) {
	return s.interact(in, "host")
}

func (s *Session) interact(in Interaction, source string) (InteractResult, error) {
	in.Voice = norm.NFC.String(strings.TrimSpace(in.Voice))
	if in.Touch == nil && in.Voice == "" {
		return InteractResult{}, fmt.Errorf("session: interaction without touch or voice: %w", canvas.ErrInvalidOp)
	}

	g := s.Store.Graph()
	res := InteractResult{Version: g.Version()}
	if t := in.Touch; t != nil {
		c := *t
		in.Touch = &c
		if c.Element != "" {
			if !g.Has(c.Element) {
				return InteractResult{}, fmt.Errorf("session: touch on %q: %w", c.Element, canvas.ErrUnknownID)
			}
			res.ElementID = c.Element
		} else if e, ok := g.Hit(c.X, c.Y); ok {
			res.ElementID = e.ID
		}
	}

	ev := s.record(in, res, source)
	canvas.Logger().Debug("session: interaction",
		"session", s.ID, "seq", ev.Seq, "element", res.ElementID, "version", res.Version, "source", source)
	s.notify(ev)
	return res, nil
}

func (s *Session) record(in Interaction, res InteractResult, source string) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	ev := Event{Seq: s.seq, Time: time.Now(), Source: source, Interaction: in, InteractResult: res}
	if len(s.events) < s.opts.logSize {
		s.events = append(s.events, ev)
	} else {
		s.events[s.next] = ev
	}
	s.next = (s.next + 1) % s.opts.logSize
	return ev
}

// Interactions returns the retained interactions, oldest first.
func (s *Session) Interactions() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) < s.opts.logSize {
		return append([]Event(nil), s.events...)
	}
	out := make([]Event, 0, len(s.events))
	out = append(out, s.events[s.next:]...)
	return append(out, s.events[:s.next]...)
}

// Observe registers fn to be called with every recorded interaction, in
// the goroutine that recorded it. The returned function unregisters fn.
func (s *Session) Observe(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.observerN
	s.observerN++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Session) notify(ev Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// handleInteract receives interact frames from the session's mirrors.
func (s *Session) handleInteract(c *transport.Connection, m *protocol.Interact) {
	var in Interaction
	if m.Touch != nil {
		in.Touch = &Touch{X: m.Touch.X, Y: m.Touch.Y}
		if m.Touch.Element != nil {
			in.Touch.Element = *m.Touch.Element
		}
	}
	if m.Voice != nil {
		in.Voice = *m.Voice
	}
	if _, err := s.interact(in, c.Remote); err != nil {
		canvas.Logger().Warn("session: dropping interaction",
			"session", s.ID, "remote", c.Remote, "err", err)
	}
}
