// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package store

import "github.com/gogpu/canvas/scene"

// ring keeps the most recent deltas in commit order. Versions are
// contiguous, so the delta producing version v sits at a fixed offset from
// the newest one.
type ring struct {
	buf   []scene.Delta
	start int // index of the oldest delta
	n     int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]scene.Delta, capacity)}
}

func (r *ring) push(d scene.Delta) {
	if len(r.buf) == 0 {
		return
	}
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = d
		r.n++
		return
	}
	r.buf[r.start] = d
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) at(i int) scene.Delta {
	return r.buf[(r.start+i)%len(r.buf)]
}

// since returns the deltas with BaseVersion >= from, given that the newest
// retained delta ends at cur. It reports false if the oldest retained delta
// starts after from.
func (r *ring) since(from, cur uint64) ([]scene.Delta, bool) {
	if r.n == 0 {
		return nil, false
	}
	oldest := r.at(0).BaseVersion
	if from < oldest || r.at(r.n-1).NewVersion != cur {
		return nil, false
	}
	skip := int(from - oldest)
	out := make([]scene.Delta, 0, r.n-skip)
	for i := skip; i < r.n; i++ {
		out = append(out, r.at(i))
	}
	return out, true
}
