// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/protocol"
	"github.com/gogpu/canvas/render"
	"github.com/gogpu/canvas/scene"
	"github.com/gogpu/canvas/session"
	"github.com/gogpu/canvas/transport"
)

// maxBodySize bounds render and interact request bodies.
const maxBodySize = 8 << 20

type server struct {
	sessions *session.Manager
}

// newRouter returns the HTTP API:
//
//	POST   /sessions                    create a session
//	GET    /sessions/{id}/ws            mirror WebSocket
//	GET    /sessions/{id}/snapshot      snapshot frame (?codec=json|cbor)
//	POST   /sessions/{id}/render        {"content": [...], "clear": bool}
//	POST   /sessions/{id}/interact      {"touch": {...}, "voice": "..."}
//	GET    /sessions/{id}/export        ?format=png|bmp|tiff|json
//	DELETE /sessions/{id}               close a session
func newRouter(m *session.Manager) http.Handler {
	s := &server{sessions: m}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Post("/sessions", s.create)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/ws", s.websocket)
		r.Get("/snapshot", s.snapshot)
		r.Post("/render", s.render)
		r.Post("/interact", s.interact)
		r.Get("/export", s.export)
		r.Delete("/", s.close)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		canvas.Logger().Debug("canvasd: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return sess, true
}

type sessionInfo struct {
	ID      string    `json:"id"`
	Version uint64    `json:"version"`
	Mirrors int       `json:"mirrors"`
	Created time.Time `json:"created"`
}

func infoOf(sess *session.Session) sessionInfo {
	return sessionInfo{
		ID:      sess.ID,
		Version: sess.Store.Version(),
		Mirrors: sess.Hub.Len(),
		Created: sess.Created,
	}
}

func (s *server) create(w http.ResponseWriter, _ *http.Request) {
	sess, err := s.sessions.Create()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, infoOf(sess))
}

func (s *server) close(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) websocket(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.lookup(w, r); ok {
		sess.Hub.ServeHTTP(w, r)
	}
}

func (s *server) snapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	c, err := transport.CodecByName(r.URL.Query().Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := c.Encode(protocol.NewSnapshot(sess.Store.Snapshot()))
	if err != nil {
		writeError(w, err)
		return
	}
	ctype := "application/json"
	if c.Binary() {
		ctype = "application/cbor"
	}
	w.Header().Set("Content-Type", ctype)
	_, _ = w.Write(data)
}

type renderRequest struct {
	Content []scene.Element `json:"content"`
	Clear   bool            `json:"clear"`
}

type renderResponse struct {
	Version uint64 `json:"version"`
	Ops     int    `json:"ops"`
}

func (s *server) render(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req renderRequest
	if !readJSON(w, r, &req) {
		return
	}
	d, err := sess.Render(req.Content, req.Clear)
	if err != nil {
		writeError(w, err)
		return
	}
	version := d.NewVersion
	if version == 0 {
		version = sess.Store.Version()
	}
	writeJSON(w, http.StatusOK, renderResponse{Version: version, Ops: len(d.Ops)})
}

type interactResponse struct {
	Element *string `json:"element"`
	Version uint64  `json:"version"`
}

func (s *server) interact(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	// The body has the shape of an interact frame without the type tag.
	var req protocol.Interact
	if !readJSON(w, r, &req) {
		return
	}
	var in session.Interaction
	if req.Touch != nil {
		in.Touch = &session.Touch{X: req.Touch.X, Y: req.Touch.Y}
		if req.Touch.Element != nil {
			in.Touch.Element = *req.Touch.Element
		}
	}
	if req.Voice != nil {
		in.Voice = *req.Voice
	}
	res, err := sess.Interact(in)
	if err != nil {
		writeError(w, err)
		return
	}
	out := interactResponse{Version: res.Version}
	if res.ElementID != "" {
		out.Element = &res.ElementID
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) export(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(render.FormatPNG)
	}
	format, err := render.ParseFormat(name)
	if err != nil {
		writeError(w, err)
		return
	}
	data, ctype, err := sess.Export(r.Context(), format)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", ctype)
	_, _ = w.Write(data)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps canvas errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, canvas.ErrDuplicateID):
		status = http.StatusConflict
	case errors.Is(err, canvas.ErrUnknownID), errors.Is(err, canvas.ErrInvalidOp):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		canvas.Logger().Warn("canvasd: request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
