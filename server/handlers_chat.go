package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/livechat-tender/chat"
	"github.com/onnwee/livechat-tender/db"
	"github.com/onnwee/livechat-tender/telemetry"
)

// sseKeepAlive is the interval of SSE comment frames on an idle stream.
const sseKeepAlive = 15 * time.Second

// HandleStatus returns one status entry per watched target.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Watcher == nil {
		writeError(w, http.StatusServiceUnavailable, "recorders not started")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"targets": h.deps.Watcher.Statuses()})
}

// HandleSessions lists recent sessions. Query: limit.
func (h *Handlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if h.deps.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive not configured")
		return
	}
	limit := db.ClampLimit(parseIntQuery(r, "limit", db.DefaultListLimit))
	out, err := h.deps.Archive.ListSessions(r.Context(), limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list sessions", slog.Any("err", err), slog.String("component", "http"))
		writeError(w, http.StatusInternalServerError, "list sessions failed")
		return
	}
	if out == nil {
		out = []db.SessionRow{}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleComments returns archived comments of a broadcast. Query: since (RFC 3339 or unix ms), limit.
func (h *Handlers) HandleComments(w http.ResponseWriter, r *http.Request) {
	if h.deps.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive not configured")
		return
	}
	id := chi.URLParam(r, "id")
	since, ok := parseTimeQuery(r, "since")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid since")
		return
	}
	limit := db.ClampLimit(parseIntQuery(r, "limit", db.DefaultListLimit))
	out, err := h.deps.Archive.ListComments(r.Context(), id, since, limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list comments", slog.Any("err", err), slog.String("broadcast_id", id), slog.String("component", "http"))
		writeError(w, http.StatusInternalServerError, "list comments failed")
		return
	}
	if out == nil {
		out = []db.CommentRow{}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleStream pushes new comments of a broadcast as Server-Sent Events until the client disconnects.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "stream not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	id := chi.URLParam(r, "id")
	comments, cancel := h.deps.Hub.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case c, ok := <-comments:
			if !ok {
				return
			}
			b, err := json.Marshal(c)
			if err != nil {
				slog.Warn("failed to encode SSE comment", slog.Any("err", err))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: comment\ndata: %s\n\n", c.ID, b); err != nil {
				slog.Warn("failed to write SSE event", slog.Any("err", err))
				return
			}
			flusher.Flush()
		}
	}
}

// watchRequest is the body of POST /admin/watch.
type watchRequest = chat.Target

// HandleAdminWatch starts watching a channel or live video.
func (h *Handlers) HandleAdminWatch(w http.ResponseWriter, r *http.Request) {
	if h.deps.Watcher == nil {
		writeError(w, http.StatusServiceUnavailable, "recorders not started")
		return
	}
	var req watchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	switch err := h.deps.Watcher.Add(req); {
	case errors.Is(err, chat.ErrInvalidTarget):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrDuplicateTarget):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		telemetry.LoggerWithCorr(r.Context()).Info("target added via admin api", slog.String("target", req.String()), slog.String("component", "http"))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "watching", "target": req.String()})
	}
}
