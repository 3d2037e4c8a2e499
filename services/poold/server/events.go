package server

import (
	"net/http"
	"strconv"
	"time"

	"thurman/services/poold/journal"
)

type eventResponse struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Pool       string            `json:"pool,omitempty"`
	Attributes map[string]string `json:"attributes"`
	Hash       string            `json:"hash"`
	PrevHash   string            `json:"prevHash"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func unavailable(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: what + " not configured", Code: "unavailable"})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		unavailable(w, "journal")
		return
	}
	q := journal.Query{
		Pool: r.URL.Query().Get("pool"),
		Type: r.URL.Query().Get("type"),
	}
	if raw := r.URL.Query().Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, badRequest("invalid after %q", raw))
			return
		}
		q.AfterSeq = after
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, r, badRequest("invalid limit %q", raw))
			return
		}
		q.Limit = limit
	}
	entries, err := s.journal.List(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]eventResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, eventResponse{
			Seq:        e.Seq,
			Type:       e.Type,
			Pool:       e.Pool,
			Attributes: e.Fields(),
			Hash:       e.Hash,
			PrevHash:   e.PrevHash,
			CreatedAt:  e.CreatedAt.UTC(),
		})
	}
	head, hash := s.journal.Head()
	writeJSON(w, http.StatusOK, map[string]any{"events": out, "head": head, "headHash": hash})
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		unavailable(w, "event stream")
		return
	}
	s.hub.Handler(s.origins).ServeHTTP(w, r)
}

func (s *Server) exportEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil || s.exportDir == "" {
		unavailable(w, "journal export")
		return
	}
	if _, err := callerOf(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		AfterSeq uint64 `json:"afterSeq"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	path, rows, err := s.journal.Export(r.Context(), s.exportDir, body.AfterSeq)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "rows": rows})
}
