package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AltairaLabs/discovery-agent/internal/normalize"
	"github.com/AltairaLabs/discovery-agent/internal/session"
)

const maxRequestBody = 1 << 20

// sessionView is the JSON shape of a session
type sessionView struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	CreatedAt  time.Time  `json:"created_at"`
	LastActive time.Time  `json:"last_active"`
	Turns      []turnView `json:"turns"`
}

type turnView struct {
	Seq        int        `json:"seq"`
	Query      string     `json:"query"`
	Answer     string     `json:"answer"`
	Specialist string     `json:"specialist"`
	Strategy   string     `json:"strategy"`
	Calls      []callView `json:"calls,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type callView struct {
	Service  string `json:"service"`
	Tool     string `json:"tool"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
}

type summaryView struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	TurnCount int       `json:"turn_count"`
}

func newSessionView(s *session.Session) sessionView {
	v := sessionView{
		ID:         s.ID,
		UserID:     s.UserID,
		CreatedAt:  s.CreatedAt,
		LastActive: s.LastActive,
		Turns:      make([]turnView, 0, len(s.Turns)),
	}
	for _, t := range s.Turns {
		tv := turnView{
			Seq:        t.Seq,
			Query:      t.Query,
			Answer:     t.Answer,
			Specialist: t.Specialist,
			Strategy:   t.Strategy,
			CreatedAt:  t.CreatedAt,
		}
		for _, c := range t.Calls {
			tv.Calls = append(tv.Calls, callView(c))
		}
		v.Turns = append(v.Turns, tv)
	}
	return v
}

func newSummaryViews(list []session.Summary) []summaryView {
	out := make([]summaryView, 0, len(list))
	for _, s := range list {
		out = append(out, summaryView(s))
	}
	return out
}

// queryBody is the JSON body of the query endpoints. The primary text may sit
// under any of the normalizer's primary keys; session_id and user_id are
// routing fields and never part of the input.
type queryBody map[string]any

func (b queryBody) request() QueryRequest {
	req := QueryRequest{
		SessionID: stringField(b, "session_id"),
		UserID:    stringField(b, "user_id"),
	}
	if v, ok := b["input"]; ok {
		req.Input = v
		return req
	}
	rest := make(map[string]any, len(b))
	for k, v := range b {
		if k != "session_id" && k != "user_id" {
			rest[k] = v
		}
	}
	req.Input = rest
	return req
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// HTTPHandler serves the coordinator as a JSON API
func (c *Coordinator) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", c.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions", c.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", c.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", c.handleDeleteSession)
	mux.HandleFunc("POST /v1/query", c.handleQuery)
	mux.HandleFunc("POST /v1/stream_query", c.handleStreamQuery)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	return mux
}

func userParam(r *http.Request) string {
	if u := r.Header.Get("X-User-ID"); u != "" {
		return u
	}
	return r.URL.Query().Get("user_id")
}

func (c *Coordinator) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
			return
		}
	}
	if body.UserID == "" {
		body.UserID = userParam(r)
	}
	s, err := c.CreateSession(r.Context(), body.UserID)
	if err != nil {
		c.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionView(s))
}

func (c *Coordinator) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := c.ListSessions(r.Context(), userParam(r))
	if err != nil {
		c.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryViews(list))
}

func (c *Coordinator) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, err := c.GetSession(r.Context(), r.PathValue("id"), userParam(r))
	if err != nil {
		c.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(s))
}

func (c *Coordinator) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := c.DeleteSession(r.Context(), r.PathValue("id"), userParam(r)); err != nil {
		c.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeQuery(r *http.Request) (QueryRequest, error) {
	var body queryBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&body); err != nil {
		return QueryRequest{}, fmt.Errorf("invalid body: %w", err)
	}
	req := body.request()
	if req.UserID == "" {
		req.UserID = userParam(r)
	}
	return req, nil
}

func (c *Coordinator) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := c.Query(r.Context(), req)
	if err != nil {
		c.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStreamQuery writes one "fragment" event per answer fragment and a
// final "done" event carrying the response metadata
func (c *Coordinator) handleStreamQuery(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stream, err := c.StreamQuery(r.Context(), req)
	if err != nil {
		c.writeErr(w, err)
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for fragment := range stream.Fragments() {
		if err := writeEvent(w, "fragment", fragment); err != nil {
			c.logger.WarnContext(r.Context(), "Stream consumer went away", "session_id", stream.SessionID(), "error", err)
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if err := stream.Err(); err != nil {
		_ = writeEvent(w, "error", map[string]string{"error": err.Error()})
	} else if resp := stream.Response(); resp != nil {
		_ = writeEvent(w, "done", resp.Metadata)
	}
	if flusher != nil {
		flusher.Flush()
	}
}

func writeEvent(w io.Writer, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	return err
}

func (c *Coordinator) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, normalize.ErrValidation), errors.Is(err, session.ErrInvalidUser):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		c.logger.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
