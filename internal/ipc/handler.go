// Package ipc provides the HTTP API of the orchestrator.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/workflow"
)

// Runner answers questions; *workflow.Driver implements it.
type Runner interface {
	Run(ctx context.Context, question, file string) (*domain.RunResult, error)
	Resume(ctx context.Context, src workflow.Restorer, id string) (*domain.RunResult, error)
}

// SessionStore is the read side of the session recorder, plus restore.
type SessionStore interface {
	workflow.Restorer
	Session(ctx context.Context, id string) (*domain.SessionRecord, error)
	Sessions(ctx context.Context, limit int) ([]domain.SessionRecord, error)
	Messages(ctx context.Context, id string) ([]domain.Message, error)
	Events(ctx context.Context, id string) ([]domain.StepEvent, error)
	Usage(ctx context.Context, id string) (in, out int64, err error)
}

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Runner   Runner
	Sessions SessionStore
	Logger   *slog.Logger
	// PollInterval paces the event stream; defaults to two seconds.
	PollInterval time.Duration
}

// AskRequest is the body for POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question"`
	FileName string `json:"file_name"`
}

// SessionView is the response for GET /api/v1/sessions/{id}.
type SessionView struct {
	ID             string               `json:"id"`
	Question       string               `json:"question"`
	AttachedFile   string               `json:"attached_file,omitempty"`
	Status         domain.SessionStatus `json:"status"`
	CurrentStep    domain.Step          `json:"current_step"`
	FinalAnswer    string               `json:"final_answer"`
	FinalReasoning string               `json:"final_reasoning"`
	InputTokens    int64                `json:"input_tokens"`
	OutputTokens   int64                `json:"output_tokens"`
	CreatedAt      int64                `json:"created_at"`
	UpdatedAt      int64                `json:"updated_at"`
}

// EventView is one transition in GET /api/v1/sessions/{id}/events.
type EventView struct {
	Seq       int64       `json:"seq"`
	From      domain.Step `json:"from"`
	To        domain.Step `json:"to"`
	EventType string      `json:"event_type"`
	Detail    string      `json:"detail,omitempty"`
	CreatedAt int64       `json:"created_at"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ask handles POST /api/v1/ask. The run is synchronous; the response is
// the final result including the full message log.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "question is required"})
		return
	}

	res, err := h.Runner.Run(r.Context(), req.Question, req.FileName)
	if err != nil {
		h.logger().Error("ask failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Resume handles POST /api/v1/sessions/{id}/resume.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := h.Runner.Resume(r.Context(), h.Sessions, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListSessions handles GET /api/v1/sessions?limit=N.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	recs, err := h.Sessions.Sessions(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]SessionView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, sessionView(rec, 0, 0))
	}
	writeJSON(w, http.StatusOK, views)
}

// GetSession handles GET /api/v1/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.Sessions.Session(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	in, out, err := h.Sessions.Usage(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(*rec, in, out))
}

// ListMessages handles GET /api/v1/sessions/{id}/messages.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.Sessions.Messages(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// ListEvents handles GET /api/v1/sessions/{id}/events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.Sessions.Session(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	events, err := h.Sessions.Events(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]EventView, 0, len(events))
	for _, ev := range events {
		views = append(views, eventView(ev))
	}
	writeJSON(w, http.StatusOK, views)
}

// StreamEvents handles GET /api/v1/sessions/{id}/events/stream (SSE). It
// ends once the session is no longer running.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, APIError{Code: 500, Message: "streaming not supported"})
		return
	}
	if _, err := h.Sessions.Session(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	interval := h.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ctx := r.Context()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastSeq := int64(0)
	for {
		events, err := h.Sessions.Events(ctx, id)
		if err != nil {
			writeSSEError(w, flusher, err)
			return
		}
		for _, ev := range events {
			if ev.SeqNo <= lastSeq {
				continue
			}
			writeSSEEvent(w, flusher, eventView(ev))
			lastSeq = ev.SeqNo
		}

		rec, err := h.Sessions.Session(ctx, id)
		if err != nil {
			writeSSEError(w, flusher, err)
			return
		}
		if rec.Status != domain.SessionRunning {
			fmt.Fprintf(w, "event: done\ndata: %s\n\n", rec.Status)
			flusher.Flush()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func sessionView(rec domain.SessionRecord, in, out int64) SessionView {
	return SessionView{
		ID:             rec.ID,
		Question:       rec.Question,
		AttachedFile:   rec.AttachedFile,
		Status:         rec.Status,
		CurrentStep:    rec.CurrentStep,
		FinalAnswer:    rec.FinalAnswer,
		FinalReasoning: rec.FinalReasoning,
		InputTokens:    in,
		OutputTokens:   out,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func eventView(ev domain.StepEvent) EventView {
	return EventView{
		Seq:       ev.SeqNo,
		From:      ev.From,
		To:        ev.To,
		EventType: ev.EventType,
		Detail:    ev.Detail,
		CreatedAt: ev.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var engErr *domain.EngineError
	if errors.As(err, &engErr) {
		status := http.StatusInternalServerError
		switch engErr.Code {
		case domain.ErrSessionNotFound.Code:
			status = http.StatusNotFound
		case domain.ErrSessionDone.Code, domain.ErrOptimisticLock.Code:
			status = http.StatusConflict
		case domain.ErrMessageInvalid.Code, domain.ErrConfigInvalid.Code:
			status = http.StatusBadRequest
		case domain.ErrInvalidState.Code, domain.ErrCheckpointCorrupt.Code:
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, APIError{Code: engErr.Code, Message: engErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}

func writeSSEEvent(w http.ResponseWriter, f http.Flusher, ev EventView) {
	data, _ := json.Marshal(ev)
	fmt.Fprintf(w, "data: %s\n\n", data)
	f.Flush()
}

func writeSSEError(w http.ResponseWriter, f http.Flusher, err error) {
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
	f.Flush()
}
