package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"transcribe-stream-service/internal/models"
	"transcribe-stream-service/internal/service/decoder"
	"transcribe-stream-service/internal/service/session"
	"transcribe-stream-service/internal/service/transcript"
)

const (
	maxAudioFrameBytes = 1 << 20
	maxEnvelopeBytes   = 4 << 20
)

type handler struct {
	sessions *session.Manager
}

type createSessionRequest struct {
	TenantID string `json:"tenantId"`
}

type sessionResponse struct {
	SessionID     string                  `json:"sessionId"`
	TenantID      string                  `json:"tenantId,omitempty"`
	State         string                  `json:"state"`
	Text          string                  `json:"text"`
	Annotations   []models.AnnotationView `json:"annotations"`
	HistoryLength int                     `json:"historyLength"`
	UndoneLength  int                     `json:"undoneLength"`
	AudioBytes    int64                   `json:"audioBytes"`
	LastError     string                  `json:"lastError,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newSessionResponse(snap session.Snapshot) sessionResponse {
	resp := sessionResponse{
		SessionID:     snap.ID,
		TenantID:      snap.TenantID,
		State:         snap.State.String(),
		Text:          snap.Text,
		Annotations:   models.NewAnnotationViews(snap.Annotations),
		HistoryLength: snap.HistoryLen,
		UndoneLength:  snap.UndoneLen,
		AudioBytes:    snap.AudioBytes,
	}
	if snap.LastError != nil {
		resp.LastError = snap.LastError.Error()
	}
	return resp
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
			return
		}
	}

	s, err := h.sessions.Create(r.Context(), req.TenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(s.Snapshot()))
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s.Snapshot()))
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Close(s.ID()); err != nil && !errors.Is(err, session.ErrNotFound) {
		log.Warn().Err(err).Str("sessionId", s.ID()).Msg("Transport reported an error on close")
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s.Snapshot()))
}

func (h *handler) sendAudio(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	frame, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioFrameBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		return
	}
	if err := s.SendAudio(r.Context(), frame); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) receiveActions(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEnvelopeBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		return
	}
	if err := s.ReceiveRaw(r.Context(), string(body)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s.Snapshot()))
}

func (h *handler) undo(w http.ResponseWriter, r *http.Request) {
	h.moveHistory(w, r, (*session.Session).Undo)
}

func (h *handler) redo(w http.ResponseWriter, r *http.Request) {
	h.moveHistory(w, r, (*session.Session).Redo)
}

func (h *handler) moveHistory(w http.ResponseWriter, r *http.Request, move func(*session.Session, context.Context, int) error) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	count := 1
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "count must be an integer"})
			return
		}
		count = n
	}
	if err := move(s, r.Context(), count); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s.Snapshot()))
}

func (h *handler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, decoder.ErrDecode),
		errors.Is(err, transcript.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionClosed),
		errors.Is(err, session.ErrNotOpen):
		return http.StatusConflict
	case errors.Is(err, session.ErrLimitExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, transcript.ErrInvalidRange),
		errors.Is(err, transcript.ErrDuplicateAnnotation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}
