package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/quillnote/tasks-api/internal/pomodoro"
	"go.uber.org/zap"
)

// TimerHandler exposes the pomodoro timer engine: start, pause, stop,
// complete, the current state and a change-notification stream.
type TimerHandler struct {
	engine *pomodoro.Engine
	logger *zap.Logger
}

// NewTimerHandler creates a new timer handler
func NewTimerHandler(engine *pomodoro.Engine, logger *zap.Logger) *TimerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimerHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers timer routes on the given router.
// The router should already have the /timer prefix.
func (h *TimerHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.GetState).Methods("GET")
	r.HandleFunc("/start", h.Start).Methods("POST")
	r.HandleFunc("/pause", h.TogglePause).Methods("POST")
	r.HandleFunc("/stop", h.Stop).Methods("POST")
}

// RegisterStreamRoutes registers the event stream route. Kept separate
// so the server can mount it outside the request-timeout middleware.
func (h *TimerHandler) RegisterStreamRoutes(r *mux.Router) {
	r.HandleFunc("/events", h.Events).Methods("GET")
}

// RegisterTaskRoutes registers the complete-task route on the /tasks
// subrouter; completion goes through the engine because its interplay
// with an open session is an engine concern.
func (h *TimerHandler) RegisterTaskRoutes(r *mux.Router) {
	r.HandleFunc("/{id}/complete", h.CompleteTask).Methods("POST")
}

// StartTimerRequest carries the task to start a pomodoro for
type StartTimerRequest struct {
	TaskID string `json:"task_id" validate:"required,uuid"`
}

// StopTimerRequest carries the optional free text supplied on stop
type StopTimerRequest struct {
	Achievement *string `json:"achievement,omitempty"`
	Pending     *string `json:"pending,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// GetState returns the current timer state
func (h *TimerHandler) GetState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.State())
}

// Start flips the task to in_progress, opens a session and starts the
// countdown. A 409 signals that another session is still open.
func (h *TimerHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartTimerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	id, err := uuid.Parse(req.TaskID)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid task id")
		return
	}

	state, err := h.engine.StartTask(r.Context(), id)
	if err != nil {
		if errors.Is(err, pomodoro.ErrSessionActive) {
			respondJSONError(w, http.StatusConflict, "Conflict", "A session is already active; stop it first")
			return
		}
		respondStoreError(w, err, "Task not found")
		return
	}

	respondJSON(w, http.StatusOK, state)
}

// TogglePause flips the paused flag
func (h *TimerHandler) TogglePause(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.TogglePause())
}

// StopResponse bundles the closed session with the reset timer state
type StopResponse struct {
	Session any `json:"session"`
	State   any `json:"state"`
}

// Stop closes the open session and resets the countdown. Stopping with
// no open session is a no-op with a null session in the response.
func (h *TimerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req StopTimerRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
			return
		}
	}

	session, state, err := h.engine.StopTask(r.Context(), req.Achievement, req.Pending, req.Notes)
	if err != nil {
		respondStoreError(w, err, "Session not found")
		return
	}

	respondJSON(w, http.StatusOK, StopResponse{Session: session, State: state})
}

// CompleteTask marks a task done independent of the timer
func (h *TimerHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	task, err := h.engine.CompleteTask(r.Context(), id)
	if err != nil {
		respondStoreError(w, err, "Task not found")
		return
	}

	respondJSON(w, http.StatusOK, task)
}

// Events streams timer state changes as server-sent events until the
// client disconnects.
func (h *TimerHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Streaming unsupported")
		return
	}

	states, cancel := h.engine.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Send the current state up front so clients render immediately
	if err := writeEvent(w, h.engine.State()); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			if err := writeEvent(w, state); err != nil {
				h.logger.Debug("event_stream_write_failed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
