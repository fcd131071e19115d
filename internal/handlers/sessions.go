package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/quillnote/tasks-api/internal/models"
	"github.com/quillnote/tasks-api/internal/sessions"
)

// SessionHandler handles session read requests. Sessions are created and
// closed through the timer engine, not directly.
type SessionHandler struct {
	recorder *sessions.Recorder
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(recorder *sessions.Recorder) *SessionHandler {
	return &SessionHandler{recorder: recorder}
}

// RegisterRoutes registers session routes on the given router.
// The router should already have the /sessions prefix.
func (h *SessionHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/open", h.GetOpenSession).Methods("GET")
	r.HandleFunc("/{id}", h.GetSession).Methods("GET")
}

// RegisterTaskRoutes registers the per-task session listing on the
// /tasks subrouter.
func (h *SessionHandler) RegisterTaskRoutes(r *mux.Router) {
	r.HandleFunc("/{id}/sessions", h.ListByTask).Methods("GET")
	r.HandleFunc("/{id}/time", h.TotalTime).Methods("GET")
}

// GetSession retrieves a session by ID
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	session, err := h.recorder.Get(r.Context(), id)
	if err != nil {
		respondStoreError(w, err, "Session not found")
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// GetOpenSession returns the single open session, or null if none exists
func (h *SessionHandler) GetOpenSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.recorder.OpenSession(r.Context())
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve open session")
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// ListByTask lists all sessions for a task, newest first
func (h *SessionHandler) ListByTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	list, err := h.recorder.GetByTask(r.Context(), id)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve sessions")
		return
	}
	if list == nil {
		list = []*models.TaskSession{}
	}

	respondJSON(w, http.StatusOK, list)
}

// TotalTimeResponse reports the minutes recorded against a task
type TotalTimeResponse struct {
	TaskID       string `json:"task_id"`
	TotalMinutes int    `json:"total_minutes"`
}

// TotalTime sums session minutes for a task
func (h *SessionHandler) TotalTime(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	total, err := h.recorder.TotalTimeForTask(r.Context(), id)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to compute total time")
		return
	}

	respondJSON(w, http.StatusOK, TotalTimeResponse{TaskID: id.String(), TotalMinutes: total})
}
