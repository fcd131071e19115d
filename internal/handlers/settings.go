package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/quillnote/tasks-api/internal/models"
	"github.com/quillnote/tasks-api/internal/settings"
)

// SettingsHandler exposes the pomodoro configuration
type SettingsHandler struct {
	service *settings.Service
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(service *settings.Service) *SettingsHandler {
	return &SettingsHandler{service: service}
}

// RegisterRoutes registers settings routes on the given router
func (h *SettingsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/settings", h.GetSettings).Methods("GET")
	r.HandleFunc("/settings", h.UpdateSettings).Methods("PATCH")
}

// UpdateSettingsRequest represents a partial settings update
type UpdateSettingsRequest struct {
	WorkDuration           *int  `json:"work_duration,omitempty" validate:"omitempty,min=1,max=480"`
	ShortBreakDuration     *int  `json:"short_break_duration,omitempty" validate:"omitempty,min=1,max=120"`
	LongBreakDuration      *int  `json:"long_break_duration,omitempty" validate:"omitempty,min=1,max=240"`
	SessionsUntilLongBreak *int  `json:"sessions_until_long_break,omitempty" validate:"omitempty,min=1,max=24"`
	AutoStartBreaks        *bool `json:"auto_start_breaks,omitempty"`
	AutoStartPomodoros     *bool `json:"auto_start_pomodoros,omitempty"`
}

// GetSettings returns the current pomodoro settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.Get(r.Context())
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve settings")
		return
	}

	respondJSON(w, http.StatusOK, cfg)
}

// UpdateSettings merges a partial update into the stored settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	cfg, err := h.service.Set(r.Context(), models.PomodoroSettingsUpdate{
		WorkDuration:           req.WorkDuration,
		ShortBreakDuration:     req.ShortBreakDuration,
		LongBreakDuration:      req.LongBreakDuration,
		SessionsUntilLongBreak: req.SessionsUntilLongBreak,
		AutoStartBreaks:        req.AutoStartBreaks,
		AutoStartPomodoros:     req.AutoStartPomodoros,
	})
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update settings")
		return
	}

	respondJSON(w, http.StatusOK, cfg)
}
