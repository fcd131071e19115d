package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/quillnote/tasks-api/internal/stats"
)

// StatsHandler exposes the read-side task statistics
type StatsHandler struct {
	aggregator *stats.Aggregator
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(aggregator *stats.Aggregator) *StatsHandler {
	return &StatsHandler{aggregator: aggregator}
}

// RegisterRoutes registers stats routes on the given router
func (h *StatsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/stats", h.GetTaskStats).Methods("GET")
}

// GetTaskStats counts tasks by status, computed fresh on every call
func (h *StatsHandler) GetTaskStats(w http.ResponseWriter, r *http.Request) {
	taskStats, err := h.aggregator.GetTaskStats(r.Context())
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to compute stats")
		return
	}

	respondJSON(w, http.StatusOK, taskStats)
}
