package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/quillnote/tasks-api/internal/storage"
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondJSONError sends an error JSON response with sanitized error messages
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitizeErrorMessage(message),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage removes internal details from error messages
func sanitizeErrorMessage(message string) string {
	if len(message) > 200 {
		message = message[:200] + "..."
	}
	return message
}

// respondStoreError maps a repository error onto the right status code:
// missing records are 404, anything else is a persistence failure.
func respondStoreError(w http.ResponseWriter, err error, notFoundMessage string) {
	if errors.Is(err, storage.ErrNotFound) {
		respondJSONError(w, http.StatusNotFound, "Not Found", notFoundMessage)
		return
	}
	respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Persistence failure")
}
