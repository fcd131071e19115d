package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/quillnote/tasks-api/internal/models"
	"github.com/quillnote/tasks-api/internal/tasks"
	"github.com/quillnote/tasks-api/internal/validation"
	"go.uber.org/zap"
)

const (
	// MaxTitleLength is the maximum length for a task title
	MaxTitleLength = 1000
	// MaxBatchTitles is the maximum number of titles per batch creation
	MaxBatchTitles = 100
)

// TaskHandler handles task CRUD requests
type TaskHandler struct {
	repo   *tasks.Repository
	logger *zap.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(repo *tasks.Repository, logger *zap.Logger) *TaskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskHandler{repo: repo, logger: logger}
}

// RegisterRoutes registers task routes on the given router.
// The router should already have the /tasks prefix.
func (h *TaskHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListTasks).Methods("GET")
	r.HandleFunc("", h.CreateTask).Methods("POST")
	r.HandleFunc("/batch", h.CreateBatch).Methods("POST")
	r.HandleFunc("/{id}", h.GetTask).Methods("GET")
	r.HandleFunc("/{id}", h.UpdateTask).Methods("PATCH")
	r.HandleFunc("/{id}", h.DeleteTask).Methods("DELETE")
}

// CreateTaskRequest represents a create task request
type CreateTaskRequest struct {
	NoteID           *string    `json:"note_id,omitempty"`
	Title            string     `json:"title" validate:"required,min=1,max=1000"`
	Description      *string    `json:"description,omitempty"`
	Priority         *string    `json:"priority,omitempty" validate:"omitempty,task_priority"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	EstimatedMinutes *int       `json:"estimated_minutes,omitempty" validate:"omitempty,min=0"`
	Tags             []string   `json:"tags,omitempty"`
}

// UpdateTaskRequest represents a partial task update request
type UpdateTaskRequest struct {
	NoteID           *string    `json:"note_id,omitempty"`
	Title            *string    `json:"title,omitempty" validate:"omitempty,min=1,max=1000"`
	Description      *string    `json:"description,omitempty"`
	Status           *string    `json:"status,omitempty" validate:"omitempty,task_status"`
	Priority         *string    `json:"priority,omitempty" validate:"omitempty,task_priority"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	EstimatedMinutes *int       `json:"estimated_minutes,omitempty" validate:"omitempty,min=0"`
	Tags             []string   `json:"tags,omitempty"`
}

// CreateBatchRequest represents a batch creation request from the
// text-extraction collaborator
type CreateBatchRequest struct {
	NoteID string   `json:"note_id" validate:"required"`
	Titles []string `json:"titles" validate:"required,min=1,max=100"`
}

// ListTasks lists all tasks, optionally filtered by note id
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		list []*models.Task
		err  error
	)
	if noteID := r.URL.Query().Get("note_id"); noteID != "" {
		list, err = h.repo.ListByNote(ctx, noteID)
	} else {
		list, err = h.repo.ListAll(ctx)
	}
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve tasks")
		return
	}
	if list == nil {
		list = []*models.Task{}
	}

	respondJSON(w, http.StatusOK, list)
}

// CreateTask creates a new task
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	req.Title = validation.SanitizeText(req.Title)
	if req.Title == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Title is required and cannot be empty after sanitization")
		return
	}

	dto := tasks.CreateTask{
		NoteID:           req.NoteID,
		Title:            req.Title,
		Description:      req.Description,
		DueDate:          req.DueDate,
		EstimatedMinutes: req.EstimatedMinutes,
		Tags:             req.Tags,
	}
	if req.Priority != nil {
		priority := models.TaskPriority(*req.Priority)
		dto.Priority = &priority
	}

	task, err := h.repo.Create(r.Context(), dto)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create task")
		return
	}

	respondJSON(w, http.StatusCreated, task)
}

// CreateBatch creates one task per title, all linked to a note
func (h *TaskHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	created, err := h.repo.CreateBatch(r.Context(), req.NoteID, req.Titles)
	if err != nil {
		h.logger.Error("batch_create_failed",
			zap.String("note_id", req.NoteID),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create tasks")
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

// GetTask retrieves a task by ID
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	task, err := h.repo.Get(r.Context(), id)
	if err != nil {
		respondStoreError(w, err, "Task not found")
		return
	}

	respondJSON(w, http.StatusOK, task)
}

// UpdateTask applies a partial update to a task
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	update := models.TaskUpdate{
		NoteID:           req.NoteID,
		Description:      req.Description,
		DueDate:          req.DueDate,
		EstimatedMinutes: req.EstimatedMinutes,
		Tags:             req.Tags,
	}
	if req.Title != nil {
		title := validation.SanitizeText(*req.Title)
		if title == "" {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Title cannot be empty")
			return
		}
		update.Title = &title
	}
	if req.Status != nil {
		status := models.TaskStatus(*req.Status)
		update.Status = &status
	}
	if req.Priority != nil {
		priority := models.TaskPriority(*req.Priority)
		update.Priority = &priority
	}

	task, err := h.repo.Update(r.Context(), id, update)
	if err != nil {
		respondStoreError(w, err, "Task not found")
		return
	}

	respondJSON(w, http.StatusOK, task)
}

// DeleteTask deletes a task by ID
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		respondStoreError(w, err, "Task not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"deleted": id.String()})
}

// parseID extracts and parses the {id} path variable
func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	vars := mux.Vars(r)
	id, err := uuid.Parse(vars["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// decodeAndValidate decodes the JSON body into dst and runs struct
// validation, writing an error response on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		if maxBytesErr, ok := err.(*http.MaxBytesError); ok {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return false
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return false
	}

	if err := validation.Validate.Struct(dst); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, fieldError := range validationErrors {
				respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Validation failed: %s", fieldError.Error()))
				return false
			}
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Validation failed")
		return false
	}
	return true
}
