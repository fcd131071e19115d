package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quillnote/tasks-api/internal/models"
	"github.com/quillnote/tasks-api/internal/storage"
	"go.uber.org/zap"
)

// Repository implements task CRUD with the business rules the stores stay
// free of: creation defaults, partial merges, updated_at refresh and the
// one-shot completed_at stamp.
type Repository struct {
	store  storage.TaskStore
	logger *zap.Logger
	now    func() time.Time
}

// NewRepository creates a task repository over the given store.
func NewRepository(store storage.TaskStore, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// CreateTask holds the caller-supplied fields for a new task.
type CreateTask struct {
	NoteID           *string
	Title            string
	Description      *string
	Priority         *models.TaskPriority
	DueDate          *time.Time
	EstimatedMinutes *int
	Tags             []string
}

// Create creates a task in status todo with a fresh id and both
// timestamps stamped to now. Priority defaults to medium.
func (r *Repository) Create(ctx context.Context, dto CreateTask) (*models.Task, error) {
	now := r.now()
	task := &models.Task{
		ID:               uuid.New(),
		NoteID:           dto.NoteID,
		Title:            dto.Title,
		Description:      dto.Description,
		Status:           models.TaskStatusTodo,
		Priority:         models.TaskPriorityMedium,
		DueDate:          dto.DueDate,
		EstimatedMinutes: dto.EstimatedMinutes,
		ActualMinutes:    0,
		Tags:             []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if dto.Priority != nil {
		task.Priority = *dto.Priority
	}
	if dto.Tags != nil {
		task.Tags = dto.Tags
	}

	if err := r.store.Insert(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	r.logger.Debug("task_created",
		zap.String("task_id", task.ID.String()),
		zap.String("priority", string(task.Priority)),
	)
	return task, nil
}

// Get retrieves a task by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return r.store.Get(ctx, id)
}

// Update merges the given partial into the stored task and refreshes
// updated_at. If the partial sets status to done and completed_at is
// unset, completed_at is stamped; a later done transition never changes
// it again.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, update models.TaskUpdate) (*models.Task, error) {
	task, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.NoteID != nil {
		task.NoteID = update.NoteID
	}
	if update.Title != nil {
		task.Title = *update.Title
	}
	if update.Description != nil {
		task.Description = update.Description
	}
	if update.Priority != nil {
		task.Priority = *update.Priority
	}
	if update.DueDate != nil {
		task.DueDate = update.DueDate
	}
	if update.EstimatedMinutes != nil {
		task.EstimatedMinutes = update.EstimatedMinutes
	}
	if update.Tags != nil {
		task.Tags = update.Tags
	}

	now := r.now()
	if update.Status != nil {
		task.Status = *update.Status
		if *update.Status == models.TaskStatusDone && task.CompletedAt == nil {
			task.CompletedAt = &now
		}
	}
	task.UpdatedAt = now

	if err := r.store.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// AddMinutes increments the task's actual_minutes by the given amount.
// Used by the session recorder when a session closes with credited time.
func (r *Repository) AddMinutes(ctx context.Context, id uuid.UUID, minutes int) (*models.Task, error) {
	if minutes < 0 {
		return nil, fmt.Errorf("minutes must be non-negative, got %d", minutes)
	}

	task, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	task.ActualMinutes += minutes
	task.UpdatedAt = r.now()

	if err := r.store.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Delete removes a task. Its sessions are left in place as historical
// records.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.store.Delete(ctx, id)
}

// ListAll returns all tasks, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]*models.Task, error) {
	return r.store.List(ctx)
}

// ListByNote returns the tasks associated with a note, newest first.
func (r *Repository) ListByNote(ctx context.Context, noteID string) ([]*models.Task, error) {
	return r.store.ListByNote(ctx, noteID)
}

// CreateBatch creates one task per title, linked to the given note, and
// returns them in input order. Titles are trimmed; blank titles are
// skipped. This is the entry point the text-extraction collaborator uses.
func (r *Repository) CreateBatch(ctx context.Context, noteID string, titles []string) ([]*models.Task, error) {
	created := make([]*models.Task, 0, len(titles))
	for _, title := range titles {
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		task, err := r.Create(ctx, CreateTask{
			NoteID: &noteID,
			Title:  title,
		})
		if err != nil {
			return created, fmt.Errorf("failed to create task %q: %w", title, err)
		}
		created = append(created, task)
	}

	r.logger.Info("tasks_created_from_note",
		zap.String("note_id", noteID),
		zap.Int("count", len(created)),
	)
	return created, nil
}
