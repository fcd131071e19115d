package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/quillnote/tasks-api/internal/models"
)

// ErrNotFound is returned when a referenced record does not exist.
// Any other store error indicates a persistence failure.
var ErrNotFound = errors.New("record not found")

// TaskStore is the opaque CRUD surface for task records. Business rules
// (defaulting, partial merges, completed_at stamping) live in the layers
// above; implementations only move full records in and out of the backend.
type TaskStore interface {
	Insert(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id uuid.UUID) (*models.Task, error)
	List(ctx context.Context) ([]*models.Task, error)
	ListByNote(ctx context.Context, noteID string) ([]*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// SessionStore is the opaque CRUD surface for task session records.
type SessionStore interface {
	Insert(ctx context.Context, session *models.TaskSession) error
	Get(ctx context.Context, id uuid.UUID) (*models.TaskSession, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.TaskSession, error)
	Update(ctx context.Context, session *models.TaskSession) error
	// Open returns the session with no end time and completed=false,
	// or nil if none exists.
	Open(ctx context.Context) (*models.TaskSession, error)
}

// SettingsStore persists the pomodoro configuration as a single record.
type SettingsStore interface {
	// Get returns the stored settings, or nil if none have been saved yet.
	Get(ctx context.Context) (*models.PomodoroSettings, error)
	Set(ctx context.Context, settings *models.PomodoroSettings) error
}

// Backend bundles the three stores a single persistence backend provides.
type Backend interface {
	Tasks() TaskStore
	Sessions() SessionStore
	Settings() SettingsStore
	Ping(ctx context.Context) error
	Close() error
}

// Open selects a backend from the database URL. postgres:// and
// postgresql:// URLs use Postgres; anything else is treated as a SQLite
// file path (sqlite:// and file: prefixes are stripped).
func Open(databaseURL string) (Backend, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return NewPostgres(databaseURL)
	}
	path := strings.TrimPrefix(databaseURL, "sqlite://")
	path = strings.TrimPrefix(path, "file:")
	return NewSQLite(path)
}
