package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quillnote/tasks-api/internal/models"
	"github.com/quillnote/tasks-api/internal/storage"
	"github.com/quillnote/tasks-api/internal/tasks"
	"go.uber.org/zap"
)

// Recorder manages task sessions: one record per timed work or break
// interval. Closing a session with credited minutes also increments the
// owning task's actual_minutes, so the task's running total stays
// consistent without a second write by the caller.
type Recorder struct {
	store    storage.SessionStore
	taskRepo *tasks.Repository
	logger   *zap.Logger
	now      func() time.Time
}

// NewRecorder creates a session recorder. taskRepo receives the minute
// credit when sessions close.
func NewRecorder(store storage.SessionStore, taskRepo *tasks.Repository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:    store,
		taskRepo: taskRepo,
		logger:   logger,
		now:      time.Now,
	}
}

// Open creates a new open session for the task: started now, zero
// duration, not completed. sessionType defaults to pomodoro when empty.
func (r *Recorder) Open(ctx context.Context, taskID uuid.UUID, sessionType models.SessionType) (*models.TaskSession, error) {
	if sessionType == "" {
		sessionType = models.SessionTypePomodoro
	}

	session := &models.TaskSession{
		ID:              uuid.New(),
		TaskID:          taskID,
		StartedAt:       r.now(),
		DurationMinutes: 0,
		Type:            sessionType,
		Completed:       false,
	}
	if err := r.store.Insert(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	r.logger.Debug("session_opened",
		zap.String("session_id", session.ID.String()),
		zap.String("task_id", taskID.String()),
		zap.String("type", string(sessionType)),
	)
	return session, nil
}

// Get retrieves a session by id.
func (r *Recorder) Get(ctx context.Context, id uuid.UUID) (*models.TaskSession, error) {
	return r.store.Get(ctx, id)
}

// GetByTask returns all sessions for a task, newest first.
func (r *Recorder) GetByTask(ctx context.Context, taskID uuid.UUID) ([]*models.TaskSession, error) {
	return r.store.ListByTask(ctx, taskID)
}

// OpenSession returns the single open session, or nil if none exists.
func (r *Recorder) OpenSession(ctx context.Context) (*models.TaskSession, error) {
	return r.store.Open(ctx)
}

// CloseAndCredit merges the given partial into the session and, when the
// close carries a non-zero duration, credits those minutes to the owning
// task. The two writes are sequenced, not transactional; the session
// write lands first so the open-session invariant is released before the
// task total moves.
func (r *Recorder) CloseAndCredit(ctx context.Context, id uuid.UUID, partial models.SessionClose) (*models.TaskSession, error) {
	session, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if partial.EndedAt != nil {
		session.EndedAt = partial.EndedAt
	}
	if partial.DurationMinutes != nil {
		session.DurationMinutes = *partial.DurationMinutes
	}
	if partial.Completed != nil {
		session.Completed = *partial.Completed
	}
	if partial.Achievement != nil {
		session.Achievement = partial.Achievement
	}
	if partial.Pending != nil {
		session.Pending = partial.Pending
	}
	if partial.Notes != nil {
		session.Notes = partial.Notes
	}

	if err := r.store.Update(ctx, session); err != nil {
		return nil, err
	}

	if partial.DurationMinutes != nil && *partial.DurationMinutes != 0 {
		if _, err := r.taskRepo.AddMinutes(ctx, session.TaskID, *partial.DurationMinutes); err != nil {
			return nil, fmt.Errorf("failed to credit task minutes: %w", err)
		}
	}

	r.logger.Debug("session_closed",
		zap.String("session_id", session.ID.String()),
		zap.String("task_id", session.TaskID.String()),
		zap.Int("duration_minutes", session.DurationMinutes),
		zap.Bool("completed", session.Completed),
	)
	return session, nil
}

// TotalTimeForTask sums duration_minutes over all sessions for a task.
func (r *Recorder) TotalTimeForTask(ctx context.Context, taskID uuid.UUID) (int, error) {
	sessions, err := r.store.ListByTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, session := range sessions {
		total += session.DurationMinutes
	}
	return total, nil
}
