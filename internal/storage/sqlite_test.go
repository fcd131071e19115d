package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quillnote/tasks-api/internal/models"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return s
}

// RFC3339 storage keeps second precision only, so test times are whole
// seconds.
func testTime(minutes int) time.Time {
	return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
}

func TestSQLiteTaskRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	store := s.Tasks()
	ctx := context.Background()

	noteID := "note-1"
	description := "a longer description"
	estimate := 90
	due := testTime(600)

	task := &models.Task{
		ID:               uuid.New(),
		NoteID:           &noteID,
		Title:            "write migration",
		Description:      &description,
		Status:           models.TaskStatusTodo,
		Priority:         models.TaskPriorityHigh,
		DueDate:          &due,
		EstimatedMinutes: &estimate,
		Tags:             []string{"infra", "deep-work"},
		CreatedAt:        testTime(0),
		UpdatedAt:        testTime(0),
	}

	if err := store.Insert(ctx, task); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != task.Title {
		t.Errorf("Expected title '%s', got '%s'", task.Title, got.Title)
	}
	if got.NoteID == nil || *got.NoteID != noteID {
		t.Errorf("Expected note_id '%s', got %v", noteID, got.NoteID)
	}
	if got.Priority != models.TaskPriorityHigh {
		t.Errorf("Expected priority 'high', got '%s'", got.Priority)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("Expected due_date %v, got %v", due, got.DueDate)
	}
	if got.EstimatedMinutes == nil || *got.EstimatedMinutes != estimate {
		t.Errorf("Expected estimated_minutes %d, got %v", estimate, got.EstimatedMinutes)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "infra" {
		t.Errorf("Expected tags to round-trip, got %v", got.Tags)
	}
	if !got.CreatedAt.Equal(task.CreatedAt) {
		t.Errorf("Expected created_at %v, got %v", task.CreatedAt, got.CreatedAt)
	}
	if got.CompletedAt != nil {
		t.Errorf("Expected nil completed_at, got %v", got.CompletedAt)
	}

	// Update and re-read
	completedAt := testTime(90)
	got.Status = models.TaskStatusDone
	got.ActualMinutes = 50
	got.CompletedAt = &completedAt
	got.UpdatedAt = completedAt
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err = store.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.TaskStatusDone {
		t.Errorf("Expected status 'done', got '%s'", got.Status)
	}
	if got.ActualMinutes != 50 {
		t.Errorf("Expected actual_minutes 50, got %d", got.ActualMinutes)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completedAt) {
		t.Errorf("Expected completed_at %v, got %v", completedAt, got.CompletedAt)
	}
}

func TestSQLiteTaskNotFound(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	store := s.Tasks()
	ctx := context.Background()

	if _, err := store.Get(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on Get, got %v", err)
	}
	if err := store.Delete(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on Delete, got %v", err)
	}
	if err := store.Update(ctx, &models.Task{ID: uuid.New(), Tags: []string{}, CreatedAt: testTime(0), UpdatedAt: testTime(0)}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on Update, got %v", err)
	}
}

func TestSQLiteListOrdering(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	store := s.Tasks()
	ctx := context.Background()

	noteID := "note-2"
	for i := 0; i < 3; i++ {
		task := &models.Task{
			ID:        uuid.New(),
			NoteID:    &noteID,
			Title:     "task",
			Status:    models.TaskStatusTodo,
			Priority:  models.TaskPriorityMedium,
			Tags:      []string{},
			CreatedAt: testTime(i),
			UpdatedAt: testTime(i),
		}
		if err := store.Insert(ctx, task); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("Expected 3 tasks, got %d", len(list))
	}
	for i := 0; i < len(list)-1; i++ {
		if list[i].CreatedAt.Before(list[i+1].CreatedAt) {
			t.Error("Expected newest-first ordering")
		}
	}

	byNote, err := store.ListByNote(ctx, noteID)
	if err != nil {
		t.Fatalf("ListByNote failed: %v", err)
	}
	if len(byNote) != 3 {
		t.Errorf("Expected 3 tasks for the note, got %d", len(byNote))
	}
	if other, err := store.ListByNote(ctx, "other"); err != nil || len(other) != 0 {
		t.Errorf("Expected no tasks for an unknown note, got %d (err %v)", len(other), err)
	}
}

func TestSQLiteSessionRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	store := s.Sessions()
	ctx := context.Background()

	session := &models.TaskSession{
		ID:        uuid.New(),
		TaskID:    uuid.New(),
		StartedAt: testTime(0),
		Type:      models.SessionTypePomodoro,
	}
	if err := store.Insert(ctx, session); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	open, err := store.Open(ctx)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if open == nil || open.ID != session.ID {
		t.Fatal("Expected the inserted session to be the open one")
	}

	ended := testTime(25)
	achievement := "reviewed the PR"
	open.EndedAt = &ended
	open.DurationMinutes = 25
	open.Completed = true
	open.Achievement = &achievement
	if err := store.Update(ctx, open); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if open, err = store.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	} else if open != nil {
		t.Error("Expected no open session after close")
	}

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(ended) {
		t.Errorf("Expected ended_at %v, got %v", ended, got.EndedAt)
	}
	if got.DurationMinutes != 25 || !got.Completed {
		t.Errorf("Expected completed 25 minute session, got %+v", got)
	}
	if got.Achievement == nil || *got.Achievement != achievement {
		t.Errorf("Expected achievement '%s', got %v", achievement, got.Achievement)
	}

	list, err := store.ListByTask(ctx, session.TaskID)
	if err != nil {
		t.Fatalf("ListByTask failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected 1 session, got %d", len(list))
	}
}

func TestSQLiteSettingsUpsert(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	store := s.Settings()
	ctx := context.Background()

	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil settings before first save, got %+v", got)
	}

	first := models.PomodoroSettings{
		WorkDuration:           25,
		ShortBreakDuration:     5,
		LongBreakDuration:      15,
		SessionsUntilLongBreak: 4,
	}
	if err := store.Set(ctx, &first); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	second := first
	second.WorkDuration = 50
	second.AutoStartBreaks = true
	if err := store.Set(ctx, &second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err = store.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected stored settings")
	}
	if *got != second {
		t.Errorf("Expected upserted settings %+v, got %+v", second, *got)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	t.Parallel()

	// A plain path or sqlite:// URL opens SQLite
	path := filepath.Join(t.TempDir(), "tasks.db")
	backend, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := backend.(*SQLite); !ok {
		t.Errorf("Expected a SQLite backend, got %T", backend)
	}
	if err := backend.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	backend, err = Open("sqlite://" + filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := backend.(*SQLite); !ok {
		t.Errorf("Expected a SQLite backend for sqlite:// URL, got %T", backend)
	}
	if err := backend.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
