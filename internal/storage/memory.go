package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/quillnote/tasks-api/internal/models"
)

// Memory is a map-backed Backend used by unit tests of the layers above
// the storage interfaces. It keeps the same semantics as the SQL backends
// (ErrNotFound, newest-first listings, at most the caller's invariants).
type Memory struct {
	mu       sync.Mutex
	tasks    map[uuid.UUID]*models.Task
	sessions map[uuid.UUID]*models.TaskSession
	settings *models.PomodoroSettings
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		tasks:    make(map[uuid.UUID]*models.Task),
		sessions: make(map[uuid.UUID]*models.TaskSession),
	}
}

// Tasks returns the task store.
func (m *Memory) Tasks() TaskStore { return &memTaskStore{m: m} }

// Sessions returns the session store.
func (m *Memory) Sessions() SessionStore { return &memSessionStore{m: m} }

// Settings returns the settings store.
func (m *Memory) Settings() SettingsStore { return &memSettingsStore{m: m} }

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

type memTaskStore struct {
	m *Memory
}

func (s *memTaskStore) Insert(ctx context.Context, task *models.Task) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.tasks[task.ID] = copyTask(task)
	return nil
}

func (s *memTaskStore) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	task, ok := s.m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTask(task), nil
}

func (s *memTaskStore) List(ctx context.Context) ([]*models.Task, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var tasks []*models.Task
	for _, task := range s.m.tasks {
		tasks = append(tasks, copyTask(task))
	}
	sortTasksNewestFirst(tasks)
	return tasks, nil
}

func (s *memTaskStore) ListByNote(ctx context.Context, noteID string) ([]*models.Task, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var tasks []*models.Task
	for _, task := range s.m.tasks {
		if task.NoteID != nil && *task.NoteID == noteID {
			tasks = append(tasks, copyTask(task))
		}
	}
	sortTasksNewestFirst(tasks)
	return tasks, nil
}

func (s *memTaskStore) Update(ctx context.Context, task *models.Task) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	s.m.tasks[task.ID] = copyTask(task)
	return nil
}

func (s *memTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.m.tasks, id)
	return nil
}

type memSessionStore struct {
	m *Memory
}

func (s *memSessionStore) Insert(ctx context.Context, session *models.TaskSession) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.sessions[session.ID] = copySession(session)
	return nil
}

func (s *memSessionStore) Get(ctx context.Context, id uuid.UUID) (*models.TaskSession, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	session, ok := s.m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(session), nil
}

func (s *memSessionStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.TaskSession, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var sessions []*models.TaskSession
	for _, session := range s.m.sessions {
		if session.TaskID == taskID {
			sessions = append(sessions, copySession(session))
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	return sessions, nil
}

func (s *memSessionStore) Update(ctx context.Context, session *models.TaskSession) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.sessions[session.ID]; !ok {
		return ErrNotFound
	}
	s.m.sessions[session.ID] = copySession(session)
	return nil
}

func (s *memSessionStore) Open(ctx context.Context) (*models.TaskSession, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, session := range s.m.sessions {
		if session.EndedAt == nil && !session.Completed {
			return copySession(session), nil
		}
	}
	return nil, nil
}

type memSettingsStore struct {
	m *Memory
}

func (s *memSettingsStore) Get(ctx context.Context) (*models.PomodoroSettings, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.settings == nil {
		return nil, nil
	}
	settings := *s.m.settings
	return &settings, nil
}

func (s *memSettingsStore) Set(ctx context.Context, settings *models.PomodoroSettings) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	stored := *settings
	s.m.settings = &stored
	return nil
}

func sortTasksNewestFirst(tasks []*models.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

func copyTask(task *models.Task) *models.Task {
	clone := *task
	if task.Tags != nil {
		clone.Tags = append([]string(nil), task.Tags...)
	}
	return &clone
}

func copySession(session *models.TaskSession) *models.TaskSession {
	clone := *session
	return &clone
}

// Ensure concrete types implement the interfaces
var (
	_ Backend       = (*Memory)(nil)
	_ TaskStore     = (*memTaskStore)(nil)
	_ SessionStore  = (*memSessionStore)(nil)
	_ SettingsStore = (*memSettingsStore)(nil)
)
