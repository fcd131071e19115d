package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/quillnote/tasks-api/internal/models"
	_ "modernc.org/sqlite"
)

const sqliteCurrentVersion = 1

// SQLite is the embedded persistence backend, used when no Postgres URL
// is configured. Timestamps are stored as RFC3339 text.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the SQLite database at dbPath and runs
// migrations. Pass ":memory:" for an ephemeral database.
func NewSQLite(dbPath string) (*SQLite, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to exec pragma %q: %w", p, err)
		}
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return s, nil
}

// DefaultSQLitePath returns the default database location under the user
// config dir.
func DefaultSQLitePath() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "quillnote", "tasks.db"), nil
}

func (s *SQLite) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read user_version: %w", err)
	}
	if version >= sqliteCurrentVersion {
		return nil
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	_, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", sqliteCurrentVersion))
	return err
}

func (s *SQLite) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS tasks (
		id                TEXT PRIMARY KEY,
		note_id           TEXT,
		title             TEXT NOT NULL,
		description       TEXT,
		status            TEXT NOT NULL,
		priority          TEXT NOT NULL,
		due_date          TEXT,
		estimated_minutes INTEGER,
		actual_minutes    INTEGER NOT NULL DEFAULT 0,
		tags              TEXT NOT NULL DEFAULT '[]',
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL,
		completed_at      TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_note_id ON tasks(note_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_status  ON tasks(status);

	CREATE TABLE IF NOT EXISTS task_sessions (
		id               TEXT PRIMARY KEY,
		task_id          TEXT NOT NULL,
		started_at       TEXT NOT NULL,
		ended_at         TEXT,
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		session_type     TEXT NOT NULL,
		completed        INTEGER NOT NULL DEFAULT 0,
		achievement      TEXT,
		pending          TEXT,
		notes            TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_task_sessions_task_id ON task_sessions(task_id);

	CREATE TABLE IF NOT EXISTS pomodoro_settings (
		config_key                TEXT PRIMARY KEY,
		work_minutes              INTEGER NOT NULL,
		short_break_minutes       INTEGER NOT NULL,
		long_break_minutes        INTEGER NOT NULL,
		sessions_until_long_break INTEGER NOT NULL,
		auto_start_breaks         INTEGER NOT NULL,
		auto_start_pomodoros      INTEGER NOT NULL,
		updated_at                TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(ddl)
	return err
}

// Tasks returns the task store.
func (s *SQLite) Tasks() TaskStore { return &sqliteTaskStore{db: s.db} }

// Sessions returns the session store.
func (s *SQLite) Sessions() SessionStore { return &sqliteSessionStore{db: s.db} }

// Settings returns the settings store.
func (s *SQLite) Settings() SettingsStore { return &sqliteSettingsStore{db: s.db} }

// Ping verifies the database connection.
func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

type sqliteTaskStore struct {
	db *sql.DB
}

const sqliteTaskColumns = `id, note_id, title, description, status, priority, due_date, estimated_minutes, actual_minutes, tags, created_at, updated_at, completed_at`

func (s *sqliteTaskStore) Insert(ctx context.Context, task *models.Task) error {
	tagsJSON, err := json.Marshal(task.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
		INSERT INTO tasks (` + sqliteTaskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.ID.String(),
		task.NoteID,
		task.Title,
		task.Description,
		string(task.Status),
		string(task.Priority),
		formatTimePtr(task.DueDate),
		task.EstimatedMinutes,
		task.ActualMinutes,
		string(tagsJSON),
		formatTime(task.CreatedAt),
		formatTime(task.UpdatedAt),
		formatTimePtr(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (s *sqliteTaskStore) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + sqliteTaskColumns + ` FROM tasks WHERE id = ?`
	task, err := scanSQLiteTask(s.db.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func (s *sqliteTaskStore) List(ctx context.Context) ([]*models.Task, error) {
	query := `SELECT ` + sqliteTaskColumns + ` FROM tasks ORDER BY created_at DESC`
	return s.queryTasks(ctx, query)
}

func (s *sqliteTaskStore) ListByNote(ctx context.Context, noteID string) ([]*models.Task, error) {
	query := `SELECT ` + sqliteTaskColumns + ` FROM tasks WHERE note_id = ? ORDER BY created_at DESC`
	return s.queryTasks(ctx, query, noteID)
}

func (s *sqliteTaskStore) queryTasks(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

func (s *sqliteTaskStore) Update(ctx context.Context, task *models.Task) error {
	tagsJSON, err := json.Marshal(task.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
		UPDATE tasks
		SET note_id = ?, title = ?, description = ?, status = ?, priority = ?,
		    due_date = ?, estimated_minutes = ?, actual_minutes = ?, tags = ?,
		    updated_at = ?, completed_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		task.NoteID,
		task.Title,
		task.Description,
		string(task.Status),
		string(task.Priority),
		formatTimePtr(task.DueDate),
		task.EstimatedMinutes,
		task.ActualMinutes,
		string(tagsJSON),
		formatTime(task.UpdatedAt),
		formatTimePtr(task.CompletedAt),
		task.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return requireRowAffected(result)
}

func (s *sqliteTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return requireRowAffected(result)
}

type sqliteSessionStore struct {
	db *sql.DB
}

const sqliteSessionColumns = `id, task_id, started_at, ended_at, duration_minutes, session_type, completed, achievement, pending, notes`

func (s *sqliteSessionStore) Insert(ctx context.Context, session *models.TaskSession) error {
	query := `
		INSERT INTO task_sessions (` + sqliteSessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		session.ID.String(),
		session.TaskID.String(),
		formatTime(session.StartedAt),
		formatTimePtr(session.EndedAt),
		session.DurationMinutes,
		string(session.Type),
		session.Completed,
		session.Achievement,
		session.Pending,
		session.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *sqliteSessionStore) Get(ctx context.Context, id uuid.UUID) (*models.TaskSession, error) {
	query := `SELECT ` + sqliteSessionColumns + ` FROM task_sessions WHERE id = ?`
	session, err := scanSQLiteSession(s.db.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (s *sqliteSessionStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.TaskSession, error) {
	query := `SELECT ` + sqliteSessionColumns + ` FROM task_sessions WHERE task_id = ? ORDER BY started_at DESC`
	rows, err := s.db.QueryContext(ctx, query, taskID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.TaskSession
	for rows.Next() {
		session, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func (s *sqliteSessionStore) Update(ctx context.Context, session *models.TaskSession) error {
	query := `
		UPDATE task_sessions
		SET task_id = ?, started_at = ?, ended_at = ?, duration_minutes = ?,
		    session_type = ?, completed = ?, achievement = ?, pending = ?, notes = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		session.TaskID.String(),
		formatTime(session.StartedAt),
		formatTimePtr(session.EndedAt),
		session.DurationMinutes,
		string(session.Type),
		session.Completed,
		session.Achievement,
		session.Pending,
		session.Notes,
		session.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return requireRowAffected(result)
}

func (s *sqliteSessionStore) Open(ctx context.Context) (*models.TaskSession, error) {
	query := `SELECT ` + sqliteSessionColumns + ` FROM task_sessions WHERE ended_at IS NULL AND completed = 0 LIMIT 1`
	session, err := scanSQLiteSession(s.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open session: %w", err)
	}
	return session, nil
}

type sqliteSettingsStore struct {
	db *sql.DB
}

func (s *sqliteSettingsStore) Get(ctx context.Context) (*models.PomodoroSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT work_minutes, short_break_minutes, long_break_minutes,
		       sessions_until_long_break, auto_start_breaks, auto_start_pomodoros
		FROM pomodoro_settings WHERE config_key = ?
	`, defaultSettingsKey)

	settings := &models.PomodoroSettings{}
	err := row.Scan(
		&settings.WorkDuration,
		&settings.ShortBreakDuration,
		&settings.LongBreakDuration,
		&settings.SessionsUntilLongBreak,
		&settings.AutoStartBreaks,
		&settings.AutoStartPomodoros,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return settings, nil
}

func (s *sqliteSettingsStore) Set(ctx context.Context, settings *models.PomodoroSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pomodoro_settings (config_key, work_minutes, short_break_minutes, long_break_minutes,
			sessions_until_long_break, auto_start_breaks, auto_start_pomodoros, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (config_key) DO UPDATE SET
			work_minutes = excluded.work_minutes,
			short_break_minutes = excluded.short_break_minutes,
			long_break_minutes = excluded.long_break_minutes,
			sessions_until_long_break = excluded.sessions_until_long_break,
			auto_start_breaks = excluded.auto_start_breaks,
			auto_start_pomodoros = excluded.auto_start_pomodoros,
			updated_at = excluded.updated_at
	`, defaultSettingsKey,
		settings.WorkDuration,
		settings.ShortBreakDuration,
		settings.LongBreakDuration,
		settings.SessionsUntilLongBreak,
		settings.AutoStartBreaks,
		settings.AutoStartPomodoros,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to set settings: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func scanSQLiteTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var id string
	var noteID, description sql.NullString
	var dueDate, completedAt sql.NullString
	var estimatedMinutes sql.NullInt64
	var tagsJSON, createdAt, updatedAt string

	err := row.Scan(
		&id,
		&noteID,
		&task.Title,
		&description,
		&task.Status,
		&task.Priority,
		&dueDate,
		&estimatedMinutes,
		&task.ActualMinutes,
		&tagsJSON,
		&createdAt,
		&updatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	task.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse task id: %w", err)
	}
	if noteID.Valid {
		task.NoteID = &noteID.String
	}
	if description.Valid {
		task.Description = &description.String
	}
	if estimatedMinutes.Valid {
		v := int(estimatedMinutes.Int64)
		task.EstimatedMinutes = &v
	}
	if err := json.Unmarshal([]byte(tagsJSON), &task.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if task.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if task.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if task.DueDate, err = parseTimePtr(dueDate); err != nil {
		return nil, fmt.Errorf("failed to parse due_date: %w", err)
	}
	if task.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, fmt.Errorf("failed to parse completed_at: %w", err)
	}
	return task, nil
}

func scanSQLiteSession(row rowScanner) (*models.TaskSession, error) {
	session := &models.TaskSession{}
	var id, taskID, startedAt string
	var endedAt sql.NullString
	var achievement, pending, notes sql.NullString

	err := row.Scan(
		&id,
		&taskID,
		&startedAt,
		&endedAt,
		&session.DurationMinutes,
		&session.Type,
		&session.Completed,
		&achievement,
		&pending,
		&notes,
	)
	if err != nil {
		return nil, err
	}

	if session.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse session id: %w", err)
	}
	if session.TaskID, err = uuid.Parse(taskID); err != nil {
		return nil, fmt.Errorf("failed to parse session task id: %w", err)
	}
	if session.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if session.EndedAt, err = parseTimePtr(endedAt); err != nil {
		return nil, fmt.Errorf("failed to parse ended_at: %w", err)
	}
	if achievement.Valid {
		session.Achievement = &achievement.String
	}
	if pending.Valid {
		session.Pending = &pending.String
	}
	if notes.Valid {
		session.Notes = &notes.String
	}
	return session, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Ensure concrete types implement the interfaces
var (
	_ Backend       = (*SQLite)(nil)
	_ TaskStore     = (*sqliteTaskStore)(nil)
	_ SessionStore  = (*sqliteSessionStore)(nil)
	_ SettingsStore = (*sqliteSettingsStore)(nil)
)
