package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/quillnote/tasks-api/internal/models"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS tasks (
		id                UUID PRIMARY KEY,
		note_id           TEXT,
		title             TEXT NOT NULL,
		description       TEXT,
		status            TEXT NOT NULL,
		priority          TEXT NOT NULL,
		due_date          TIMESTAMPTZ,
		estimated_minutes INTEGER,
		actual_minutes    INTEGER NOT NULL DEFAULT 0,
		tags              JSONB NOT NULL DEFAULT '[]',
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL,
		completed_at      TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_note_id ON tasks(note_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_status  ON tasks(status);

	CREATE TABLE IF NOT EXISTS task_sessions (
		id               UUID PRIMARY KEY,
		task_id          UUID NOT NULL,
		started_at       TIMESTAMPTZ NOT NULL,
		ended_at         TIMESTAMPTZ,
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		session_type     TEXT NOT NULL,
		completed        BOOLEAN NOT NULL DEFAULT FALSE,
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
		auto_start_breaks         BOOLEAN NOT NULL,
		auto_start_pomodoros      BOOLEAN NOT NULL,
		updated_at                TIMESTAMPTZ NOT NULL
	);
`

// Postgres is the Postgres-backed persistence backend.
type Postgres struct {
	db *sql.DB
}

// NewPostgres connects to Postgres at the given URL and ensures the schema.
func NewPostgres(databaseURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Tasks returns the task store.
func (p *Postgres) Tasks() TaskStore { return &pgTaskStore{db: p.db} }

// Sessions returns the session store.
func (p *Postgres) Sessions() SessionStore { return &pgSessionStore{db: p.db} }

// Settings returns the settings store.
func (p *Postgres) Settings() SettingsStore { return &pgSettingsStore{db: p.db} }

// Ping verifies the database connection.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Close closes the database connection.
func (p *Postgres) Close() error { return p.db.Close() }

type pgTaskStore struct {
	db *sql.DB
}

const pgTaskColumns = `id, note_id, title, description, status, priority, due_date, estimated_minutes, actual_minutes, tags, created_at, updated_at, completed_at`

func (s *pgTaskStore) Insert(ctx context.Context, task *models.Task) error {
	tagsJSON, err := json.Marshal(task.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
		INSERT INTO tasks (` + pgTaskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.NoteID,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.DueDate,
		task.EstimatedMinutes,
		task.ActualMinutes,
		tagsJSON,
		task.CreatedAt,
		task.UpdatedAt,
		task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (s *pgTaskStore) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + pgTaskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func (s *pgTaskStore) List(ctx context.Context) ([]*models.Task, error) {
	query := `SELECT ` + pgTaskColumns + ` FROM tasks ORDER BY created_at DESC`
	return s.queryTasks(ctx, query)
}

func (s *pgTaskStore) ListByNote(ctx context.Context, noteID string) ([]*models.Task, error) {
	query := `SELECT ` + pgTaskColumns + ` FROM tasks WHERE note_id = $1 ORDER BY created_at DESC`
	return s.queryTasks(ctx, query, noteID)
}

func (s *pgTaskStore) queryTasks(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
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

func (s *pgTaskStore) Update(ctx context.Context, task *models.Task) error {
	tagsJSON, err := json.Marshal(task.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
		UPDATE tasks
		SET note_id = $2, title = $3, description = $4, status = $5, priority = $6,
		    due_date = $7, estimated_minutes = $8, actual_minutes = $9, tags = $10,
		    updated_at = $11, completed_at = $12
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.NoteID,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.DueDate,
		task.EstimatedMinutes,
		task.ActualMinutes,
		tagsJSON,
		task.UpdatedAt,
		task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return requireRowAffected(result)
}

func (s *pgTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return requireRowAffected(result)
}

type pgSessionStore struct {
	db *sql.DB
}

const pgSessionColumns = `id, task_id, started_at, ended_at, duration_minutes, session_type, completed, achievement, pending, notes`

func (s *pgSessionStore) Insert(ctx context.Context, session *models.TaskSession) error {
	query := `
		INSERT INTO task_sessions (` + pgSessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.TaskID,
		session.StartedAt,
		session.EndedAt,
		session.DurationMinutes,
		session.Type,
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

func (s *pgSessionStore) Get(ctx context.Context, id uuid.UUID) (*models.TaskSession, error) {
	query := `SELECT ` + pgSessionColumns + ` FROM task_sessions WHERE id = $1`
	session, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (s *pgSessionStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.TaskSession, error) {
	query := `SELECT ` + pgSessionColumns + ` FROM task_sessions WHERE task_id = $1 ORDER BY started_at DESC`
	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.TaskSession
	for rows.Next() {
		session, err := scanSession(rows)
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

func (s *pgSessionStore) Update(ctx context.Context, session *models.TaskSession) error {
	query := `
		UPDATE task_sessions
		SET task_id = $2, started_at = $3, ended_at = $4, duration_minutes = $5,
		    session_type = $6, completed = $7, achievement = $8, pending = $9, notes = $10
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.TaskID,
		session.StartedAt,
		session.EndedAt,
		session.DurationMinutes,
		session.Type,
		session.Completed,
		session.Achievement,
		session.Pending,
		session.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return requireRowAffected(result)
}

func (s *pgSessionStore) Open(ctx context.Context) (*models.TaskSession, error) {
	query := `SELECT ` + pgSessionColumns + ` FROM task_sessions WHERE ended_at IS NULL AND completed = FALSE LIMIT 1`
	session, err := scanSession(s.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open session: %w", err)
	}
	return session, nil
}

const defaultSettingsKey = "default"

type pgSettingsStore struct {
	db *sql.DB
}

func (s *pgSettingsStore) Get(ctx context.Context) (*models.PomodoroSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT work_minutes, short_break_minutes, long_break_minutes,
		       sessions_until_long_break, auto_start_breaks, auto_start_pomodoros
		FROM pomodoro_settings WHERE config_key = $1
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

func (s *pgSettingsStore) Set(ctx context.Context, settings *models.PomodoroSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pomodoro_settings (config_key, work_minutes, short_break_minutes, long_break_minutes,
			sessions_until_long_break, auto_start_breaks, auto_start_pomodoros, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (config_key) DO UPDATE SET
			work_minutes = EXCLUDED.work_minutes,
			short_break_minutes = EXCLUDED.short_break_minutes,
			long_break_minutes = EXCLUDED.long_break_minutes,
			sessions_until_long_break = EXCLUDED.sessions_until_long_break,
			auto_start_breaks = EXCLUDED.auto_start_breaks,
			auto_start_pomodoros = EXCLUDED.auto_start_pomodoros,
			updated_at = EXCLUDED.updated_at
	`, defaultSettingsKey,
		settings.WorkDuration,
		settings.ShortBreakDuration,
		settings.LongBreakDuration,
		settings.SessionsUntilLongBreak,
		settings.AutoStartBreaks,
		settings.AutoStartPomodoros,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to set settings: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var noteID, description sql.NullString
	var dueDate, completedAt sql.NullTime
	var estimatedMinutes sql.NullInt64
	var tagsJSON []byte

	err := row.Scan(
		&task.ID,
		&noteID,
		&task.Title,
		&description,
		&task.Status,
		&task.Priority,
		&dueDate,
		&estimatedMinutes,
		&task.ActualMinutes,
		&tagsJSON,
		&task.CreatedAt,
		&task.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if noteID.Valid {
		task.NoteID = &noteID.String
	}
	if description.Valid {
		task.Description = &description.String
	}
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	if estimatedMinutes.Valid {
		v := int(estimatedMinutes.Int64)
		task.EstimatedMinutes = &v
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	if err := json.Unmarshal(tagsJSON, &task.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	return task, nil
}

func scanSession(row rowScanner) (*models.TaskSession, error) {
	session := &models.TaskSession{}
	var endedAt sql.NullTime
	var achievement, pending, notes sql.NullString

	err := row.Scan(
		&session.ID,
		&session.TaskID,
		&session.StartedAt,
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

	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
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

func requireRowAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ensure concrete types implement the interfaces
var (
	_ Backend       = (*Postgres)(nil)
	_ TaskStore     = (*pgTaskStore)(nil)
	_ SessionStore  = (*pgSessionStore)(nil)
	_ SettingsStore = (*pgSettingsStore)(nil)
)
