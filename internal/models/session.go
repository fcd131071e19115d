package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionType represents the kind of timed interval a session records
type SessionType string

const (
	SessionTypePomodoro   SessionType = "pomodoro"
	SessionTypeShortBreak SessionType = "short_break"
	SessionTypeLongBreak  SessionType = "long_break"
)

// TaskSession represents one measured interval of work or break time
// attached to a task. A session with no EndedAt is "open"; at most one
// open session exists system-wide.
type TaskSession struct {
	ID              uuid.UUID   `json:"id"`
	TaskID          uuid.UUID   `json:"task_id"`
	StartedAt       time.Time   `json:"started_at"`
	EndedAt         *time.Time  `json:"ended_at,omitempty"`
	DurationMinutes int         `json:"duration_minutes"`
	Type            SessionType `json:"type"`
	Completed       bool        `json:"completed"`
	Achievement     *string     `json:"achievement,omitempty"`
	Pending         *string     `json:"pending,omitempty"`
	Notes           *string     `json:"notes,omitempty"`
}

// SessionClose is a partial update applied when a session is closed.
// Nil fields are left unchanged.
type SessionClose struct {
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Completed       *bool      `json:"completed,omitempty"`
	Achievement     *string    `json:"achievement,omitempty"`
	Pending         *string    `json:"pending,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
}
