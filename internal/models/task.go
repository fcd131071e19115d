package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle status of a task
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskPriority represents the priority of a task
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Task represents a trackable unit of work, optionally linked to a note
type Task struct {
	ID               uuid.UUID    `json:"id"`
	NoteID           *string      `json:"note_id,omitempty"`
	Title            string       `json:"title"`
	Description      *string      `json:"description,omitempty"`
	Status           TaskStatus   `json:"status"`
	Priority         TaskPriority `json:"priority"`
	DueDate          *time.Time   `json:"due_date,omitempty"`
	EstimatedMinutes *int         `json:"estimated_minutes,omitempty"`
	ActualMinutes    int          `json:"actual_minutes"`
	Tags             []string     `json:"tags"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}

// TaskUpdate is a partial update to a task. Nil fields are left unchanged.
// Setting Status to done stamps CompletedAt the first time only.
type TaskUpdate struct {
	NoteID           *string       `json:"note_id,omitempty"`
	Title            *string       `json:"title,omitempty"`
	Description      *string       `json:"description,omitempty"`
	Status           *TaskStatus   `json:"status,omitempty"`
	Priority         *TaskPriority `json:"priority,omitempty"`
	DueDate          *time.Time    `json:"due_date,omitempty"`
	EstimatedMinutes *int          `json:"estimated_minutes,omitempty"`
	Tags             []string      `json:"tags,omitempty"`
}

// TaskStats holds counts of tasks by status
type TaskStats struct {
	Total      int `json:"total"`
	Todo       int `json:"todo"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
	Cancelled  int `json:"cancelled"`
}
