package pomodoro

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quillnote/tasks-api/internal/models"
	"github.com/quillnote/tasks-api/internal/sessions"
	"github.com/quillnote/tasks-api/internal/tasks"
	"go.uber.org/zap"
)

// ErrSessionActive is returned by StartTask while another session is
// still open. The caller must stop the active session first.
var ErrSessionActive = errors.New("a session is already active")

// SettingsSource supplies the pomodoro configuration the engine reads
// when initializing or resetting a countdown.
type SettingsSource interface {
	Get(ctx context.Context) (models.PomodoroSettings, error)
}

// Engine is the pomodoro state machine. It owns the single TimerState
// and the "at most one open session" invariant: starting a task flips
// its status, opens a session and begins ticking; stopping closes the
// session with wall-clock elapsed time and resets the countdown.
//
// All state changes go through the engine; readers take snapshots via
// State or subscribe to change notifications.
type Engine struct {
	taskRepo *tasks.Repository
	recorder *sessions.Recorder
	settings SettingsSource
	clock    Clock
	logger   *zap.Logger

	mu    sync.Mutex
	state models.TimerState
	stop  chan struct{}

	subMu       sync.Mutex
	subscribers map[int]chan models.TimerState
	nextSubID   int
}

// NewEngine creates the timer engine. The countdown starts idle at the
// default work duration; live settings are read on each start.
func NewEngine(taskRepo *tasks.Repository, recorder *sessions.Recorder, settings SettingsSource, clock Clock, logger *zap.Logger) *Engine {
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	work := models.DefaultWorkMinutes * 60
	return &Engine{
		taskRepo: taskRepo,
		recorder: recorder,
		settings: settings,
		clock:    clock,
		logger:   logger,
		state: models.TimerState{
			TimeRemaining: work,
			TotalTime:     work,
			SessionType:   models.SessionTypePomodoro,
		},
		subscribers: make(map[int]chan models.TimerState),
	}
}

// State returns a snapshot of the current timer state.
func (e *Engine) State() models.TimerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Subscribe registers a listener for timer state changes. The returned
// cancel function must be called to release the subscription. Slow
// consumers miss intermediate states rather than stalling the engine.
func (e *Engine) Subscribe() (<-chan models.TimerState, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextSubID
	e.nextSubID++
	ch := make(chan models.TimerState, 8)
	e.subscribers[id] = ch
	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if sub, ok := e.subscribers[id]; ok {
			delete(e.subscribers, id)
			close(sub)
		}
	}
}

func (e *Engine) publish(state models.TimerState) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- state:
		default:
		}
	}
}

// StartTask moves the task to in_progress, opens a pomodoro session for
// it and begins the countdown at the configured work duration. The task
// status write is applied before the session opens, so an observer never
// sees an open session for a task still marked todo. Starting while a
// session is open returns ErrSessionActive.
func (e *Engine) StartTask(ctx context.Context, taskID uuid.UUID) (models.TimerState, error) {
	open, err := e.recorder.OpenSession(ctx)
	if err != nil {
		return e.State(), err
	}
	if open != nil {
		return e.State(), ErrSessionActive
	}

	status := models.TaskStatusInProgress
	if _, err := e.taskRepo.Update(ctx, taskID, models.TaskUpdate{Status: &status}); err != nil {
		return e.State(), err
	}

	// If this write fails the task is left in_progress with no open
	// session; the error surfaces to the caller and no countdown starts.
	session, err := e.recorder.Open(ctx, taskID, models.SessionTypePomodoro)
	if err != nil {
		return e.State(), err
	}

	work := e.workSeconds(ctx)

	e.mu.Lock()
	e.state.IsRunning = true
	e.state.IsPaused = false
	e.state.TimeRemaining = work
	e.state.TotalTime = work
	e.state.SessionType = models.SessionTypePomodoro
	if e.stop != nil {
		close(e.stop)
	}
	e.stop = make(chan struct{})
	go e.run(e.stop)
	state := e.state
	e.mu.Unlock()

	e.publish(state)
	e.logger.Info("task_started",
		zap.String("task_id", taskID.String()),
		zap.String("session_id", session.ID.String()),
		zap.Int("total_time_seconds", work),
	)
	return state, nil
}

// TogglePause flips the paused flag. The tick scheduler keeps firing
// while paused; it just stops decrementing. A no-op when idle.
func (e *Engine) TogglePause() models.TimerState {
	e.mu.Lock()
	if e.state.IsRunning {
		e.state.IsPaused = !e.state.IsPaused
	}
	state := e.state
	e.mu.Unlock()

	e.publish(state)
	return state
}

// StopTask closes the open session, crediting the task with the
// wall-clock minutes elapsed since the session started (pauses do not
// shrink the credit; sub-minute time floors to zero). The session is
// marked completed when the countdown had reached zero. With no open
// session this is a no-op returning a nil session.
//
// The session close and its minute credit complete before TimerState is
// reset, so a reader polling for an open session never sees a false
// negative while minutes are still being credited.
func (e *Engine) StopTask(ctx context.Context, achievement, pending, notes *string) (*models.TaskSession, models.TimerState, error) {
	open, err := e.recorder.OpenSession(ctx)
	if err != nil {
		return nil, e.State(), err
	}
	if open == nil {
		return nil, e.State(), nil
	}

	now := e.clock.Now()
	minutes := int(now.Sub(open.StartedAt).Minutes())

	e.mu.Lock()
	completed := e.state.TimeRemaining <= 0
	e.mu.Unlock()

	closed, err := e.recorder.CloseAndCredit(ctx, open.ID, models.SessionClose{
		EndedAt:         &now,
		DurationMinutes: &minutes,
		Completed:       &completed,
		Achievement:     achievement,
		Pending:         pending,
		Notes:           notes,
	})
	if err != nil {
		return nil, e.State(), err
	}

	work := e.workSeconds(ctx)

	e.mu.Lock()
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
	e.state.IsRunning = false
	e.state.IsPaused = false
	e.state.TimeRemaining = work
	e.state.TotalTime = work
	state := e.state
	e.mu.Unlock()

	e.publish(state)
	e.logger.Info("task_stopped",
		zap.String("session_id", closed.ID.String()),
		zap.String("task_id", closed.TaskID.String()),
		zap.Int("duration_minutes", minutes),
		zap.Bool("completed", completed),
	)
	return closed, state, nil
}

// CompleteTask marks the task done regardless of timer state. It does
// not stop an open session for that task; the session keeps accruing
// until an explicit stop.
func (e *Engine) CompleteTask(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	status := models.TaskStatusDone
	task, err := e.taskRepo.Update(ctx, taskID, models.TaskUpdate{Status: &status})
	if err != nil {
		return nil, err
	}
	e.logger.Info("task_completed", zap.String("task_id", taskID.String()))
	return task, nil
}

func (e *Engine) run(stop chan struct{}) {
	ticker := e.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if !e.tick() {
				return
			}
		}
	}
}

// tick performs one countdown decrement. Returns false when the loop
// should exit: countdown finished or the timer was stopped underneath
// it.
func (e *Engine) tick() bool {
	e.mu.Lock()
	if !e.state.IsRunning {
		e.mu.Unlock()
		return false
	}
	if e.state.IsPaused {
		e.mu.Unlock()
		return true
	}

	e.state.TimeRemaining--
	if e.state.TimeRemaining <= 0 {
		// Natural completion: the session stays open until the caller
		// stops it, typically after prompting for achievement/pending.
		e.state.TimeRemaining = 0
		e.state.IsRunning = false
		e.state.CompletedPomodoros++
		e.stop = nil
		state := e.state
		e.mu.Unlock()

		e.publish(state)
		e.logger.Info("pomodoro_completed",
			zap.Int("completed_pomodoros", state.CompletedPomodoros),
		)
		return false
	}

	state := e.state
	e.mu.Unlock()
	e.publish(state)
	return true
}

// workSeconds reads the configured work duration. A settings read
// failure falls back to defaults rather than stalling the timer.
func (e *Engine) workSeconds(ctx context.Context) int {
	cfg, err := e.settings.Get(ctx)
	if err != nil {
		e.logger.Warn("failed_to_read_settings_using_defaults", zap.Error(err))
		cfg = models.DefaultPomodoroSettings()
	}
	return cfg.WorkDuration * 60
}
