package pomodoro

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quillnote/tasks-api/internal/models"
	"github.com/quillnote/tasks-api/internal/sessions"
	"github.com/quillnote/tasks-api/internal/settings"
	"github.com/quillnote/tasks-api/internal/storage"
	"github.com/quillnote/tasks-api/internal/tasks"
)

// fakeClock is driven manually by tests. NewTicker hands out a ticker
// whose channel never fires; tests advance the countdown by calling
// tick() directly, which is what the run loop does per second.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	return &fakeTicker{ch: make(chan time.Time)}
}

type fakeTicker struct {
	ch chan time.Time
}

func (ft *fakeTicker) C() <-chan time.Time { return ft.ch }
func (ft *fakeTicker) Stop()               {}

type fixture struct {
	engine   *Engine
	taskRepo *tasks.Repository
	recorder *sessions.Recorder
	clock    *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := storage.NewMemory()
	taskRepo := tasks.NewRepository(backend.Tasks(), nil)
	recorder := sessions.NewRecorder(backend.Sessions(), taskRepo, nil)
	settingsSvc := settings.NewService(backend.Settings())
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return &fixture{
		engine:   NewEngine(taskRepo, recorder, settingsSvc, clock, nil),
		taskRepo: taskRepo,
		recorder: recorder,
		clock:    clock,
	}
}

func (f *fixture) createTask(t *testing.T) *models.Task {
	t.Helper()
	task, err := f.taskRepo.Create(context.Background(), tasks.CreateTask{Title: "deep work"})
	if err != nil {
		t.Fatalf("Create task failed: %v", err)
	}
	return task
}

// advanceTicks simulates n elapsed seconds: each second moves the clock
// and performs one countdown decrement.
func (f *fixture) advanceTicks(n int) {
	for i := 0; i < n; i++ {
		f.clock.Advance(time.Second)
		if !f.engine.tick() {
			return
		}
	}
}

func TestIdleState(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	state := f.engine.State()

	if state.IsRunning || state.IsPaused {
		t.Error("Expected idle timer to be neither running nor paused")
	}
	if state.TimeRemaining != 25*60 {
		t.Errorf("Expected time_remaining %d, got %d", 25*60, state.TimeRemaining)
	}
	if state.SessionType != models.SessionTypePomodoro {
		t.Errorf("Expected session_type 'pomodoro', got '%s'", state.SessionType)
	}
}

func TestStartTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t)

	state, err := f.engine.StartTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	if !state.IsRunning {
		t.Error("Expected timer to be running")
	}
	if state.TimeRemaining != 1500 || state.TotalTime != 1500 {
		t.Errorf("Expected 1500/1500 seconds, got %d/%d", state.TimeRemaining, state.TotalTime)
	}

	got, err := f.taskRepo.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get task failed: %v", err)
	}
	if got.Status != models.TaskStatusInProgress {
		t.Errorf("Expected task status 'in_progress', got '%s'", got.Status)
	}

	open, err := f.recorder.OpenSession(ctx)
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	if open == nil {
		t.Fatal("Expected an open session after start")
	}
	if open.TaskID != task.ID {
		t.Error("Expected the open session to belong to the started task")
	}

	// Stop the background loop before the fixture goes away.
	if _, _, err := f.engine.StopTask(ctx, nil, nil, nil); err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}
}

func TestStartTaskUsesConfiguredDuration(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t)

	// Configure a 50 minute work duration through the engine's source.
	work := 50
	settingsSvc, ok := f.engine.settings.(*settings.Service)
	if !ok {
		t.Fatal("Expected the fixture settings source to be a settings.Service")
	}
	if _, err := settingsSvc.Set(ctx, models.PomodoroSettingsUpdate{WorkDuration: &work}); err != nil {
		t.Fatalf("Set settings failed: %v", err)
	}

	state, err := f.engine.StartTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}
	if state.TotalTime != 50*60 {
		t.Errorf("Expected total_time %d, got %d", 50*60, state.TotalTime)
	}

	if _, _, err := f.engine.StopTask(ctx, nil, nil, nil); err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}
}

func TestStartTaskRejectsConcurrentStart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	first := f.createTask(t)
	second := f.createTask(t)

	if _, err := f.engine.StartTask(ctx, first.ID); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	_, err := f.engine.StartTask(ctx, second.ID)
	if !errors.Is(err, ErrSessionActive) {
		t.Errorf("Expected ErrSessionActive, got %v", err)
	}

	got, err := f.taskRepo.Get(ctx, second.ID)
	if err != nil {
		t.Fatalf("Get task failed: %v", err)
	}
	if got.Status != models.TaskStatusTodo {
		t.Errorf("Expected rejected task to stay 'todo', got '%s'", got.Status)
	}

	if _, _, err := f.engine.StopTask(ctx, nil, nil, nil); err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}
}

func TestTickCountsDown(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t)

	if _, err := f.engine.StartTask(ctx, task.ID); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	f.advanceTicks(90)

	state := f.engine.State()
	if state.TimeRemaining != 1500-90 {
		t.Errorf("Expected time_remaining %d, got %d", 1500-90, state.TimeRemaining)
	}
	if !state.IsRunning {
		t.Error("Expected timer to still be running")
	}

	if _, _, err := f.engine.StopTask(ctx, nil, nil, nil); err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}
}

func TestPauseSuppressesDecrement(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t)

	if _, err := f.engine.StartTask(ctx, task.ID); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	f.advanceTicks(60)

	state := f.engine.TogglePause()
	if !state.IsPaused {
		t.Error("Expected timer to be paused")
	}

	f.advanceTicks(120)
	state = f.engine.State()
	if state.TimeRemaining != 1500-60 {
		t.Errorf("Expected paused countdown to hold at %d, got %d", 1500-60, state.TimeRemaining)
	}

	state = f.engine.TogglePause()
	if state.IsPaused {
		t.Error("Expected timer to be resumed")
	}

	f.advanceTicks(30)
	state = f.engine.State()
	if state.TimeRemaining != 1500-90 {
		t.Errorf("Expected time_remaining %d after resume, got %d", 1500-90, state.TimeRemaining)
	}

	if _, _, err := f.engine.StopTask(ctx, nil, nil, nil); err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}
}

func TestTogglePauseIdleIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	state := f.engine.TogglePause()
	if state.IsPaused || state.IsRunning {
		t.Error("Expected toggling pause while idle to change nothing")
	}
}

func TestNaturalCompletion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t)

	if _, err := f.engine.StartTask(ctx, task.ID); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	f.advanceTicks(1500)

	state := f.engine.State()
	if state.IsRunning {
		t.Error("Expected timer to stop at zero")
	}
	if state.TimeRemaining != 0 {
		t.Errorf("Expected time_remaining 0, got %d", state.TimeRemaining)
	}
	if state.CompletedPomodoros != 1 {
		t.Errorf("Expected 1 completed pomodoro, got %d", state.CompletedPomodoros)
	}

	// The session stays open until an explicit stop.
	open, err := f.recorder.OpenSession(ctx)
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	if open == nil {
		t.Fatal("Expected the session to remain open after natural completion")
	}

	achievement := "finished the chapter"
	closed, stopped, err := f.engine.StopTask(ctx, &achievement, nil, nil)
	if err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}
	if closed == nil {
		t.Fatal("Expected StopTask to return the closed session")
	}
	if !closed.Completed {
		t.Error("Expected session closed after a full countdown to be completed")
	}
	if closed.DurationMinutes != 25 {
		t.Errorf("Expected 25 credited minutes, got %d", closed.DurationMinutes)
	}
	if closed.Achievement == nil || *closed.Achievement != achievement {
		t.Errorf("Expected achievement '%s', got %v", achievement, closed.Achievement)
	}
	if stopped.IsRunning {
		t.Error("Expected reset state to not be running")
	}
	if stopped.TimeRemaining != 1500 {
		t.Errorf("Expected reset countdown 1500, got %d", stopped.TimeRemaining)
	}

	got, err := f.taskRepo.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get task failed: %v", err)
	}
	if got.ActualMinutes != 25 {
		t.Errorf("Expected task actual_minutes 25, got %d", got.ActualMinutes)
	}
}

func TestEarlyStop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t)

	if _, err := f.engine.StartTask(ctx, task.ID); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	// Ten minutes of wall clock, then an early stop.
	f.advanceTicks(600)

	closed, _, err := f.engine.StopTask(ctx, nil, nil, nil)
	if err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}
	if closed == nil {
		t.Fatal("Expected a closed session")
	}
	if closed.Completed {
		t.Error("Expected an early stop to not be marked completed")
	}
	if closed.DurationMinutes != 10 {
		t.Errorf("Expected 10 credited minutes, got %d", closed.DurationMinutes)
	}
}

func TestEarlyStopSubMinute(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t)

	if _, err := f.engine.StartTask(ctx, task.ID); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	f.advanceTicks(30)

	closed, _, err := f.engine.StopTask(ctx, nil, nil, nil)
	if err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}
	if closed.DurationMinutes != 0 {
		t.Errorf("Expected a sub-minute session to credit 0 minutes, got %d", closed.DurationMinutes)
	}

	got, err := f.taskRepo.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get task failed: %v", err)
	}
	if got.ActualMinutes != 0 {
		t.Errorf("Expected actual_minutes 0, got %d", got.ActualMinutes)
	}
}

func TestStopWithoutSessionIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	closed, state, err := f.engine.StopTask(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}
	if closed != nil {
		t.Errorf("Expected nil session, got %v", closed)
	}
	if state.IsRunning {
		t.Error("Expected idle state")
	}
}

func TestPauseDoesNotShrinkCredit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t)

	if _, err := f.engine.StartTask(ctx, task.ID); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	// Five minutes working, ten minutes paused, five more working.
	// Wall clock says twenty; the countdown only moved ten.
	f.advanceTicks(300)
	f.engine.TogglePause()
	f.advanceTicks(600)
	f.engine.TogglePause()
	f.advanceTicks(300)

	closed, _, err := f.engine.StopTask(ctx, nil, nil, nil)
	if err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}
	if closed.DurationMinutes != 20 {
		t.Errorf("Expected 20 wall-clock minutes credited, got %d", closed.DurationMinutes)
	}

	state := f.engine.State()
	if state.TimeRemaining != 1500 {
		t.Errorf("Expected countdown reset to 1500, got %d", state.TimeRemaining)
	}
}

func TestCompleteTaskLeavesSessionOpen(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t)

	if _, err := f.engine.StartTask(ctx, task.ID); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	done, err := f.engine.CompleteTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	if done.Status != models.TaskStatusDone {
		t.Errorf("Expected status 'done', got '%s'", done.Status)
	}
	if done.CompletedAt == nil {
		t.Error("Expected completed_at to be stamped")
	}

	open, err := f.recorder.OpenSession(ctx)
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	if open == nil {
		t.Error("Expected the session to stay open after CompleteTask")
	}

	if _, _, err := f.engine.StopTask(ctx, nil, nil, nil); err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}
}

func TestSubscribeReceivesStateChanges(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t)

	ch, cancel := f.engine.Subscribe()
	defer cancel()

	if _, err := f.engine.StartTask(ctx, task.ID); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	select {
	case state := <-ch:
		if !state.IsRunning {
			t.Error("Expected the published state to be running")
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a state notification after start")
	}

	if _, _, err := f.engine.StopTask(ctx, nil, nil, nil); err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	ch, cancel := f.engine.Subscribe()
	cancel()
	cancel() // second cancel is harmless

	if _, ok := <-ch; ok {
		t.Error("Expected the subscription channel to be closed")
	}
}
