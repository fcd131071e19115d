package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/quillnote/tasks-api/internal/models"
	"github.com/quillnote/tasks-api/internal/pomodoro"
	"github.com/quillnote/tasks-api/internal/sessions"
	"github.com/quillnote/tasks-api/internal/settings"
	"github.com/quillnote/tasks-api/internal/storage"
	"github.com/quillnote/tasks-api/internal/tasks"
)

type timerFixture struct {
	router   *mux.Router
	repo     *tasks.Repository
	recorder *sessions.Recorder
	engine   *pomodoro.Engine
}

func newTimerFixture(t *testing.T) *timerFixture {
	t.Helper()

	backend := storage.NewMemory()
	repo := tasks.NewRepository(backend.Tasks(), nil)
	recorder := sessions.NewRecorder(backend.Sessions(), repo, nil)
	settingsSvc := settings.NewService(backend.Settings())
	engine := pomodoro.NewEngine(repo, recorder, settingsSvc, nil, nil)

	timerHandler := NewTimerHandler(engine, nil)
	sessionHandler := NewSessionHandler(recorder)

	r := mux.NewRouter()
	timerHandler.RegisterRoutes(r.PathPrefix("/api/v1/timer").Subrouter())
	timerHandler.RegisterStreamRoutes(r.PathPrefix("/api/v1/timer").Subrouter())
	tasksRouter := r.PathPrefix("/api/v1/tasks").Subrouter()
	timerHandler.RegisterTaskRoutes(tasksRouter)
	sessionHandler.RegisterTaskRoutes(tasksRouter)
	sessionHandler.RegisterRoutes(r.PathPrefix("/api/v1/sessions").Subrouter())

	return &timerFixture{router: r, repo: repo, recorder: recorder, engine: engine}
}

func (f *timerFixture) createTask(t *testing.T) *models.Task {
	t.Helper()
	task, err := f.repo.Create(context.Background(), tasks.CreateTask{Title: "focus"})
	if err != nil {
		t.Fatalf("Create task failed: %v", err)
	}
	return task
}

func (f *timerFixture) stopEngine(t *testing.T) {
	t.Helper()
	if _, _, err := f.engine.StopTask(context.Background(), nil, nil, nil); err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}
}

func TestGetTimerState(t *testing.T) {
	t.Parallel()

	f := newTimerFixture(t)

	rec, env := doJSON(t, f.router, http.MethodGet, "/api/v1/timer", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var state models.TimerState
	if err := json.Unmarshal(env.Data, &state); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if state.IsRunning {
		t.Error("Expected idle timer")
	}
	if state.TimeRemaining != 1500 {
		t.Errorf("Expected time_remaining 1500, got %d", state.TimeRemaining)
	}
}

func TestStartTimerEndpoint(t *testing.T) {
	t.Parallel()

	f := newTimerFixture(t)
	task := f.createTask(t)

	rec, env := doJSON(t, f.router, http.MethodPost, "/api/v1/timer/start", map[string]any{
		"task_id": task.ID.String(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var state models.TimerState
	if err := json.Unmarshal(env.Data, &state); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if !state.IsRunning {
		t.Error("Expected timer to be running")
	}

	// Open session surfaces through the sessions API
	rec, env = doJSON(t, f.router, http.MethodGet, "/api/v1/sessions/open", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if string(env.Data) == "null" {
		t.Error("Expected an open session")
	}

	f.stopEngine(t)
}

func TestStartTimerConflict(t *testing.T) {
	t.Parallel()

	f := newTimerFixture(t)
	first := f.createTask(t)
	second := f.createTask(t)

	rec, _ := doJSON(t, f.router, http.MethodPost, "/api/v1/timer/start", map[string]any{
		"task_id": first.ID.String(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	rec, env := doJSON(t, f.router, http.MethodPost, "/api/v1/timer/start", map[string]any{
		"task_id": second.ID.String(),
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rec.Code)
	}
	if env.Success {
		t.Error("Expected error envelope")
	}

	f.stopEngine(t)
}

func TestStartTimerValidation(t *testing.T) {
	t.Parallel()

	f := newTimerFixture(t)

	rec, _ := doJSON(t, f.router, http.MethodPost, "/api/v1/timer/start", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing task_id, got %d", rec.Code)
	}

	rec, _ = doJSON(t, f.router, http.MethodPost, "/api/v1/timer/start", map[string]any{
		"task_id": "not-a-uuid",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed task_id, got %d", rec.Code)
	}

	rec, _ = doJSON(t, f.router, http.MethodPost, "/api/v1/timer/start", map[string]any{
		"task_id": "81b5c0de-59a8-49a4-b2c3-34d9f07ec1aa",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown task, got %d", rec.Code)
	}
}

func TestStopTimerEndpoint(t *testing.T) {
	t.Parallel()

	f := newTimerFixture(t)
	task := f.createTask(t)

	rec, _ := doJSON(t, f.router, http.MethodPost, "/api/v1/timer/start", map[string]any{
		"task_id": task.ID.String(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	rec, env := doJSON(t, f.router, http.MethodPost, "/api/v1/timer/stop", map[string]any{
		"achievement": "outlined the draft",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Session *models.TaskSession `json:"session"`
		State   models.TimerState   `json:"state"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("Failed to decode stop response: %v", err)
	}
	if resp.Session == nil {
		t.Fatal("Expected a closed session in the response")
	}
	if resp.Session.EndedAt == nil {
		t.Error("Expected the session to carry an end time")
	}
	if resp.Session.Achievement == nil || *resp.Session.Achievement != "outlined the draft" {
		t.Errorf("Expected achievement to round-trip, got %v", resp.Session.Achievement)
	}
	if resp.State.IsRunning {
		t.Error("Expected reset state to not be running")
	}
}

func TestStopTimerWithoutSession(t *testing.T) {
	t.Parallel()

	f := newTimerFixture(t)

	rec, env := doJSON(t, f.router, http.MethodPost, "/api/v1/timer/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var resp struct {
		Session *models.TaskSession `json:"session"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("Failed to decode stop response: %v", err)
	}
	if resp.Session != nil {
		t.Error("Expected a null session for a no-op stop")
	}
}

func TestCompleteTaskEndpoint(t *testing.T) {
	t.Parallel()

	f := newTimerFixture(t)
	task := f.createTask(t)

	rec, env := doJSON(t, f.router, http.MethodPost, "/api/v1/tasks/"+task.ID.String()+"/complete", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var done struct {
		Status      string  `json:"status"`
		CompletedAt *string `json:"completed_at"`
	}
	if err := json.Unmarshal(env.Data, &done); err != nil {
		t.Fatalf("Failed to decode task: %v", err)
	}
	if done.Status != "done" {
		t.Errorf("Expected status 'done', got '%s'", done.Status)
	}
	if done.CompletedAt == nil {
		t.Error("Expected completed_at to be stamped")
	}
}

func TestSessionEndpoints(t *testing.T) {
	t.Parallel()

	f := newTimerFixture(t)
	task := f.createTask(t)
	ctx := context.Background()

	session, err := f.recorder.Open(ctx, task.ID, models.SessionTypePomodoro)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	minutes := 25
	completed := true
	end := session.StartedAt.Add(25 * time.Minute)
	if _, err := f.recorder.CloseAndCredit(ctx, session.ID, models.SessionClose{
		EndedAt:         &end,
		DurationMinutes: &minutes,
		Completed:       &completed,
	}); err != nil {
		t.Fatalf("CloseAndCredit failed: %v", err)
	}

	rec, _ := doJSON(t, f.router, http.MethodGet, "/api/v1/sessions/"+session.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	rec, env := doJSON(t, f.router, http.MethodGet, "/api/v1/tasks/"+task.ID.String()+"/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var list []json.RawMessage
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected 1 session, got %d", len(list))
	}

	rec, env = doJSON(t, f.router, http.MethodGet, "/api/v1/tasks/"+task.ID.String()+"/time", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var total TotalTimeResponse
	if err := json.Unmarshal(env.Data, &total); err != nil {
		t.Fatalf("Failed to decode total: %v", err)
	}
	if total.TotalMinutes != 25 {
		t.Errorf("Expected total 25 minutes, got %d", total.TotalMinutes)
	}
}
