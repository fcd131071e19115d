package settings

import (
	"context"
	"fmt"

	"github.com/quillnote/tasks-api/internal/models"
	"github.com/quillnote/tasks-api/internal/storage"
)

// Service holds the pomodoro configuration: defaults until the user
// saves something, partial merges on update. Durations are validated to
// whole positive minutes.
type Service struct {
	store storage.SettingsStore
}

// NewService creates a settings service over the given store.
func NewService(store storage.SettingsStore) *Service {
	return &Service{store: store}
}

// Get returns the stored settings, or the defaults if none were saved.
func (s *Service) Get(ctx context.Context) (models.PomodoroSettings, error) {
	stored, err := s.store.Get(ctx)
	if err != nil {
		return models.PomodoroSettings{}, err
	}
	if stored == nil {
		return models.DefaultPomodoroSettings(), nil
	}
	return *stored, nil
}

// Set merges the given partial into the current settings and persists
// the result.
func (s *Service) Set(ctx context.Context, update models.PomodoroSettingsUpdate) (models.PomodoroSettings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return models.PomodoroSettings{}, err
	}

	if update.WorkDuration != nil {
		current.WorkDuration = *update.WorkDuration
	}
	if update.ShortBreakDuration != nil {
		current.ShortBreakDuration = *update.ShortBreakDuration
	}
	if update.LongBreakDuration != nil {
		current.LongBreakDuration = *update.LongBreakDuration
	}
	if update.SessionsUntilLongBreak != nil {
		current.SessionsUntilLongBreak = *update.SessionsUntilLongBreak
	}
	if update.AutoStartBreaks != nil {
		current.AutoStartBreaks = *update.AutoStartBreaks
	}
	if update.AutoStartPomodoros != nil {
		current.AutoStartPomodoros = *update.AutoStartPomodoros
	}

	if err := validate(current); err != nil {
		return models.PomodoroSettings{}, err
	}
	if err := s.store.Set(ctx, &current); err != nil {
		return models.PomodoroSettings{}, err
	}
	return current, nil
}

func validate(settings models.PomodoroSettings) error {
	if settings.WorkDuration < 1 {
		return fmt.Errorf("work_duration must be at least 1 minute, got %d", settings.WorkDuration)
	}
	if settings.ShortBreakDuration < 1 {
		return fmt.Errorf("short_break_duration must be at least 1 minute, got %d", settings.ShortBreakDuration)
	}
	if settings.LongBreakDuration < 1 {
		return fmt.Errorf("long_break_duration must be at least 1 minute, got %d", settings.LongBreakDuration)
	}
	if settings.SessionsUntilLongBreak < 1 {
		return fmt.Errorf("sessions_until_long_break must be at least 1, got %d", settings.SessionsUntilLongBreak)
	}
	return nil
}
