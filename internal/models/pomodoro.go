package models

// Default pomodoro durations, in minutes
const (
	DefaultWorkMinutes            = 25
	DefaultShortBreakMinutes      = 5
	DefaultLongBreakMinutes       = 15
	DefaultSessionsUntilLongBreak = 4
)

// PomodoroSettings holds the process-wide pomodoro configuration.
// Durations are whole minutes.
type PomodoroSettings struct {
	WorkDuration           int  `json:"work_duration"`
	ShortBreakDuration     int  `json:"short_break_duration"`
	LongBreakDuration      int  `json:"long_break_duration"`
	SessionsUntilLongBreak int  `json:"sessions_until_long_break"`
	AutoStartBreaks        bool `json:"auto_start_breaks"`
	AutoStartPomodoros     bool `json:"auto_start_pomodoros"`
}

// DefaultPomodoroSettings returns the settings used before the user has
// configured anything.
func DefaultPomodoroSettings() PomodoroSettings {
	return PomodoroSettings{
		WorkDuration:           DefaultWorkMinutes,
		ShortBreakDuration:     DefaultShortBreakMinutes,
		LongBreakDuration:      DefaultLongBreakMinutes,
		SessionsUntilLongBreak: DefaultSessionsUntilLongBreak,
	}
}

// PomodoroSettingsUpdate is a partial update to the pomodoro settings.
// Nil fields are left unchanged.
type PomodoroSettingsUpdate struct {
	WorkDuration           *int  `json:"work_duration,omitempty"`
	ShortBreakDuration     *int  `json:"short_break_duration,omitempty"`
	LongBreakDuration      *int  `json:"long_break_duration,omitempty"`
	SessionsUntilLongBreak *int  `json:"sessions_until_long_break,omitempty"`
	AutoStartBreaks        *bool `json:"auto_start_breaks,omitempty"`
	AutoStartPomodoros     *bool `json:"auto_start_pomodoros,omitempty"`
}

// TimerState is the ephemeral countdown state. Exactly one exists per
// process; it is owned by the timer engine and handed out by value.
type TimerState struct {
	IsRunning          bool        `json:"is_running"`
	IsPaused           bool        `json:"is_paused"`
	TimeRemaining      int         `json:"time_remaining"`
	TotalTime          int         `json:"total_time"`
	SessionType        SessionType `json:"session_type"`
	CompletedPomodoros int         `json:"completed_pomodoros"`
}
