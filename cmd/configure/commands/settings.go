package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/quillnote/tasks-api/internal/config"
	"github.com/quillnote/tasks-api/internal/models"
	"github.com/quillnote/tasks-api/internal/settings"
	"github.com/quillnote/tasks-api/internal/storage"
	"github.com/spf13/cobra"
)

// NewSettingsCmd creates the settings command with list and set subcommands.
func NewSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage pomodoro settings",
		Long:  "List or update pomodoro durations. Stored in the database.",
	}
	cmd.AddCommand(newSettingsListCmd())
	cmd.AddCommand(newSettingsSetCmd())
	return cmd
}

func newSettingsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List current pomodoro settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openSettingsService()
			if err != nil {
				return err
			}
			defer closeFn()

			s, err := svc.Get(context.Background())
			if err != nil {
				return fmt.Errorf("get settings: %w", err)
			}

			fmt.Println("Pomodoro settings:")
			fmt.Printf("  Work duration:             %d min\n", s.WorkDuration)
			fmt.Printf("  Short break duration:      %d min\n", s.ShortBreakDuration)
			fmt.Printf("  Long break duration:       %d min\n", s.LongBreakDuration)
			fmt.Printf("  Sessions until long break: %d\n", s.SessionsUntilLongBreak)
			fmt.Printf("  Auto-start breaks:         %t\n", s.AutoStartBreaks)
			fmt.Printf("  Auto-start pomodoros:      %t\n", s.AutoStartPomodoros)
			return nil
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	var (
		work       int
		shortBreak int
		longBreak  int
		sessions   int
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set pomodoro settings",
		Long:  "Update pomodoro durations. Only the flags you pass are changed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			update := models.PomodoroSettingsUpdate{}
			if cmd.Flags().Changed("work") {
				update.WorkDuration = &work
			}
			if cmd.Flags().Changed("short-break") {
				update.ShortBreakDuration = &shortBreak
			}
			if cmd.Flags().Changed("long-break") {
				update.LongBreakDuration = &longBreak
			}
			if cmd.Flags().Changed("sessions") {
				update.SessionsUntilLongBreak = &sessions
			}
			if update == (models.PomodoroSettingsUpdate{}) {
				return fmt.Errorf("nothing to update; pass at least one of --work, --short-break, --long-break, --sessions")
			}

			svc, closeFn, err := openSettingsService()
			if err != nil {
				return err
			}
			defer closeFn()

			if _, err := svc.Set(context.Background(), update); err != nil {
				return fmt.Errorf("set settings: %w", err)
			}
			fmt.Println("Pomodoro settings updated.")
			return nil
		},
	}
	cmd.Flags().IntVar(&work, "work", 0, "Work duration in minutes")
	cmd.Flags().IntVar(&shortBreak, "short-break", 0, "Short break duration in minutes")
	cmd.Flags().IntVar(&longBreak, "long-break", 0, "Long break duration in minutes")
	cmd.Flags().IntVar(&sessions, "sessions", 0, "Pomodoros before a long break")
	return cmd
}

func openSettingsService() (*settings.Service, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	backend, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage backend: %w", err)
	}
	closeFn := func() {
		if err := backend.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close storage backend: %v\n", err)
		}
	}
	return settings.NewService(backend.Settings()), closeFn, nil
}
