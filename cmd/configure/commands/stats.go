package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/quillnote/tasks-api/internal/config"
	"github.com/quillnote/tasks-api/internal/stats"
	"github.com/quillnote/tasks-api/internal/storage"
	"github.com/spf13/cobra"
)

// NewStatsCmd creates the stats command
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			backend, err := storage.Open(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open storage backend: %w", err)
			}
			defer func() {
				if err := backend.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close storage backend: %v\n", err)
				}
			}()

			s, err := stats.NewAggregator(backend.Tasks()).GetTaskStats(context.Background())
			if err != nil {
				return fmt.Errorf("aggregate stats: %w", err)
			}

			fmt.Println("Task statistics:")
			fmt.Printf("  Total:       %d\n", s.Total)
			fmt.Printf("  Todo:        %d\n", s.Todo)
			fmt.Printf("  In progress: %d\n", s.InProgress)
			fmt.Printf("  Done:        %d\n", s.Done)
			fmt.Printf("  Cancelled:   %d\n", s.Cancelled)
			return nil
		},
	}
}
