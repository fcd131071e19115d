package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/quillnote/tasks-api/internal/config"
	"github.com/quillnote/tasks-api/internal/storage"
	"github.com/spf13/cobra"
)

// NewTestCmd creates the test command
func NewTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test the storage configuration",
		Long:  "Open the configured storage backend and verify it responds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			fmt.Printf("Testing storage backend: %s\n", cfg.DatabaseURL)

			backend, err := storage.Open(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to open storage backend: %w", err)
			}
			defer func() {
				if err := backend.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close storage backend: %v\n", err)
				}
			}()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := backend.Ping(ctx); err != nil {
				return fmt.Errorf("backend ping failed: %w", err)
			}
			fmt.Println("✓ Backend is reachable")

			if _, err := backend.Tasks().List(ctx); err != nil {
				return fmt.Errorf("task listing failed: %w", err)
			}
			fmt.Println("✓ Task schema is queryable")

			fmt.Println("\n✓ Storage configuration test passed")
			return nil
		},
	}
}
