package main

import (
	"fmt"
	"os"

	"github.com/quillnote/tasks-api/cmd/configure/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "tasks-configure",
		Short: "Configuration tool for the Tasks API",
		Long:  "CLI tool for inspecting and configuring pomodoro settings and task data",
	}

	rootCmd.AddCommand(commands.NewSettingsCmd())
	rootCmd.AddCommand(commands.NewStatsCmd())
	rootCmd.AddCommand(commands.NewTestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
