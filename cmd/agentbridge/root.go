package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd assembles the agentbridge CLI, a demo driver over the backend
// registry exposing spec §6's external interface (register/lookup/list,
// drive) as a set of subcommands.
func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentbridge",
		Short: "Drive coding-agent backends through a single canonical event stream",
	}
	cmd.AddCommand(listCmd())
	cmd.AddCommand(driveCmd())
	cmd.AddCommand(driveAllCmd())
	return cmd
}

// newLogger returns the process-wide logger, text-handler-on-stderr by
// default, matching the teacher's own slog.New(slog.NewTextHandler(...))
// convention.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("AGENTBRIDGE_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
