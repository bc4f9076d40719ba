package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nodrama/agentbridge/internal/driver"
)

func driveCmd() *cobra.Command {
	var opts runOptionsFlags
	cmd := &cobra.Command{
		Use:   "drive <backend> <prompt>",
		Short: "Run one prompt against a single backend and print its canonical event stream",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(c.Context(), os.Interrupt)
			defer cancel()
			return runDrive(ctx, args[0], args[1], opts)
		},
	}
	opts.register(cmd)
	return cmd
}

// runOptionsFlags are the cobra flags shared by drive and drive-all,
// translated into a driver.RunOptions at invocation time.
type runOptionsFlags struct {
	model         string
	workingDir    string
	maxTurns      int
	maxBudget     float64
	fileWrite     string
	shellExecute  string
	networkAccess string
}

func (f *runOptionsFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.model, "model", "", "Model identifier to request from the backend")
	cmd.Flags().StringVar(&f.workingDir, "working-dir", "", "Working directory for the session")
	cmd.Flags().IntVar(&f.maxTurns, "max-turns", 0, "Maximum agent turns (0 = backend default)")
	cmd.Flags().Float64Var(&f.maxBudget, "max-budget", 0, "Maximum spend in USD (0 = no budget)")
	cmd.Flags().StringVar(&f.fileWrite, "file-write", "ask", "File write capability: allow, ask, or deny")
	cmd.Flags().StringVar(&f.shellExecute, "shell-execute", "ask", "Shell execute capability: allow, ask, or deny")
	cmd.Flags().StringVar(&f.networkAccess, "network-access", "ask", "Network access capability: allow, ask, or deny")
}

func (f *runOptionsFlags) toRunOptions() driver.RunOptions {
	return driver.RunOptions{
		WorkingDir: f.workingDir,
		Model:      f.model,
		MaxTurns:   f.maxTurns,
		MaxBudget:  f.maxBudget,
		Permissions: driver.PermissionPolicy{
			FileWrite:     driver.Capability(f.fileWrite),
			ShellExecute:  driver.Capability(f.shellExecute),
			NetworkAccess: driver.Capability(f.networkAccess),
		},
	}
}

func runDrive(ctx context.Context, backendID, prompt string, flags runOptionsFlags) error {
	reg := buildRegistry(newLogger())

	events, err := driver.Drive(ctx, backendID, prompt, flags.toRunOptions(), reg)
	if err != nil {
		return fmt.Errorf("drive %s: %w", backendID, err)
	}

	return printEvents(events)
}

// printEvents renders every event as one JSON object per line on stdout,
// the same NDJSON-on-stdout convention the teacher's exec-based backends
// expect from their own subprocesses.
func printEvents(events <-chan driver.Event) error {
	enc := json.NewEncoder(os.Stdout)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}
	return nil
}
