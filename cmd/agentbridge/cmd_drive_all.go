package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nodrama/agentbridge/internal/driver"
)

// driveAllTask is the on-disk shape of one drive-all task, decoded from the
// JSON array passed via --tasks-file (or stdin when omitted).
type driveAllTask struct {
	ID            string  `json:"id"`
	BackendID     string  `json:"backend"`
	Prompt        string  `json:"prompt"`
	Model         string  `json:"model,omitempty"`
	WorkingDir    string  `json:"workingDirectory,omitempty"`
	MaxTurns      int     `json:"maxTurns,omitempty"`
	MaxBudget     float64 `json:"maxBudget,omitempty"`
	FileWrite     string  `json:"fileWrite,omitempty"`
	ShellExecute  string  `json:"shellExecute,omitempty"`
	NetworkAccess string  `json:"networkAccess,omitempty"`
}

func driveAllCmd() *cobra.Command {
	var tasksFile string
	cmd := &cobra.Command{
		Use:   "drive-all",
		Short: "Run a JSON array of tasks concurrently and print the merged canonical event stream",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(c.Context(), os.Interrupt)
			defer cancel()
			return runDriveAll(ctx, tasksFile)
		},
	}
	cmd.Flags().StringVar(&tasksFile, "tasks-file", "", "Path to a JSON array of tasks (default: read from stdin)")
	return cmd
}

func runDriveAll(ctx context.Context, tasksFile string) error {
	raw, err := readTasksInput(tasksFile)
	if err != nil {
		return err
	}

	var decoded []driveAllTask
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode tasks: %w", err)
	}

	reg := buildRegistry(newLogger())
	tasks := make([]driver.Task, 0, len(decoded))
	for _, t := range decoded {
		tasks = append(tasks, driver.Task{
			ID:        t.ID,
			BackendID: t.BackendID,
			Prompt:    t.Prompt,
			Opts: driver.RunOptions{
				Model:      t.Model,
				WorkingDir: t.WorkingDir,
				MaxTurns:   t.MaxTurns,
				MaxBudget:  t.MaxBudget,
				Permissions: driver.PermissionPolicy{
					FileWrite:     driver.Capability(t.FileWrite),
					ShellExecute:  driver.Capability(t.ShellExecute),
					NetworkAccess: driver.Capability(t.NetworkAccess),
				},
			},
		})
	}

	return printEvents(driver.DriveAll(ctx, reg, tasks))
}

func readTasksInput(tasksFile string) ([]byte, error) {
	if tasksFile == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(tasksFile)
}
