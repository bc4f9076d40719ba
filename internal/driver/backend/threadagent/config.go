package threadagent

import (
	"os"
	"time"
)

// Config holds the environment-tunable knobs for the thread-SDK backend,
// populated the way the teacher's cmd/agentctl and cmd/hookctl read their
// own AGENTCTL_*/FLOWGENTIC_* variables: plain struct, os.Getenv per
// env-backed field (CLIPath), hardcoded fallback when unset. CLIArgs and
// CloseTimeout have no variable and keep their defaults.
type Config struct {
	// CLIPath is the ACP-speaking executable spawned for every run — the
	// agent that exposes the startThread/resumeThread surface over stdio.
	CLIPath string
	// CLIArgs are fixed arguments passed to CLIPath before any per-run flags.
	CLIArgs []string
	// CloseTimeout is not consulted by Run or Close: Close cancels the
	// subprocess's context and returns without waiting for it to exit.
	CloseTimeout time.Duration
}

// DefaultConfig returns Config populated from the environment, falling back
// to the documented defaults for any unset variable.
func DefaultConfig() Config {
	cfg := Config{
		CLIPath:      "thread-agent",
		CloseTimeout: 3 * time.Second,
	}
	if v := os.Getenv("AGENTBRIDGE_THREADAGENT_CLI_PATH"); v != "" {
		cfg.CLIPath = v
	}
	return cfg
}
