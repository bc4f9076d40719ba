package execjson

import (
	"os"
	"time"
)

// Config holds the environment-tunable knobs for the child-process NDJSON
// backend, populated the way the teacher's cmd/agentctl and cmd/hookctl
// read their own AGENTCTL_*/FLOWGENTIC_* variables: plain struct,
// os.Getenv per env-backed field, hardcoded fallback when unset.
// CloseTimeout has no variable and always keeps its default.
type Config struct {
	// CLIPath is the executable spawned for every run. Defaults to
	// "agent-cli" when AGENTBRIDGE_EXECJSON_CLI_PATH is unset.
	CLIPath string
	// SettingsEnvVar is the environment variable name under which the
	// temporary settings-file path is passed to the child process.
	SettingsEnvVar string
	// CloseTimeout bounds how long cleanup waits for the child process to
	// exit after SIGTERM before escalating to Kill.
	CloseTimeout time.Duration
}

// DefaultConfig returns Config populated from the environment, falling
// back to the documented defaults for any unset variable.
func DefaultConfig() Config {
	cfg := Config{
		CLIPath:        "agent-cli",
		SettingsEnvVar: "AGENT_SETTINGS_FILE",
		CloseTimeout:   3 * time.Second,
	}
	if v := os.Getenv("AGENTBRIDGE_EXECJSON_CLI_PATH"); v != "" {
		cfg.CLIPath = v
	}
	if v := os.Getenv("AGENTBRIDGE_EXECJSON_SETTINGS_ENV_VAR"); v != "" {
		cfg.SettingsEnvVar = v
	}
	return cfg
}
