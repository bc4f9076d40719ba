package ssemanaged

import (
	"os"
	"strconv"
	"time"
)

// Mode selects how ssemanaged obtains a server to talk to.
type Mode string

const (
	// ModeManaged spawns the server binary itself and waits for readiness.
	ModeManaged Mode = "managed"
	// ModeExternal connects to a caller-supplied URL and never spawns.
	ModeExternal Mode = "external"
)

// Config holds the environment-tunable knobs for the SSE-with-managed-server
// backend, read the way the teacher's cmd/agentctl and cmd/hookctl read
// their own AGENTCTL_*/FLOWGENTIC_* variables: plain struct, os.Getenv per
// env-backed field (Mode, CLIPath, BaseURL, PreferredPort), hardcoded
// fallback when unset. The other fields have no variable and keep their
// defaults.
type Config struct {
	// Mode is ModeManaged (default) or ModeExternal.
	Mode Mode
	// CLIPath is the server binary spawned in managed mode ("serve --host
	// H --port P" is appended at Run time).
	CLIPath string
	// Host is the loopback host the managed server binds to.
	Host string
	// PreferredPort, when nonzero, is tried first for the managed server
	// before falling back to an OS-assigned port; useful for callers that
	// want a stable port across restarts (e.g. firewall rules already
	// opened for it).
	PreferredPort int
	// BaseURL is required in external mode and ignored in managed mode,
	// where it is derived from Host and a freshly allocated port.
	BaseURL string
	// HealthPath is polled as BaseURL+HealthPath to detect readiness. When
	// empty, readiness falls back to pattern-matching the server's stdout
	// and stderr for "ready" / "listening" / "http://".
	HealthPath string
	// ReadinessTimeout bounds how long managed-server startup waits before
	// treating the server as failed to start.
	ReadinessTimeout time.Duration
	// CloseTimeout bounds how long the managed server's shutdown, run when
	// the production finishes, waits for the server to exit after SIGTERM
	// before it is killed outright. Close itself does not wait.
	CloseTimeout time.Duration
}

// DefaultConfig returns Config populated from the environment, falling back
// to the documented defaults for any unset variable.
func DefaultConfig() Config {
	cfg := Config{
		Mode:             ModeManaged,
		CLIPath:          "agent-server",
		Host:             "127.0.0.1",
		HealthPath:       "/global/health",
		ReadinessTimeout: 30 * time.Second,
		CloseTimeout:     3 * time.Second,
	}
	if v := os.Getenv("AGENTBRIDGE_SSEMANAGED_MODE"); v == string(ModeExternal) {
		cfg.Mode = ModeExternal
	}
	if v := os.Getenv("AGENTBRIDGE_SSEMANAGED_CLI_PATH"); v != "" {
		cfg.CLIPath = v
	}
	if v := os.Getenv("AGENTBRIDGE_SSEMANAGED_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("AGENTBRIDGE_SSEMANAGED_PREFERRED_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.PreferredPort = port
		}
	}
	return cfg
}
