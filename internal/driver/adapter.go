package driver

import "context"

// Capability is a permission-policy value for one autonomy axis.
type Capability string

const (
	CapAllow Capability = "allow"
	CapAsk   Capability = "ask"
	CapDeny  Capability = "deny"
)

// orAsk normalizes an absent capability to its documented default.
func (c Capability) orAsk() Capability {
	if c == "" {
		return CapAsk
	}
	return c
}

// PermissionPolicy is the {fileWrite, shellExecute, networkAccess} triple
// controlling what a backend may autonomously do. Any field left as the
// zero value defaults to CapAsk.
type PermissionPolicy struct {
	FileWrite     Capability
	ShellExecute  Capability
	NetworkAccess Capability
}

// Normalized returns a copy with every capability defaulted to CapAsk.
func (p PermissionPolicy) Normalized() PermissionPolicy {
	return PermissionPolicy{
		FileWrite:     p.FileWrite.orAsk(),
		ShellExecute:  p.ShellExecute.orAsk(),
		NetworkAccess: p.NetworkAccess.orAsk(),
	}
}

// AllAllow reports whether every capability is explicitly allow.
func (p PermissionPolicy) AllAllow() bool {
	n := p.Normalized()
	return n.FileWrite == CapAllow && n.ShellExecute == CapAllow && n.NetworkAccess == CapAllow
}

// RunOptions configures one adapter.Run invocation. All fields are optional.
type RunOptions struct {
	WorkingDir      string
	Model           string
	Permissions     PermissionPolicy
	MaxTurns        int
	MaxBudget       float64
	ResumeToken     string
	AllowedTools    []string
	DisallowedTools []string
}

// Production is the lazy, finite event stream an Adapter.Run call returns.
// Only the owning adapter goroutine ever sends on or closes Events(); once
// Events() is closed, Err() holds any exception raised during production
// (nil if the adapter exhausted cleanly). Close is idempotent and
// best-effort: it asks the adapter to stop producing promptly, but the
// caller must still drain or abandon Events() after calling it.
type Production interface {
	Events() <-chan Event
	Err() error
	Close() error
}

// Adapter is the producer contract a backend must satisfy. An Adapter may
// be invoked concurrently for multiple sessions only if it documents that
// it is safe to do so; backends that own a child process or a managed
// server per run are restricted to independent working directories/ports
// across concurrent invocations.
type Adapter interface {
	// BackendID returns the adapter's stable identifier.
	BackendID() string
	// Available performs a cheap, side-effect-free reachability check. It
	// must never panic.
	Available(ctx context.Context) bool
	// Run starts a new session. The returned Production SHOULD begin with
	// an Init event and SHOULD end with a Done event; every event it
	// produces carries a stable, non-empty session id. Run itself must
	// not be invoked if ctx is already Done — callers (the driver) are
	// responsible for that pre-check.
	Run(ctx context.Context, prompt string, opts RunOptions) (Production, error)
}
