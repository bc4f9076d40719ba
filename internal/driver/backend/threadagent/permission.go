package threadagent

import (
	acp "github.com/coder/acp-go-sdk"

	"github.com/nodrama/agentbridge/internal/driver"
)

// classifyToolKind maps an ACP tool kind to the permission-policy axis that
// governs it, mirroring claudesdk's tool-name classification but keyed by
// the protocol's own tool taxonomy (ToolKindEdit/Execute/Fetch/...) instead
// of a CLI's tool names, since a thread-SDK agent never tells us its
// underlying tool name — only its ACP-level kind.
func classifyToolKind(kind acp.ToolKind) (axis string, ok bool) {
	switch kind {
	case acp.ToolKindEdit, acp.ToolKindDelete:
		return "fileWrite", true
	case acp.ToolKindExecute:
		return "shellExecute", true
	case acp.ToolKindFetch:
		return "networkAccess", true
	default:
		return "", false
	}
}

func capabilityFor(n driver.PermissionPolicy, axis string) driver.Capability {
	switch axis {
	case "fileWrite":
		return n.FileWrite
	case "shellExecute":
		return n.ShellExecute
	case "networkAccess":
		return n.NetworkAccess
	default:
		return driver.CapAsk
	}
}

// sandboxMode implements the fileWrite/shell/net -> sandboxMode table of
// spec §4.7: any axis denied collapses the whole session to read-only,
// full allow on both file writes and shell grants danger-full-access
// regardless of the network axis, and anything else settles on
// workspace-write.
func sandboxMode(p driver.PermissionPolicy) string {
	n := p.Normalized()
	if n.FileWrite == driver.CapDeny || n.ShellExecute == driver.CapDeny || n.NetworkAccess == driver.CapDeny {
		return "read-only"
	}
	if n.FileWrite == driver.CapAllow && n.ShellExecute == driver.CapAllow {
		return "danger-full-access"
	}
	return "workspace-write"
}

// approvalPolicy implements spec §4.7's independent approval rule: full
// allow across all three axes never prompts, any axis left at ask falls
// back to untrusted, and everything else (an axis denied outright, with no
// ask remaining) only asks on-request.
func approvalPolicy(p driver.PermissionPolicy) string {
	n := p.Normalized()
	if n.FileWrite == driver.CapAllow && n.ShellExecute == driver.CapAllow && n.NetworkAccess == driver.CapAllow {
		return "never"
	}
	if n.FileWrite == driver.CapAsk || n.ShellExecute == driver.CapAsk || n.NetworkAccess == driver.CapAsk {
		return "untrusted"
	}
	return "on-request"
}

// networkEnabled implements "network enabled iff networkAccess = allow" —
// CapAsk collapses to false, a documented lossy mapping since a thread's
// session-start options carry one boolean, not a three-way capability.
func networkEnabled(p driver.PermissionPolicy) bool {
	return p.Normalized().NetworkAccess == driver.CapAllow
}

// threadOptions builds the _meta payload attached to a new session/thread,
// carrying the sandbox/approval/network mapping a thread-SDK agent expects
// at startThread time.
func threadOptions(p driver.PermissionPolicy) map[string]any {
	return map[string]any{
		"sandboxMode":          sandboxMode(p),
		"approvalPolicy":       approvalPolicy(p),
		"networkAccessEnabled": networkEnabled(p),
	}
}

// permissionDecision is the outcome of applying policy to one ACP
// permission request.
type permissionDecision struct {
	allow     bool
	reason    string
	observe   bool // true when a permission_request event should be surfaced
}

// decide applies the ask-defaults-to-deny policy recorded as the Open
// Question decision in SPEC_FULL §D, here applied to Backend B's own
// RequestPermission flow: a policy that is fully allow auto-approves
// without a round-trip; an explicit allow/deny on the tool's axis is
// honored directly; ask, or a tool kind the policy has no opinion on,
// denies but is surfaced as an observable decision point.
func decide(policy driver.PermissionPolicy, kind acp.ToolKind) permissionDecision {
	if policy.AllAllow() {
		return permissionDecision{allow: true}
	}

	axis, known := classifyToolKind(kind)
	if !known {
		return permissionDecision{reason: "unclassified tool kind, defaulting to deny", observe: true}
	}

	switch capabilityFor(policy.Normalized(), axis) {
	case driver.CapAllow:
		return permissionDecision{allow: true}
	case driver.CapDeny:
		return permissionDecision{reason: "denied by permission policy"}
	default: // CapAsk
		return permissionDecision{reason: "ask policy has no interactive resolution; defaulting to deny", observe: true}
	}
}
