package claudesdk

import (
	"context"

	claudecode "github.com/severity1/claude-agent-sdk-go"

	"github.com/nodrama/agentbridge/internal/driver"
)

// fileWriteTools, shellTools and networkTools are the tool-name
// classification table from spec §4.6's per-tool callback.
var (
	fileWriteTools = map[string]struct{}{
		"Write": {}, "Edit": {}, "MultiEdit": {}, "NotebookEdit": {},
	}
	shellTools = map[string]struct{}{
		"Bash": {},
	}
	networkTools = map[string]struct{}{
		"WebFetch": {},
	}
)

// classifyTool maps a tool name to the permission-policy axis it falls
// under, per spec §4.6. The second return value is false for tools the
// policy has no opinion on.
func classifyTool(toolName string) (axis string, ok bool) {
	if _, ok := fileWriteTools[toolName]; ok {
		return "fileWrite", true
	}
	if _, ok := shellTools[toolName]; ok {
		return "shellExecute", true
	}
	if _, ok := networkTools[toolName]; ok {
		return "networkAccess", true
	}
	return "", false
}

// permissionMode picks the SDK permission mode for policy, per §4.6:
// all-allow -> bypass; exactly {fileWrite=allow, shell=ask, net=ask} ->
// accept-edits; otherwise default, with useCallback=true so the caller
// wires WithCanUseTool.
func permissionMode(policy driver.PermissionPolicy) (mode claudecode.PermissionMode, useCallback bool) {
	n := policy.Normalized()

	if n.FileWrite == driver.CapAllow && n.ShellExecute == driver.CapAllow && n.NetworkAccess == driver.CapAllow {
		return claudecode.PermissionModeBypassPermissions, false
	}
	if n.FileWrite == driver.CapAllow && n.ShellExecute == driver.CapAsk && n.NetworkAccess == driver.CapAsk {
		return claudecode.PermissionModeAcceptEdits, false
	}
	return claudecode.PermissionModeDefault, true
}

// canUseTool builds the WithCanUseTool callback for "default" permission
// mode: it classifies the tool, returns Allow/Deny for an explicit
// allow/deny capability, and — since this library has no channel back to
// an interactive caller (interactive prompt editing is out of scope) —
// denies by default for "ask" or an unclassified tool, after surfacing a
// permission_request event so an observer can see the decision was made.
func canUseTool(policy driver.PermissionPolicy, emit func(driver.Event)) func(context.Context, string, map[string]any, claudecode.ToolPermissionContext) (claudecode.PermissionResult, error) {
	n := policy.Normalized()

	return func(_ context.Context, toolName string, input map[string]any, _ claudecode.ToolPermissionContext) (claudecode.PermissionResult, error) {
		axis, known := classifyTool(toolName)
		if !known {
			emit(driver.NewEvent(driver.EventPermissionRequest, "", driver.PermissionRequestPayload{
				ToolName: toolName, Input: input, Reason: "unclassified tool, defaulting to deny",
			}, ""))
			return claudecode.NewPermissionResultDeny("unclassified tool"), nil
		}

		capVal := capabilityFor(n, axis)
		switch capVal {
		case driver.CapAllow:
			return claudecode.NewPermissionResultAllow(), nil
		case driver.CapDeny:
			return claudecode.NewPermissionResultDeny("denied by permission policy"), nil
		default: // CapAsk
			emit(driver.NewEvent(driver.EventPermissionRequest, "", driver.PermissionRequestPayload{
				ToolName: toolName, Input: input, Reason: "policy is ask and no interactive resolution is available",
			}, ""))
			return claudecode.NewPermissionResultDeny("ask policy has no interactive resolution; defaulting to deny"), nil
		}
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
