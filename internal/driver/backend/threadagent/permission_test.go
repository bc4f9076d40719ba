package threadagent

import (
	"testing"

	acp "github.com/coder/acp-go-sdk"
	"github.com/stretchr/testify/assert"

	"github.com/nodrama/agentbridge/internal/driver"
)

func TestClassifyToolKind(t *testing.T) {
	cases := map[acp.ToolKind]string{
		acp.ToolKindEdit:    "fileWrite",
		acp.ToolKindDelete:  "fileWrite",
		acp.ToolKindExecute: "shellExecute",
		acp.ToolKindFetch:   "networkAccess",
	}
	for kind, wantAxis := range cases {
		axis, ok := classifyToolKind(kind)
		assert.True(t, ok, kind)
		assert.Equal(t, wantAxis, axis, kind)
	}
	_, ok := classifyToolKind(acp.ToolKindRead)
	assert.False(t, ok)
}

func TestSandboxMode(t *testing.T) {
	t.Run("any deny is read-only", func(t *testing.T) {
		assert.Equal(t, "read-only", sandboxMode(driver.PermissionPolicy{
			FileWrite: driver.CapAllow, ShellExecute: driver.CapDeny, NetworkAccess: driver.CapAllow,
		}))
	})
	t.Run("file and shell allow is danger-full-access regardless of network", func(t *testing.T) {
		assert.Equal(t, "danger-full-access", sandboxMode(driver.PermissionPolicy{
			FileWrite: driver.CapAllow, ShellExecute: driver.CapAllow, NetworkAccess: driver.CapAsk,
		}))
	})
	t.Run("otherwise workspace-write", func(t *testing.T) {
		assert.Equal(t, "workspace-write", sandboxMode(driver.PermissionPolicy{
			FileWrite: driver.CapAsk, ShellExecute: driver.CapAsk, NetworkAccess: driver.CapAsk,
		}))
	})
}

func TestApprovalPolicy(t *testing.T) {
	t.Run("all allow is never", func(t *testing.T) {
		assert.Equal(t, "never", approvalPolicy(driver.PermissionPolicy{
			FileWrite: driver.CapAllow, ShellExecute: driver.CapAllow, NetworkAccess: driver.CapAllow,
		}))
	})
	t.Run("any ask is untrusted", func(t *testing.T) {
		assert.Equal(t, "untrusted", approvalPolicy(driver.PermissionPolicy{
			FileWrite: driver.CapAllow, ShellExecute: driver.CapAsk, NetworkAccess: driver.CapAllow,
		}))
	})
	t.Run("otherwise on-request", func(t *testing.T) {
		assert.Equal(t, "on-request", approvalPolicy(driver.PermissionPolicy{
			FileWrite: driver.CapDeny, ShellExecute: driver.CapAllow, NetworkAccess: driver.CapDeny,
		}))
	})
}

func TestNetworkEnabled(t *testing.T) {
	assert.True(t, networkEnabled(driver.PermissionPolicy{NetworkAccess: driver.CapAllow}))
	assert.False(t, networkEnabled(driver.PermissionPolicy{NetworkAccess: driver.CapAsk}))
	assert.False(t, networkEnabled(driver.PermissionPolicy{NetworkAccess: driver.CapDeny}))
}

func TestDecide(t *testing.T) {
	t.Run("all allow auto-approves without an event", func(t *testing.T) {
		d := decide(driver.PermissionPolicy{
			FileWrite: driver.CapAllow, ShellExecute: driver.CapAllow, NetworkAccess: driver.CapAllow,
		}, acp.ToolKindExecute)
		assert.True(t, d.allow)
		assert.False(t, d.observe)
	})

	t.Run("explicit allow on the tool's axis approves", func(t *testing.T) {
		d := decide(driver.PermissionPolicy{ShellExecute: driver.CapAllow}, acp.ToolKindExecute)
		assert.True(t, d.allow)
		assert.False(t, d.observe)
	})

	t.Run("explicit deny refuses without an event", func(t *testing.T) {
		d := decide(driver.PermissionPolicy{NetworkAccess: driver.CapDeny}, acp.ToolKindFetch)
		assert.False(t, d.allow)
		assert.False(t, d.observe)
	})

	t.Run("ask denies and surfaces an observable decision", func(t *testing.T) {
		d := decide(driver.PermissionPolicy{FileWrite: driver.CapAsk}, acp.ToolKindEdit)
		assert.False(t, d.allow)
		assert.True(t, d.observe)
	})

	t.Run("unclassified tool kind denies and surfaces an observable decision", func(t *testing.T) {
		d := decide(driver.PermissionPolicy{}, acp.ToolKindRead)
		assert.False(t, d.allow)
		assert.True(t, d.observe)
	})
}
