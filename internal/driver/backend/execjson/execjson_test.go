package execjson

import (
	"os/exec"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodrama/agentbridge/internal/driver"
)

func TestBuildArgs(t *testing.T) {
	t.Run("fixed flags only", func(t *testing.T) {
		args := buildArgs("hello", driver.RunOptions{}, toolSets{Allow: map[string]struct{}{}, Deny: map[string]struct{}{}})
		assert.Equal(t, []string{"--output-format", "stream-json", "--prompt", "hello"}, args)
	})

	t.Run("all optional flags", func(t *testing.T) {
		args := buildArgs("hello", driver.RunOptions{Model: "sonnet", MaxTurns: 5}, toolSets{
			Allow: map[string]struct{}{"edit": {}},
			Deny:  map[string]struct{}{},
		})
		assert.Contains(t, args, "--model")
		assert.Contains(t, args, "sonnet")
		assert.Contains(t, args, "--max-session-turns")
		assert.Contains(t, args, "5")
		assert.Contains(t, args, "--allowed-tools")
		assert.Contains(t, args, "edit")
	})

	t.Run("no allowed-tools flag when allow-set empty", func(t *testing.T) {
		args := buildArgs("hello", driver.RunOptions{}, toolSets{Allow: map[string]struct{}{}, Deny: map[string]struct{}{}})
		assert.NotContains(t, args, "--allowed-tools")
	})
}

func TestBuildToolSets(t *testing.T) {
	t.Run("allow policy adds to allow-set", func(t *testing.T) {
		sets := buildToolSets(driver.PermissionPolicy{FileWrite: driver.CapAllow}, nil, nil)
		_, ok := sets.Allow["edit"]
		assert.True(t, ok)
	})

	t.Run("deny overrides allow for the same tool", func(t *testing.T) {
		sets := buildToolSets(driver.PermissionPolicy{
			FileWrite: driver.CapAllow,
		}, []string{"edit"}, []string{"edit"})
		_, inAllow := sets.Allow["edit"]
		_, inDeny := sets.Deny["edit"]
		assert.False(t, inAllow)
		assert.True(t, inDeny)
	})

	t.Run("ask policy contributes to neither set", func(t *testing.T) {
		sets := buildToolSets(driver.PermissionPolicy{ShellExecute: driver.CapAsk}, nil, nil)
		_, inAllow := sets.Allow["ShellTool"]
		_, inDeny := sets.Deny["ShellTool"]
		assert.False(t, inAllow)
		assert.False(t, inDeny)
	})

	t.Run("user-provided allowedTools merge in", func(t *testing.T) {
		sets := buildToolSets(driver.PermissionPolicy{}, []string{"custom_tool"}, nil)
		_, ok := sets.Allow["custom_tool"]
		assert.True(t, ok)
	})
}

func TestWriteSettingsFile(t *testing.T) {
	t.Run("no deny entries yields no file", func(t *testing.T) {
		sf, err := writeSettingsFile(toolSets{Allow: map[string]struct{}{"edit": {}}, Deny: map[string]struct{}{}})
		require.NoError(t, err)
		assert.Nil(t, sf)
	})

	t.Run("deny entries materialize a settings file", func(t *testing.T) {
		sf, err := writeSettingsFile(toolSets{
			Allow: map[string]struct{}{"edit": {}},
			Deny:  map[string]struct{}{"ShellTool": {}},
		})
		require.NoError(t, err)
		require.NotNil(t, sf)
		defer sf.cleanup()
		assert.FileExists(t, sf.path)
	})
}

func TestExitStatus(t *testing.T) {
	t.Run("interrupted overrides everything", func(t *testing.T) {
		assert.Equal(t, driver.StatusInterrupted, exitStatus(nil, true))
	})

	t.Run("nil error is success", func(t *testing.T) {
		assert.Equal(t, driver.StatusSuccess, exitStatus(nil, false))
	})

	t.Run("non ExitError is mapped to error", func(t *testing.T) {
		assert.Equal(t, driver.StatusError, exitStatus(&exec.Error{Name: "x", Err: assertErr{}}, false))
	})

	for code, want := range map[int]driver.TerminalStatus{
		0:  driver.StatusSuccess,
		53: driver.StatusMaxTurns,
		1:  driver.StatusError,
		42: driver.StatusError,
		7:  driver.StatusError,
	} {
		t.Run("exit code mapping", func(t *testing.T) {
			cmd := exec.Command("sh", "-c", "exit "+strconv.Itoa(code))
			waitErr := cmd.Run()
			assert.Equal(t, want, exitStatus(waitErr, false))
		})
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
