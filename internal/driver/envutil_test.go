package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildEnv_OverridesExisting(t *testing.T) {
	t.Setenv("AGENTBRIDGE_TEST_VAR", "original")
	env := BuildEnv(map[string]string{"AGENTBRIDGE_TEST_VAR": "overridden"})

	found := false
	for _, e := range env {
		if e == "AGENTBRIDGE_TEST_VAR=overridden" {
			found = true
		}
		assert.NotEqual(t, "AGENTBRIDGE_TEST_VAR=original", e)
	}
	assert.True(t, found)
}

func TestBuildEnv_NoExtraReturnsEnviron(t *testing.T) {
	env := BuildEnv(nil)
	assert.NotEmpty(t, env)
}
