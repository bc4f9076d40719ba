package execjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodrama/agentbridge/internal/driver"
	"github.com/nodrama/agentbridge/internal/driver/ndjson"
)

func okResult(v map[string]any) ndjson.Result {
	return ndjson.Result{OK: true, Value: v}
}

func TestNormalizeLine(t *testing.T) {
	t.Run("parse failure becomes recoverable NDJSON_PARSE_ERROR", func(t *testing.T) {
		r := ndjson.Result{OK: false, Err: assertErr{}, RawLine: "garbage"}
		ev, ok := normalizeLine(r, "exec", "sess-1")
		require.True(t, ok)
		assert.Equal(t, driver.EventError, ev.Type)
		payload := ev.Payload.(driver.ErrorPayload)
		assert.Equal(t, "NDJSON_PARSE_ERROR", payload.Code)
		assert.True(t, payload.Recoverable)
	})

	t.Run("init", func(t *testing.T) {
		ev, ok := normalizeLine(okResult(map[string]any{
			"type": "init", "model": "m1", "cwd": "/tmp",
		}), "exec", "sess-1")
		require.True(t, ok)
		assert.Equal(t, driver.EventInit, ev.Type)
		assert.Equal(t, "m1", ev.Payload.(driver.InitPayload).Model)
	})

	t.Run("message maps to text", func(t *testing.T) {
		ev, ok := normalizeLine(okResult(map[string]any{"type": "message", "content": "hi"}), "exec", "sess-1")
		require.True(t, ok)
		assert.Equal(t, driver.EventText, ev.Type)
		assert.Equal(t, "hi", ev.Payload.(driver.TextPayload).Content)
	})

	t.Run("tool_use", func(t *testing.T) {
		ev, ok := normalizeLine(okResult(map[string]any{
			"type": "tool_use", "tool_name": "Bash", "tool_use_id": "t1",
		}), "exec", "sess-1")
		require.True(t, ok)
		assert.Equal(t, driver.EventToolUse, ev.Type)
		p := ev.Payload.(driver.ToolUsePayload)
		assert.Equal(t, "Bash", p.ToolName)
		assert.Equal(t, "t1", p.ToolUseID)
	})

	t.Run("tool_result status from is_error", func(t *testing.T) {
		ev, ok := normalizeLine(okResult(map[string]any{
			"type": "tool_result", "tool_use_id": "t1", "is_error": true,
		}), "exec", "sess-1")
		require.True(t, ok)
		assert.Equal(t, driver.ToolResultError, ev.Payload.(driver.ToolResultPayload).Status)
	})

	t.Run("error", func(t *testing.T) {
		ev, ok := normalizeLine(okResult(map[string]any{
			"type": "error", "code": "E1", "message": "bad", "recoverable": true,
		}), "exec", "sess-1")
		require.True(t, ok)
		assert.Equal(t, driver.EventError, ev.Type)
		p := ev.Payload.(driver.ErrorPayload)
		assert.Equal(t, "E1", p.Code)
		assert.True(t, p.Recoverable)
	})

	t.Run("result maps to done with status synonym", func(t *testing.T) {
		ev, ok := normalizeLine(okResult(map[string]any{
			"type": "result", "stop_reason": "max_turns", "input_tokens": float64(10),
		}), "exec", "sess-1")
		require.True(t, ok)
		assert.Equal(t, driver.EventDone, ev.Type)
		p := ev.Payload.(driver.DonePayload)
		assert.Equal(t, driver.StatusMaxTurns, p.Status)
		assert.Equal(t, 10, p.Usage.InputTokens)
	})

	t.Run("unknown type is dropped, not errored", func(t *testing.T) {
		_, ok := normalizeLine(okResult(map[string]any{"type": "mystery"}), "exec", "sess-1")
		assert.False(t, ok)
	})
}
