package threadagent

import (
	"testing"

	acp "github.com/coder/acp-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodrama/agentbridge/internal/driver"
)

func TestNormalizerHandle_AgentMessageChunk(t *testing.T) {
	n := newNormalizer("threadagent", "sess-1")
	events := n.handle(acp.UpdateAgentMessageText("hi there"))
	require.Len(t, events, 1)
	assert.Equal(t, driver.EventTextDelta, events[0].Type)
	assert.Equal(t, "hi there", events[0].Payload.(driver.TextDeltaPayload).Chunk)
}

func TestNormalizerHandle_AgentThoughtChunk(t *testing.T) {
	n := newNormalizer("threadagent", "sess-1")
	events := n.handle(acp.UpdateAgentThoughtText("pondering"))
	require.Len(t, events, 1)
	assert.Equal(t, driver.EventThinking, events[0].Type)
	assert.Equal(t, "pondering", events[0].Payload.(driver.ThinkingPayload).Summary)
}

func TestNormalizerHandle_ToolCallStart(t *testing.T) {
	n := newNormalizer("threadagent", "sess-1")
	events := n.handle(acp.StartToolCall(
		acp.ToolCallId("t1"), "Run tests",
		acp.WithStartKind(acp.ToolKindExecute),
		acp.WithStartStatus(acp.ToolCallStatusInProgress),
		acp.WithStartRawInput(map[string]any{"cmd": "go test"}),
	))
	require.Len(t, events, 1)
	assert.Equal(t, driver.EventToolUse, events[0].Type)
	p := events[0].Payload.(driver.ToolUsePayload)
	assert.Equal(t, "t1", p.ToolUseID)
	assert.Equal(t, "Run tests", p.ToolName)
	assert.Equal(t, "go test", p.Input["cmd"])
	assert.Equal(t, "Run tests", n.toolNames["t1"])
}

func TestNormalizerHandle_ToolCallUpdateCompleted(t *testing.T) {
	n := newNormalizer("threadagent", "sess-1")
	n.toolNames["t1"] = "Run tests"

	events := n.handle(acp.UpdateToolCall(
		acp.ToolCallId("t1"),
		acp.WithUpdateStatus(acp.ToolCallStatusCompleted),
		acp.WithUpdateRawOutput("ok"),
	))
	require.Len(t, events, 1)
	assert.Equal(t, driver.EventToolResult, events[0].Type)
	p := events[0].Payload.(driver.ToolResultPayload)
	assert.Equal(t, "t1", p.ToolUseID)
	assert.Equal(t, "Run tests", p.ToolName)
	assert.Equal(t, driver.ToolResultSuccess, p.Status)
	assert.Empty(t, n.toolNames)
}

func TestNormalizerHandle_ToolCallUpdateFailed(t *testing.T) {
	n := newNormalizer("threadagent", "sess-1")
	n.toolNames["t1"] = "Run tests"

	events := n.handle(acp.UpdateToolCall(
		acp.ToolCallId("t1"),
		acp.WithUpdateStatus(acp.ToolCallStatusFailed),
	))
	require.Len(t, events, 1)
	assert.Equal(t, driver.ToolResultError, events[0].Payload.(driver.ToolResultPayload).Status)
}

func TestNormalizerHandle_ToolCallUpdateInProgress_NoEvent(t *testing.T) {
	n := newNormalizer("threadagent", "sess-1")
	n.toolNames["t1"] = "Run tests"

	events := n.handle(acp.UpdateToolCall(
		acp.ToolCallId("t1"),
		acp.WithUpdateStatus(acp.ToolCallStatusInProgress),
	))
	assert.Empty(t, events)
	assert.Equal(t, "Run tests", n.toolNames["t1"])
}

func TestNormalizerHandle_FileChangeExtensionEvent(t *testing.T) {
	n := newNormalizer("threadagent", "sess-1")
	n.toolNames["t1"] = "Edit file"

	content := []acp.ToolCallContent{acp.ToolDiffContent("main.go", "new", "old")}
	events := n.handle(acp.UpdateToolCall(
		acp.ToolCallId("t1"),
		acp.WithUpdateKind(acp.ToolKindEdit),
		acp.WithUpdateContent(content),
		acp.WithUpdateStatus(acp.ToolCallStatusCompleted),
	))
	require.Len(t, events, 2)
	assert.Equal(t, driver.NewExtensionType("threadagent", "file_change"), events[0].Type)
	assert.Equal(t, driver.EventToolResult, events[1].Type)
}

func TestMapStopReason(t *testing.T) {
	assert.Equal(t, driver.StatusSuccess, mapStopReason(acp.StopReasonEndTurn, false))
	assert.Equal(t, driver.StatusInterrupted, mapStopReason(acp.StopReasonCancelled, false))
	assert.Equal(t, driver.StatusInterrupted, mapStopReason(acp.StopReasonEndTurn, true))
}
