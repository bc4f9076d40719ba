package claudesdk

import (
	"testing"

	claudecode "github.com/severity1/claude-agent-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodrama/agentbridge/internal/driver"
)

func boolPtr(v bool) *bool { return &v }

func TestNormalizerHandleSystem(t *testing.T) {
	n := newNormalizer("claudesdk", "sess-1")
	events := n.handle(&claudecode.SystemMessage{
		Subtype: "init",
		Data: map[string]any{
			"model": "claude-x",
			"cwd":   "/work",
			"tools": []any{"Read", "Write"},
		},
	})
	require.Len(t, events, 1)
	assert.Equal(t, driver.EventInit, events[0].Type)
	p := events[0].Payload.(driver.InitPayload)
	assert.Equal(t, "claude-x", p.Model)
	assert.Equal(t, "/work", p.WorkingDir)
	assert.Equal(t, []string{"Read", "Write"}, p.Tools)
}

func TestNormalizerHandleSystem_NonInitSubtypeIgnored(t *testing.T) {
	n := newNormalizer("claudesdk", "sess-1")
	events := n.handle(&claudecode.SystemMessage{Subtype: "other"})
	assert.Nil(t, events)
}

func TestNormalizerHandleStreamEvent_TextDelta(t *testing.T) {
	n := newNormalizer("claudesdk", "sess-1")
	events := n.handle(&claudecode.StreamEvent{Event: map[string]any{
		"type":  "content_block_delta",
		"delta": map[string]any{"type": "text_delta", "text": "hi"},
	}})
	require.Len(t, events, 1)
	assert.Equal(t, driver.EventTextDelta, events[0].Type)
	assert.Equal(t, "hi", events[0].Payload.(driver.TextDeltaPayload).Chunk)
}

func TestNormalizerHandleStreamEvent_TextStartCompletesActiveTools(t *testing.T) {
	n := newNormalizer("claudesdk", "sess-1")
	n.activeTools["t1"] = "Bash"
	events := n.handle(&claudecode.StreamEvent{Event: map[string]any{
		"type":          "content_block_start",
		"content_block": map[string]any{"type": "text"},
	}})
	require.Len(t, events, 1)
	assert.Equal(t, driver.EventToolResult, events[0].Type)
	assert.Empty(t, n.activeTools)
}

func TestNormalizerHandleAssistant_ToolUseThenResult(t *testing.T) {
	n := newNormalizer("claudesdk", "sess-1")

	useEvents := n.handle(&claudecode.AssistantMessage{Content: []claudecode.ContentBlock{
		&claudecode.ToolUseBlock{ToolUseID: "t1", Name: "Bash", Input: map[string]any{"cmd": "ls"}},
	}})
	require.Len(t, useEvents, 1)
	assert.Equal(t, driver.EventToolUse, useEvents[0].Type)
	assert.Equal(t, 1, n.toolUses)
	assert.Equal(t, "Bash", n.activeTools["t1"])

	resultEvents := n.handle(&claudecode.AssistantMessage{Content: []claudecode.ContentBlock{
		&claudecode.ToolResultBlock{ToolUseID: "t1", IsError: boolPtr(false), Content: "ok"},
	}})
	require.Len(t, resultEvents, 1)
	p := resultEvents[0].Payload.(driver.ToolResultPayload)
	assert.Equal(t, "t1", p.ToolUseID)
	assert.Equal(t, "Bash", p.ToolName)
	assert.Equal(t, driver.ToolResultSuccess, p.Status)
	assert.Empty(t, n.activeTools)
}

func TestNormalizerHandleAssistant_ToolResultError(t *testing.T) {
	n := newNormalizer("claudesdk", "sess-1")
	n.activeTools["t1"] = "Bash"
	events := n.handle(&claudecode.AssistantMessage{Content: []claudecode.ContentBlock{
		&claudecode.ToolResultBlock{ToolUseID: "t1", IsError: boolPtr(true)},
	}})
	require.Len(t, events, 1)
	assert.Equal(t, driver.ToolResultError, events[0].Payload.(driver.ToolResultPayload).Status)
}

func TestNormalizerHandleAssistant_ThinkingBlock(t *testing.T) {
	n := newNormalizer("claudesdk", "sess-1")
	events := n.handle(&claudecode.AssistantMessage{Content: []claudecode.ContentBlock{
		&claudecode.ThinkingBlock{Thinking: "pondering"},
	}})
	require.Len(t, events, 1)
	assert.Equal(t, driver.EventThinking, events[0].Type)
	assert.Equal(t, "pondering", events[0].Payload.(driver.ThinkingPayload).Summary)
}

func TestNormalizerHandleAssistant_NewToolUseCompletesPriorDangling(t *testing.T) {
	n := newNormalizer("claudesdk", "sess-1")
	n.activeTools["stale"] = "Read"
	events := n.handle(&claudecode.AssistantMessage{Content: []claudecode.ContentBlock{
		&claudecode.ToolUseBlock{ToolUseID: "fresh", Name: "Write"},
	}})
	require.Len(t, events, 2)
	assert.Equal(t, driver.EventToolResult, events[0].Type)
	assert.Equal(t, "stale", events[0].Payload.(driver.ToolResultPayload).ToolUseID)
	assert.Equal(t, driver.EventToolUse, events[1].Type)
}

func TestNormalizerHandleResult(t *testing.T) {
	n := newNormalizer("claudesdk", "sess-1")
	n.activeTools["dangling"] = "Bash"
	n.toolUses = 3

	cost := 0.25
	events := n.handle(&claudecode.ResultMessage{
		Subtype: "success",
		Result:  "done talking",
		Usage:   &claudecode.Usage{InputTokens: 10, OutputTokens: 20},
		TotalCostUSD: &cost,
	})
	require.Len(t, events, 2)
	assert.Equal(t, driver.EventToolResult, events[0].Type)
	assert.Equal(t, driver.EventDone, events[1].Type)

	done := events[1].Payload.(driver.DonePayload)
	assert.Equal(t, driver.StatusSuccess, done.Status)
	assert.Equal(t, "done talking", done.FinalText)
	assert.Equal(t, 10, done.Usage.InputTokens)
	assert.Equal(t, 20, done.Usage.OutputTokens)
	assert.Equal(t, 3, done.Usage.ToolUses)
	require.NotNil(t, done.Usage.TotalCostUSD)
	assert.Equal(t, 0.25, *done.Usage.TotalCostUSD)
}

func TestMapResultStatus_Synonyms(t *testing.T) {
	cases := map[string]driver.TerminalStatus{
		"success":                driver.StatusSuccess,
		"error_max_turns":        driver.StatusMaxTurns,
		"budget_exceeded":        driver.StatusMaxBudget,
		"error_during_execution": driver.StatusError,
		"cancelled":              driver.StatusInterrupted,
	}
	for subtype, want := range cases {
		status, _, _ := mapResultStatus(&claudecode.ResultMessage{Subtype: subtype})
		assert.Equal(t, want, status, subtype)
	}
}

func TestMapResultStatus_FallsBackToIsError(t *testing.T) {
	status, _, _ := mapResultStatus(&claudecode.ResultMessage{Subtype: "", IsError: true})
	assert.Equal(t, driver.StatusError, status)
}
