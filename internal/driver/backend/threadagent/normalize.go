package threadagent

import (
	acp "github.com/coder/acp-go-sdk"

	"github.com/nodrama/agentbridge/internal/driver"
)

// normalizer turns ACP SessionNotification updates into canonical events,
// per spec §4.7's item/turn vocabulary (mapped onto the thread-SDK's own
// wire shapes: AgentMessageChunk/AgentThoughtChunk for text content,
// ToolCall/ToolCallUpdate for tool_call/tool_result, file-carrying tool
// content for file_change). It tracks tool-call titles announced at a
// ToolCall start so a later ToolCallUpdate — which often omits the title —
// can still report under the original tool name, the same dangling-name
// problem claudesdk's activeTools map solves for Backend A.
type normalizer struct {
	backendID string
	sessionID string
	toolNames map[string]string // toolCallID -> title
}

func newNormalizer(backendID, sessionID string) *normalizer {
	return &normalizer{backendID: backendID, sessionID: sessionID, toolNames: map[string]string{}}
}

func (n *normalizer) event(t driver.EventType, payload any) driver.Event {
	return driver.NewEvent(t, n.backendID, payload, n.sessionID)
}

func (n *normalizer) extension(name string, payload any) driver.Event {
	return n.event(driver.NewExtensionType(n.backendID, name), payload)
}

// handle translates one SessionNotification's update. ACP's update shapes
// never carry both a top-level and a nested text block for the same chunk
// the way the thread-SDK's item.completed envelope can, so §4.7's dedup
// rule (top-level text only if no content-block text exists) has nothing
// to do here — each update already arrives as exactly one block kind.
func (n *normalizer) handle(u acp.SessionUpdate) []driver.Event {
	switch {
	case u.AgentMessageChunk != nil:
		return n.handleText(u.AgentMessageChunk.Content)
	case u.AgentThoughtChunk != nil:
		return n.handleThought(u.AgentThoughtChunk.Content)
	case u.ToolCall != nil:
		return n.handleToolCallStart(u.ToolCall)
	case u.ToolCallUpdate != nil:
		return n.handleToolCallUpdate(u.ToolCallUpdate)
	case u.Plan != nil:
		return []driver.Event{n.extension("plan", u.Plan)}
	case u.CurrentModeUpdate != nil:
		return []driver.Event{n.extension("mode_update", u.CurrentModeUpdate)}
	case u.AvailableCommandsUpdate != nil:
		return []driver.Event{n.extension("available_commands", u.AvailableCommandsUpdate)}
	default:
		return nil
	}
}

func blockText(cb acp.ContentBlock) string {
	if cb.Text != nil {
		return cb.Text.Text
	}
	return ""
}

func (n *normalizer) handleText(cb acp.ContentBlock) []driver.Event {
	text := blockText(cb)
	if text == "" {
		return nil
	}
	return []driver.Event{n.event(driver.EventTextDelta, driver.TextDeltaPayload{Chunk: text})}
}

func (n *normalizer) handleThought(cb acp.ContentBlock) []driver.Event {
	text := blockText(cb)
	if text == "" {
		return nil
	}
	return []driver.Event{n.event(driver.EventThinking, driver.ThinkingPayload{Summary: text})}
}

func (n *normalizer) handleToolCallStart(tc *acp.SessionUpdateToolCall) []driver.Event {
	id := string(tc.ToolCallId)
	n.toolNames[id] = tc.Title

	var input map[string]any
	if m, ok := tc.RawInput.(map[string]any); ok {
		input = m
	}

	return []driver.Event{n.event(driver.EventToolUse, driver.ToolUsePayload{
		ToolName: tc.Title, ToolUseID: id, Input: input,
	})}
}

// handleToolCallUpdate maps an in-progress/terminal tool-call update.
// file_change is synthesized from an edit-kind update carrying content,
// since the thread-SDK's file_change block has no 1:1 ACP field — the
// closest available signal is an edit tool call reporting its diff
// content, so that becomes the extension event's payload.
func (n *normalizer) handleToolCallUpdate(tc *acp.SessionToolCallUpdate) []driver.Event {
	id := string(tc.ToolCallId)
	name := n.toolNames[id]
	if tc.Title != nil {
		name = *tc.Title
	}

	var events []driver.Event
	if tc.Kind != nil && *tc.Kind == acp.ToolKindEdit && len(tc.Content) > 0 {
		events = append(events, n.extension("file_change", tc.Content))
	}

	if tc.Status == nil || (*tc.Status != acp.ToolCallStatusCompleted && *tc.Status != acp.ToolCallStatusFailed) {
		return events
	}

	delete(n.toolNames, id)
	status := driver.ToolResultSuccess
	if *tc.Status == acp.ToolCallStatusFailed {
		status = driver.ToolResultError
	}
	events = append(events, n.event(driver.EventToolResult, driver.ToolResultPayload{
		ToolUseID: id, ToolName: name, Status: status, Output: tc.RawOutput,
	}))
	return events
}
