package ssemanaged

import (
	"encoding/json"

	"github.com/nodrama/agentbridge/internal/driver"
)

// sseEvent is the outer envelope for every event on the server's global SSE
// stream. Events use "properties" as the payload field, the same shape the
// teacher's own sseEvent models.
type sseEvent struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// sessionScoped is embedded by every properties shape that carries a
// session id, letting the normalizer filter the shared SSE stream down to
// the one session a production cares about.
type sessionScoped struct {
	SessionID string `json:"sessionID"`
}

type partProperties struct {
	sessionScoped
	Part ssePart `json:"part"`
}

type ssePart struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Delta     string          `json:"delta,omitempty"`
	CallID    string          `json:"callID,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	State     ssePartState    `json:"state,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	MediaType string          `json:"mediaType,omitempty"`
	URL       string          `json:"url,omitempty"`
}

type ssePartState struct {
	Status string          `json:"status,omitempty"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

type permissionUpdatedProperties struct {
	sessionScoped
	ID       string          `json:"id"`
	ToolName string          `json:"tool"`
	CallID   string          `json:"callID"`
	Input    json.RawMessage `json:"input,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

type permissionRepliedProperties struct {
	sessionScoped
	ID       string `json:"id"`
	CallID   string `json:"callID"`
	ToolName string `json:"tool"`
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

type errorProperties struct {
	sessionScoped
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type sessionIdleProperties struct {
	sessionScoped
	Usage *idleUsage `json:"usage,omitempty"`
}

type idleUsage struct {
	InputTokens  int      `json:"inputTokens"`
	OutputTokens int      `json:"outputTokens"`
	ToolUses     int      `json:"toolUses"`
	TotalCostUSD *float64 `json:"totalCostUsd,omitempty"`
}

func rawInputMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// normalizer translates one adapter's slice of the shared SSE stream into
// canonical events, filtering out every event that does not carry this
// production's own session id.
type normalizer struct {
	backendID       string
	sessionID       string
	upstreamSession string
}

func newNormalizer(backendID, sessionID, upstreamSession string) *normalizer {
	return &normalizer{backendID: backendID, sessionID: sessionID, upstreamSession: upstreamSession}
}

func (n *normalizer) event(t driver.EventType, payload any) driver.Event {
	return driver.NewEvent(t, n.backendID, payload, n.sessionID)
}

func (n *normalizer) extension(name string, payload any) driver.Event {
	return n.event(driver.NewExtensionType(n.backendID, name), payload)
}

// handle decodes one raw SSE "data:" payload and returns zero or more
// canonical events, or (nil, false) if the event belongs to a different
// session or this adapter has no translation for its type.
func (n *normalizer) handle(raw []byte) ([]driver.Event, bool) {
	var evt sseEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, false
	}

	switch evt.Type {
	case "message.part.updated":
		var props partProperties
		if err := json.Unmarshal(evt.Properties, &props); err != nil || props.SessionID != n.upstreamSession {
			return nil, false
		}
		return n.handlePart(props.Part), true

	case "permission.updated":
		var props permissionUpdatedProperties
		if err := json.Unmarshal(evt.Properties, &props); err != nil || props.SessionID != n.upstreamSession {
			return nil, false
		}
		return []driver.Event{n.event(driver.EventPermissionRequest, driver.PermissionRequestPayload{
			ToolName: props.ToolName, ToolUseID: props.CallID, Input: rawInputMap(props.Input), Reason: props.Reason,
		})}, true

	case "permission.replied":
		var props permissionRepliedProperties
		if err := json.Unmarshal(evt.Properties, &props); err != nil || props.SessionID != n.upstreamSession {
			return nil, false
		}
		if props.Decision != "denied" && props.Decision != "rejected" {
			return nil, true
		}
		return []driver.Event{n.event(driver.EventToolResult, driver.ToolResultPayload{
			ToolUseID: props.CallID, ToolName: props.ToolName, Status: driver.ToolResultDenied, Output: props.Reason,
		})}, true

	case "error":
		var props errorProperties
		if err := json.Unmarshal(evt.Properties, &props); err != nil || (props.SessionID != "" && props.SessionID != n.upstreamSession) {
			return nil, false
		}
		return []driver.Event{n.event(driver.EventError, driver.ErrorPayload{
			Code: props.Code, Message: props.Message, Recoverable: false,
		})}, true

	case "session.idle":
		var props sessionIdleProperties
		if err := json.Unmarshal(evt.Properties, &props); err != nil || props.SessionID != n.upstreamSession {
			return nil, false
		}
		usage := driver.Usage{}
		if props.Usage != nil {
			usage = driver.Usage{
				InputTokens: props.Usage.InputTokens, OutputTokens: props.Usage.OutputTokens,
				ToolUses: props.Usage.ToolUses, TotalCostUSD: props.Usage.TotalCostUSD,
			}
		}
		return []driver.Event{n.event(driver.EventDone, driver.DonePayload{Status: driver.StatusSuccess, Usage: usage})}, true
	}

	return nil, false
}

func (n *normalizer) handlePart(part ssePart) []driver.Event {
	switch part.Type {
	case "text":
		if part.Delta != "" {
			return []driver.Event{n.event(driver.EventTextDelta, driver.TextDeltaPayload{Chunk: part.Delta})}
		}
		return []driver.Event{n.event(driver.EventText, driver.TextPayload{Content: part.Text})}

	case "tool", "tool_call", "tool_use":
		return []driver.Event{n.event(driver.EventToolUse, driver.ToolUsePayload{
			ToolName: part.Tool, ToolUseID: part.CallID, Input: rawInputMap(part.State.Input),
		})}

	case "thinking", "reasoning":
		return []driver.Event{n.event(driver.EventThinking, driver.ThinkingPayload{Summary: part.Text})}

	case "file", "file_part":
		return []driver.Event{n.extension("file_part", part)}

	case "image", "image_part":
		return []driver.Event{n.extension("image_part", part)}
	}

	return nil
}
