// Package driver implements the canonical event model, the adapter
// protocol, and the single-session and parallel session engines described
// by the agent-bridge specification.
package driver

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType tags the shape of an Event's payload. The nine canonical types
// are closed for driver synthesis purposes — the driver only ever
// synthesizes Init, Error and Done. Backends may additionally emit
// namespaced extension types of the form "<backend-id>:<name>".
type EventType string

const (
	EventInit              EventType = "init"
	EventText              EventType = "text"
	EventTextDelta         EventType = "text_delta"
	EventThinking          EventType = "thinking"
	EventToolUse           EventType = "tool_use"
	EventToolResult        EventType = "tool_result"
	EventPermissionRequest EventType = "permission_request"
	EventError             EventType = "error"
	EventDone              EventType = "done"
)

// IsExtension reports whether t has the "<backend-id>:<name>" shape used by
// backend-specific passthrough events. Extension events are never terminal
// and are never synthesized by a driver.
func (t EventType) IsExtension() bool {
	return strings.Contains(string(t), ":")
}

// ParseExtension splits an extension event type into its backend id and
// name. ok is false if t is not an extension type.
func ParseExtension(t EventType) (backendID, name string, ok bool) {
	idx := strings.Index(string(t), ":")
	if idx < 0 {
		return "", "", false
	}
	return string(t)[:idx], string(t)[idx+1:], true
}

// NewExtensionType builds an extension event type for backendID/name.
func NewExtensionType(backendID, name string) EventType {
	return EventType(backendID + ":" + name)
}

// ToolResultStatus is the outcome of a tool invocation.
type ToolResultStatus string

const (
	ToolResultSuccess ToolResultStatus = "success"
	ToolResultError   ToolResultStatus = "error"
	ToolResultDenied  ToolResultStatus = "denied"
)

// TerminalStatus is the outcome recorded on a Done event.
type TerminalStatus string

const (
	StatusSuccess     TerminalStatus = "success"
	StatusError       TerminalStatus = "error"
	StatusInterrupted TerminalStatus = "interrupted"
	StatusMaxTurns    TerminalStatus = "max_turns"
	StatusMaxBudget   TerminalStatus = "max_budget"
)

// Usage carries token/tool accounting for a session, attached to Done.
type Usage struct {
	InputTokens  int      `json:"inputTokens"`
	OutputTokens int      `json:"outputTokens"`
	ToolUses     int      `json:"toolUses"`
	TotalCostUSD *float64 `json:"totalCostUsd,omitempty"`
}

// InitPayload is the payload of an Init event.
type InitPayload struct {
	Model          string         `json:"model"`
	WorkingDir     string         `json:"workingDirectory"`
	Tools          []string       `json:"toolList"`
	Capabilities   map[string]any `json:"capabilities,omitempty"`
}

// TextPayload is the payload of a Text event.
type TextPayload struct {
	Content string `json:"content"`
}

// TextDeltaPayload is the payload of a TextDelta event.
type TextDeltaPayload struct {
	Chunk string `json:"chunk"`
}

// ThinkingPayload is the payload of a Thinking event.
type ThinkingPayload struct {
	Summary string `json:"summary"`
}

// ToolUsePayload is the payload of a ToolUse event.
type ToolUsePayload struct {
	ToolName    string         `json:"toolName"`
	ToolUseID   string         `json:"toolUseId"`
	Input       map[string]any `json:"input,omitempty"`
	Description string         `json:"description,omitempty"`
}

// ToolResultPayload is the payload of a ToolResult event.
type ToolResultPayload struct {
	ToolUseID string           `json:"toolUseId"`
	ToolName  string           `json:"toolName"`
	Status    ToolResultStatus `json:"status"`
	Output    any              `json:"output,omitempty"`
	DurationMs *int64          `json:"durationMs,omitempty"`
}

// PermissionRequestPayload is the payload of a PermissionRequest event.
type PermissionRequestPayload struct {
	ToolName  string         `json:"toolName"`
	ToolUseID string         `json:"toolUseId"`
	Input     map[string]any `json:"input,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// ErrorPayload is the payload of an Error event.
type ErrorPayload struct {
	Code        string `json:"code,omitempty"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// DonePayload is the payload of a Done event. Exactly one Done event exists
// per session and it is always the last event in that session's stream.
type DonePayload struct {
	Status     TerminalStatus `json:"status"`
	FinalText  string         `json:"finalText,omitempty"`
	Usage      Usage          `json:"usage"`
	DurationMs int64          `json:"durationMs"`
}

// Event is the canonical envelope emitted by every adapter, after driver
// normalization. Payload's concrete type is determined by Type; see the
// *Payload types above for the nine canonical shapes. Extension events
// (Type.IsExtension()) carry an arbitrary Payload.
type Event struct {
	Type      EventType
	BackendID string
	Timestamp time.Time
	SessionID string
	Metadata  map[string]any
	Payload   any
}

// NewEvent constructs an Event. sessionID may be empty, in which case the
// driver fills it in from the session's known id.
func NewEvent(t EventType, backendID string, payload any, sessionID string) Event {
	return Event{
		Type:      t,
		BackendID: backendID,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Payload:   payload,
	}
}

// NewSessionID generates a globally unique opaque session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// ShapeOf performs a structural check of an arbitrary decoded value (e.g.
// JSON unmarshaled into map[string]any) against the minimal event
// contract: type, agent, timestamp and sessionId keys of the right kind,
// plus the presence of a payload. This is used to validate raw frames
// coming off the wire (NDJSON, SSE) before a backend-specific normalizer
// attempts to interpret them.
func ShapeOf(v map[string]any) bool {
	if v == nil {
		return false
	}
	if _, ok := v["type"].(string); !ok {
		return false
	}
	if _, ok := v["agent"].(string); !ok {
		return false
	}
	switch v["timestamp"].(type) {
	case float64, int64, int:
	default:
		return false
	}
	if _, ok := v["sessionId"].(string); !ok {
		return false
	}
	if _, ok := v["payload"]; !ok {
		return false
	}
	return true
}
