package claudesdk

import (
	claudecode "github.com/severity1/claude-agent-sdk-go"

	"github.com/nodrama/agentbridge/internal/driver"
)

// normalizer turns SDK messages into canonical events. It tracks tool
// calls that have been announced via ToolUse but not yet resolved, so
// that a turn boundary (a new assistant message starting, or the
// session's ResultMessage) never leaves one dangling — the caller always
// sees a tool_result for every tool_use it observed, per the
// supplemented tool-call lifecycle in SPEC_FULL §C.
type normalizer struct {
	backendID   string
	sessionID   string
	activeTools map[string]string // toolUseID -> toolName
	toolUses    int
}

func newNormalizer(backendID, sessionID string) *normalizer {
	return &normalizer{backendID: backendID, sessionID: sessionID, activeTools: map[string]string{}}
}

// handle dispatches one SDK message to its translation and returns the
// canonical events it produces, in order.
func (n *normalizer) handle(msg claudecode.Message) []driver.Event {
	switch m := msg.(type) {
	case *claudecode.SystemMessage:
		return n.handleSystem(m)
	case *claudecode.StreamEvent:
		return n.handleStreamEvent(m)
	case *claudecode.AssistantMessage:
		return n.handleAssistant(m)
	case *claudecode.ResultMessage:
		return n.handleResult(m)
	default:
		return nil
	}
}

func (n *normalizer) event(t driver.EventType, payload any) driver.Event {
	return driver.NewEvent(t, n.backendID, payload, n.sessionID)
}

func (n *normalizer) handleSystem(m *claudecode.SystemMessage) []driver.Event {
	if m.Subtype != "init" && m.Subtype != "" {
		return nil
	}
	model, _ := m.Data["model"].(string)
	cwd, _ := m.Data["cwd"].(string)
	if cwd == "" {
		cwd, _ = m.Data["working_directory"].(string)
	}
	var tools []string
	if raw, ok := m.Data["tools"].([]any); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				tools = append(tools, s)
			}
		}
	}
	return []driver.Event{n.event(driver.EventInit, driver.InitPayload{
		Model: model, WorkingDir: cwd, Tools: tools,
	})}
}

func (n *normalizer) handleStreamEvent(m *claudecode.StreamEvent) []driver.Event {
	if m.Event == nil {
		return nil
	}
	eventType, _ := m.Event["type"].(string)

	switch eventType {
	case "content_block_start":
		cb, _ := m.Event["content_block"].(map[string]any)
		if cbType, _ := cb["type"].(string); cbType == "text" {
			// The model resuming text means any in-flight tool calls finished.
			return n.completeActiveTools()
		}
		return nil

	case "content_block_delta":
		delta, _ := m.Event["delta"].(map[string]any)
		if deltaType, _ := delta["type"].(string); deltaType == "text_delta" {
			text, _ := delta["text"].(string)
			return []driver.Event{n.event(driver.EventTextDelta, driver.TextDeltaPayload{Chunk: text})}
		}
		return nil

	default:
		return nil
	}
}

func (n *normalizer) handleAssistant(m *claudecode.AssistantMessage) []driver.Event {
	keep := make(map[string]bool, len(m.Content))
	for _, block := range m.Content {
		if b, ok := block.(*claudecode.ToolUseBlock); ok {
			keep[b.ToolUseID] = true
		}
	}

	var events []driver.Event
	events = append(events, n.completeActiveToolsExcept(keep)...)

	for _, block := range m.Content {
		switch b := block.(type) {
		case *claudecode.TextBlock:
			// Already streamed via text_delta.
		case *claudecode.ThinkingBlock:
			events = append(events, n.event(driver.EventThinking, driver.ThinkingPayload{Summary: b.Thinking}))
		case *claudecode.ToolUseBlock:
			id := b.ToolUseID
			if id == "" {
				id = driver.NewSessionID()
			}
			n.activeTools[id] = b.Name
			n.toolUses++
			events = append(events, n.event(driver.EventToolUse, driver.ToolUsePayload{
				ToolName: b.Name, ToolUseID: id, Input: b.Input,
			}))
		case *claudecode.ToolResultBlock:
			status := driver.ToolResultSuccess
			if b.IsError != nil && *b.IsError {
				status = driver.ToolResultError
			}
				toolName := n.activeTools[b.ToolUseID]
			delete(n.activeTools, b.ToolUseID)
			events = append(events, n.event(driver.EventToolResult, driver.ToolResultPayload{
				ToolUseID: b.ToolUseID,
				ToolName:  toolName,
				Status:    status,
				Output:    b.Content,
			}))
		}
	}
	return events
}

func (n *normalizer) handleResult(m *claudecode.ResultMessage) []driver.Event {
	events := n.completeActiveTools()

	status, usage, finalText := mapResultStatus(m)
	usage.ToolUses = n.toolUses
	events = append(events, n.event(driver.EventDone, driver.DonePayload{
		Status: status, FinalText: finalText, Usage: usage,
	}))
	return events
}

func (n *normalizer) completeActiveTools() []driver.Event {
	return n.completeActiveToolsExcept(nil)
}

// completeActiveToolsExcept synthesizes a success tool_result for every
// tracked tool not in keep, then forgets it. Dangling tools are assumed
// to have completed silently rather than failed, matching the common case
// where the CLI resolves them without a distinguishable wire event.
func (n *normalizer) completeActiveToolsExcept(keep map[string]bool) []driver.Event {
	var events []driver.Event
	for id, name := range n.activeTools {
		if keep[id] {
			continue
		}
		events = append(events, n.event(driver.EventToolResult, driver.ToolResultPayload{
			ToolUseID: id, ToolName: name, Status: driver.ToolResultSuccess,
		}))
		delete(n.activeTools, id)
	}
	return events
}

var resultStatusSynonyms = map[string]driver.TerminalStatus{
	"success":                driver.StatusSuccess,
	"completed":              driver.StatusSuccess,
	"ok":                     driver.StatusSuccess,
	"interrupted":            driver.StatusInterrupted,
	"cancelled":              driver.StatusInterrupted,
	"canceled":               driver.StatusInterrupted,
	"aborted":                driver.StatusInterrupted,
	"max_turns":              driver.StatusMaxTurns,
	"maxturns":               driver.StatusMaxTurns,
	"error_max_turns":        driver.StatusMaxTurns,
	"max_budget":             driver.StatusMaxBudget,
	"budget_exceeded":        driver.StatusMaxBudget,
	"error":                  driver.StatusError,
	"failed":                 driver.StatusError,
	"error_during_execution": driver.StatusError,
}

// mapResultStatus reads the ResultMessage's subtype (the SDK's status
// synonym, e.g. "success"/"error_max_turns"/"error_during_execution")
// falling back to its IsError flag, then its Usage/TotalCostUSD/Result
// fields for the done payload's usage and final text.
func mapResultStatus(m *claudecode.ResultMessage) (driver.TerminalStatus, driver.Usage, string) {
	status := driver.StatusSuccess
	if s, ok := resultStatusSynonyms[m.Subtype]; ok {
		status = s
	} else if m.IsError {
		status = driver.StatusError
	}

	usage := driver.Usage{}
	if m.Usage != nil {
		usage.InputTokens = m.Usage.InputTokens
		usage.OutputTokens = m.Usage.OutputTokens
	}
	if m.TotalCostUSD != nil {
		cost := *m.TotalCostUSD
		usage.TotalCostUSD = &cost
	}

	return status, usage, m.Result
}
