package execjson

import (
	"fmt"

	"github.com/nodrama/agentbridge/internal/driver"
	"github.com/nodrama/agentbridge/internal/driver/ndjson"
)

// normalizeLine converts one parsed NDJSON line into zero or one canonical
// events, per spec §4.8's event translation table. A parse failure from the
// framer itself (r.OK == false) always produces a recoverable
// NDJSON_PARSE_ERROR, never a dropped line and never a fatal abort.
func normalizeLine(r ndjson.Result, backendID, sessionID string) (driver.Event, bool) {
	if !r.OK {
		return driver.Event{
			Type:      driver.EventError,
			BackendID: backendID,
			SessionID: sessionID,
			Payload: driver.ErrorPayload{
				Code:        "NDJSON_PARSE_ERROR",
				Message:     fmt.Sprintf("parse failure: %v (line: %s)", r.Err, r.RawLine),
				Recoverable: true,
			},
		}, true
	}

	v := r.Value
	typ, _ := v["type"].(string)

	switch typ {
	case "init":
		return driver.Event{
			Type:      driver.EventInit,
			BackendID: backendID,
			SessionID: sessionID,
			Payload: driver.InitPayload{
				Model:      stringField(v, "model"),
				WorkingDir: stringField(v, "working_directory", "workingDirectory", "cwd"),
				Tools:      stringSliceField(v, "tool_list", "toolList", "tools"),
			},
		}, true

	case "message":
		return driver.Event{
			Type:      driver.EventText,
			BackendID: backendID,
			SessionID: sessionID,
			Payload:   driver.TextPayload{Content: stringField(v, "content", "text", "message")},
		}, true

	case "tool_use":
		return driver.Event{
			Type:      driver.EventToolUse,
			BackendID: backendID,
			SessionID: sessionID,
			Payload: driver.ToolUsePayload{
				ToolName:  stringField(v, "tool_name", "toolName", "name"),
				ToolUseID: stringField(v, "tool_use_id", "toolUseId", "id"),
				Input:     mapField(v, "input"),
			},
		}, true

	case "tool_result":
		return driver.Event{
			Type:      driver.EventToolResult,
			BackendID: backendID,
			SessionID: sessionID,
			Payload: driver.ToolResultPayload{
				ToolUseID: stringField(v, "tool_use_id", "toolUseId", "id"),
				ToolName:  stringField(v, "tool_name", "toolName", "name"),
				Status:    toolResultStatus(v),
				Output:    v["output"],
			},
		}, true

	case "error":
		return driver.Event{
			Type:      driver.EventError,
			BackendID: backendID,
			SessionID: sessionID,
			Payload: driver.ErrorPayload{
				Code:        stringField(v, "code"),
				Message:     stringField(v, "message", "error"),
				Recoverable: boolField(v, "recoverable", "retryable"),
			},
		}, true

	case "result":
		status, usage, finalText := normalizeResult(v)
		return driver.Event{
			Type:      driver.EventDone,
			BackendID: backendID,
			SessionID: sessionID,
			Payload: driver.DonePayload{
				Status:    status,
				FinalText: finalText,
				Usage:     usage,
			},
		}, true

	default:
		return driver.Event{}, false
	}
}

func toolResultStatus(v map[string]any) driver.ToolResultStatus {
	if s := stringField(v, "status"); s != "" {
		switch s {
		case "denied":
			return driver.ToolResultDenied
		case "error":
			return driver.ToolResultError
		default:
			return driver.ToolResultSuccess
		}
	}
	if boolField(v, "is_error", "isError") {
		return driver.ToolResultError
	}
	return driver.ToolResultSuccess
}

var statusSynonyms = map[string]driver.TerminalStatus{
	"success":         driver.StatusSuccess,
	"completed":       driver.StatusSuccess,
	"ok":              driver.StatusSuccess,
	"interrupted":     driver.StatusInterrupted,
	"cancelled":       driver.StatusInterrupted,
	"canceled":        driver.StatusInterrupted,
	"aborted":         driver.StatusInterrupted,
	"max_turns":       driver.StatusMaxTurns,
	"maxturns":        driver.StatusMaxTurns,
	"max_budget":      driver.StatusMaxBudget,
	"budget_exceeded": driver.StatusMaxBudget,
	"error":           driver.StatusError,
	"failed":          driver.StatusError,
}

func normalizeResult(v map[string]any) (driver.TerminalStatus, driver.Usage, string) {
	status := driver.StatusSuccess
	if raw := stringField(v, "status", "stop_reason", "stopReason"); raw != "" {
		if s, ok := statusSynonyms[raw]; ok {
			status = s
		}
	}

	usage := driver.Usage{
		InputTokens:  intField(v, "input_tokens", "inputTokens"),
		OutputTokens: intField(v, "output_tokens", "outputTokens"),
		ToolUses:     intField(v, "tool_uses", "toolUses"),
	}
	if cost, ok := floatField(v, "total_cost_usd", "totalCostUsd", "cost"); ok {
		usage.TotalCostUSD = &cost
	}

	return status, usage, stringField(v, "final_text", "finalText")
}

func stringField(v map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := v[k].(string); ok {
			return s
		}
	}
	return ""
}

func boolField(v map[string]any, keys ...string) bool {
	for _, k := range keys {
		if b, ok := v[k].(bool); ok {
			return b
		}
	}
	return false
}

func intField(v map[string]any, keys ...string) int {
	for _, k := range keys {
		if f, ok := v[k].(float64); ok {
			return int(f)
		}
	}
	return 0
}

func floatField(v map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := v[k].(float64); ok {
			return f, true
		}
	}
	return 0, false
}

func mapField(v map[string]any, key string) map[string]any {
	if m, ok := v[key].(map[string]any); ok {
		return m
	}
	return nil
}

func stringSliceField(v map[string]any, keys ...string) []string {
	for _, k := range keys {
		raw, ok := v[k].([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
