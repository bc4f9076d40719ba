package threadagent

import (
	"context"
	"fmt"

	acp "github.com/coder/acp-go-sdk"

	"github.com/nodrama/agentbridge/internal/driver"
)

// sessionClient implements acp.Client for one Run invocation: it forwards
// SessionNotification updates through the normalizer onto the production's
// event stream, and answers RequestPermission using the policy decision in
// permission.go. File and terminal capabilities are not part of this
// library's adapter surface (interactive prompt editing is out of scope
// per spec.md §1), so those methods simply refuse, matching the teacher's
// own stub behavior in v2/client.go when no handler is configured.
type sessionClient struct {
	norm   *normalizer
	policy driver.PermissionPolicy
	emit   func(driver.Event)
}

func newSessionClient(norm *normalizer, policy driver.PermissionPolicy, emit func(driver.Event)) *sessionClient {
	return &sessionClient{norm: norm, policy: policy, emit: emit}
}

func (c *sessionClient) SessionUpdate(_ context.Context, n acp.SessionNotification) error {
	for _, ev := range c.norm.handle(n.Update) {
		c.emit(ev)
	}
	return nil
}

// RequestPermission applies the ask-defaults-to-deny decision recorded as
// the Open Question resolution in SPEC_FULL §D: a fully-allow policy (or
// an explicit allow on the tool's axis) picks an allow option, preferring
// allow-once over allow-always (see allowOptionID); anything else is
// cancelled, with observable decisions surfacing a permission_request
// event first so the decision is observable rather than silent.
func (c *sessionClient) RequestPermission(_ context.Context, p acp.RequestPermissionRequest) (acp.RequestPermissionResponse, error) {
	var kind acp.ToolKind
	if p.ToolCall.Kind != nil {
		kind = *p.ToolCall.Kind
	}
	d := decide(c.policy, kind)

	if d.observe {
		var input map[string]any
		if m, ok := p.ToolCall.RawInput.(map[string]any); ok {
			input = m
		}
		title := ""
		if p.ToolCall.Title != nil {
			title = *p.ToolCall.Title
		}
		c.emit(c.norm.event(driver.EventPermissionRequest, driver.PermissionRequestPayload{
			ToolName: title, ToolUseID: string(p.ToolCall.ToolCallId), Input: input, Reason: d.reason,
		}))
	}

	if d.allow {
		if id := allowOptionID(p.Options); id != "" {
			return acp.RequestPermissionResponse{Outcome: acp.NewRequestPermissionOutcomeSelected(id)}, nil
		}
	}
	return acp.RequestPermissionResponse{Outcome: acp.NewRequestPermissionOutcomeCancelled()}, nil
}

// allowOptionID picks the first allow-once option, falling back to
// allow-always, the same precedence as the teacher's findAllowOptionID.
func allowOptionID(options []acp.PermissionOption) acp.PermissionOptionId {
	var allowAlways acp.PermissionOptionId
	for _, opt := range options {
		switch opt.Kind {
		case acp.PermissionOptionKindAllowOnce:
			return opt.OptionId
		case acp.PermissionOptionKindAllowAlways:
			if allowAlways == "" {
				allowAlways = opt.OptionId
			}
		}
	}
	return allowAlways
}

func (c *sessionClient) ReadTextFile(context.Context, acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error) {
	return acp.ReadTextFileResponse{}, fmt.Errorf("fs.readTextFile not supported")
}

func (c *sessionClient) WriteTextFile(context.Context, acp.WriteTextFileRequest) (acp.WriteTextFileResponse, error) {
	return acp.WriteTextFileResponse{}, fmt.Errorf("fs.writeTextFile not supported")
}

func (c *sessionClient) CreateTerminal(context.Context, acp.CreateTerminalRequest) (acp.CreateTerminalResponse, error) {
	return acp.CreateTerminalResponse{}, fmt.Errorf("terminal not supported")
}

func (c *sessionClient) KillTerminalCommand(context.Context, acp.KillTerminalCommandRequest) (acp.KillTerminalCommandResponse, error) {
	return acp.KillTerminalCommandResponse{}, fmt.Errorf("terminal not supported")
}

func (c *sessionClient) TerminalOutput(context.Context, acp.TerminalOutputRequest) (acp.TerminalOutputResponse, error) {
	return acp.TerminalOutputResponse{}, fmt.Errorf("terminal not supported")
}

func (c *sessionClient) ReleaseTerminal(context.Context, acp.ReleaseTerminalRequest) (acp.ReleaseTerminalResponse, error) {
	return acp.ReleaseTerminalResponse{}, fmt.Errorf("terminal not supported")
}

func (c *sessionClient) WaitForTerminalExit(context.Context, acp.WaitForTerminalExitRequest) (acp.WaitForTerminalExitResponse, error) {
	return acp.WaitForTerminalExitResponse{}, fmt.Errorf("terminal not supported")
}
