// Package threadagent implements the thread-SDK backend normalizer (spec
// §4.7): it launches an ACP-speaking subprocess, starts or resumes a
// thread as an ACP session, and normalizes its SessionNotification stream
// into canonical events.
package threadagent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	acp "github.com/coder/acp-go-sdk"

	"github.com/nodrama/agentbridge/internal/driver"
)

// Deps are an Adapter's dependencies, matching the teacher's
// DriverDeps{Log *slog.Logger} constructor convention.
type Deps struct {
	Log *slog.Logger
}

// Adapter is the threadagent backend. One Adapter may be registered per
// distinct ACP agent binary; concurrent Run calls are independent, each
// spawning its own subprocess and its own thread.
type Adapter struct {
	id  string
	cfg Config
	log *slog.Logger
}

// NewAdapter returns an Adapter identified by id, spawning cfg.CLIPath for
// every Run call.
func NewAdapter(id string, cfg Config, deps Deps) *Adapter {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{id: id, cfg: cfg, log: log.With("backend", id)}
}

func (a *Adapter) BackendID() string { return a.id }

func (a *Adapter) Available(ctx context.Context) bool {
	_, err := exec.LookPath(a.cfg.CLIPath)
	return err == nil
}

// Run spawns the ACP agent, initializes the connection, starts or resumes
// a thread, sends prompt as the turn's input, and returns a Production
// whose event stream is fed by the session client's SessionUpdate calls
// until the turn completes.
func (a *Adapter) Run(ctx context.Context, prompt string, opts driver.RunOptions) (driver.Production, error) {
	sessionID := driver.NewSessionID()

	innerCtx, cancel := context.WithCancel(context.Background())

	norm := newNormalizer(a.id, sessionID)
	prod := &production{
		events:    make(chan driver.Event),
		cancel:    cancel,
		log:       a.log,
		watchDone: make(chan struct{}),
	}

	client := newSessionClient(norm, opts.Permissions.Normalized(), prod.emitSideEvent)

	cmd := exec.CommandContext(innerCtx, a.cfg.CLIPath, a.cfg.CLIArgs...)
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", a.cfg.CLIPath, err)
	}
	prod.cmd = cmd

	conn := acp.NewClientSideConnection(client, stdin, stdout)
	if a.log != nil {
		conn.SetLogger(a.log)
	}

	go prod.watchCancel(ctx)
	go prod.run(innerCtx, conn, prompt, opts, a.id, sessionID)

	return prod, nil
}

// production is the threadagent Production: one ACP connection over a
// spawned subprocess, driven to completion by run.
type production struct {
	events chan driver.Event
	cmd    *exec.Cmd
	cancel context.CancelFunc
	log    *slog.Logger

	watchDone chan struct{} // closed by run once the turn has finished

	closeOnce   sync.Once
	mu          sync.Mutex
	interrupted bool
}

func (p *production) Events() <-chan driver.Event { return p.events }

// Err always returns nil: every failure mode threadagent can observe
// (initialize failure, resume-unavailable, prompt failure) is translated
// into a Done event with a non-success status inside run, the same
// decision claudesdk's Production makes for its own Err().
func (p *production) Err() error { return nil }

func (p *production) Close() error {
	p.closeOnce.Do(p.cancel)
	return nil
}

func (p *production) markInterrupted() {
	p.mu.Lock()
	p.interrupted = true
	p.mu.Unlock()
}

func (p *production) wasInterrupted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interrupted
}

func (p *production) emitSideEvent(ev driver.Event) {
	p.events <- ev
}

// watchCancel bridges the caller's ctx to this production's internally
// owned controller context, the same pattern claudesdk.production uses: the
// first time ctx fires, it marks the production interrupted and cancels
// the controller, tearing down the subprocess and unblocking any in-flight
// ACP call.
func (p *production) watchCancel(ctx context.Context) {
	select {
	case <-ctx.Done():
		p.markInterrupted()
		p.cancel()
	case <-p.watchDone:
	}
}

// run executes the Initialize -> NewSession/LoadSession -> Prompt sequence
// and guarantees exactly one Done event before closing p.events.
func (p *production) run(ctx context.Context, conn *acp.ClientSideConnection, prompt string, opts driver.RunOptions, backendID, sessionID string) {
	defer close(p.watchDone)
	defer close(p.events)
	defer func() { _ = p.cmd.Wait() }()

	emitEvent := func(t driver.EventType, payload any) {
		p.events <- driver.NewEvent(t, backendID, payload, sessionID)
	}

	if _, err := conn.Initialize(ctx, acp.InitializeRequest{
		ProtocolVersion: acp.ProtocolVersion(acp.ProtocolVersionNumber),
		ClientInfo:      &acp.Implementation{Name: "agentbridge", Version: "1.0.0"},
	}); err != nil {
		p.fail(emitEvent, fmt.Errorf("initialize: %w", err))
		return
	}

	meta := threadOptions(opts.Permissions.Normalized())
	if opts.MaxTurns > 0 {
		meta["maxTurns"] = opts.MaxTurns
	}
	if opts.MaxBudget > 0 {
		meta["maxBudget"] = opts.MaxBudget
	}
	if opts.Model != "" {
		meta["model"] = opts.Model
	}

	threadID, err := p.startOrResumeThread(ctx, conn, opts, meta)
	if err != nil {
		p.fail(emitEvent, err)
		return
	}

	emitEvent(driver.EventInit, driver.InitPayload{Model: opts.Model, WorkingDir: opts.WorkingDir})

	resp, err := conn.Prompt(ctx, acp.PromptRequest{
		SessionId: threadID,
		Prompt:    []acp.ContentBlock{acp.TextBlock(prompt)},
	})
	if err != nil {
		if ctx.Err() != nil {
			emitEvent(driver.EventDone, driver.DonePayload{Status: driver.StatusInterrupted})
			return
		}
		p.fail(emitEvent, fmt.Errorf("prompt: %w", err))
		return
	}

	emitEvent(driver.EventDone, driver.DonePayload{Status: mapStopReason(resp.StopReason, p.wasInterrupted())})
}

// startOrResumeThread starts a new ACP session, or resumes one if
// opts.ResumeToken is set. Per §4.7, a resume request that the agent
// cannot honor fails with a clear, wrapped message rather than silently
// falling back to a fresh thread.
func (p *production) startOrResumeThread(ctx context.Context, conn *acp.ClientSideConnection, opts driver.RunOptions, meta map[string]any) (acp.SessionId, error) {
	if opts.ResumeToken == "" {
		resp, err := conn.NewSession(ctx, acp.NewSessionRequest{
			Cwd:  opts.WorkingDir,
			Meta: meta,
		})
		if err != nil {
			return "", fmt.Errorf("start thread: %w", err)
		}
		return resp.SessionId, nil
	}

	if _, err := conn.LoadSession(ctx, acp.LoadSessionRequest{
		SessionId: acp.SessionId(opts.ResumeToken),
		Cwd:       opts.WorkingDir,
	}); err != nil {
		return "", fmt.Errorf("resume thread %s: resume required but unavailable: %w", opts.ResumeToken, err)
	}
	return acp.SessionId(opts.ResumeToken), nil
}

func (p *production) fail(emit func(driver.EventType, any), err error) {
	emit(driver.EventError, driver.ErrorPayload{Message: err.Error()})
	status := driver.StatusError
	if p.wasInterrupted() {
		status = driver.StatusInterrupted
	}
	emit(driver.EventDone, driver.DonePayload{Status: status})
}

// mapStopReason translates the ACP turn's StopReason into the canonical
// terminal status, per the status mapping referenced by §4.7 (the same
// table as §4.6): an explicit interrupt always wins, end-turn is success,
// cancelled is interrupted, and anything else this SDK hasn't named yet
// (refusal, max-turn-requests, ...) is reported as a plain error rather
// than guessed at.
func mapStopReason(reason acp.StopReason, interrupted bool) driver.TerminalStatus {
	if interrupted {
		return driver.StatusInterrupted
	}
	switch reason {
	case acp.StopReasonEndTurn:
		return driver.StatusSuccess
	case acp.StopReasonCancelled:
		return driver.StatusInterrupted
	default:
		return driver.StatusError
	}
}
