// Package claudesdk implements the typed-SDK backend normalizer (spec
// §4.6): it drives github.com/severity1/claude-agent-sdk-go directly
// in-process, translating its typed message stream into canonical
// events and bridging permission decisions through PermissionPolicy.
package claudesdk

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	claudecode "github.com/severity1/claude-agent-sdk-go"

	"github.com/nodrama/agentbridge/internal/driver"
)

// Deps are an Adapter's dependencies.
type Deps struct {
	Log *slog.Logger
}

// Adapter is the claudesdk backend. Each Run call gets its own SDK
// client and its own internally-owned controller context, so concurrent
// Run calls on the same Adapter are independent.
type Adapter struct {
	id  string
	log *slog.Logger
}

// NewAdapter returns an Adapter identified by id.
func NewAdapter(id string, deps Deps) *Adapter {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{id: id, log: log.With("backend", id)}
}

func (a *Adapter) BackendID() string { return a.id }

// Available reports whether the SDK can be constructed; the SDK itself
// locates its own CLI binary lazily on Connect, so this is necessarily a
// cheap, optimistic check.
func (a *Adapter) Available(ctx context.Context) bool {
	return true
}

// Run connects a fresh SDK client, issues prompt as the turn's query,
// and returns a Production that normalizes the client's message stream.
// Per the Adapter contract, Run must not be called with an already-Done
// ctx — the single/parallel drivers enforce that pre-check.
func (a *Adapter) Run(ctx context.Context, prompt string, opts driver.RunOptions) (driver.Production, error) {
	sessionID := driver.NewSessionID()

	// The SDK client and its message stream are owned by a controller
	// context independent of ctx's lifetime, so Close/cancellation can be
	// sequenced deliberately (see watchCancel) rather than yanking the
	// stream out from under an in-flight read.
	innerCtx, cancel := context.WithCancel(context.Background())

	prod := &production{
		events:    make(chan driver.Event),
		cancel:    cancel,
		log:       a.log,
		norm:      newNormalizer(a.id, sessionID),
		watchDone: make(chan struct{}),
	}

	sdkOpts := buildSDKOptions(opts, prod.emitSideEvent)
	client := claudecode.NewClient(sdkOpts...)

	if err := client.Connect(innerCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("connect: %w", err)
	}
	prod.client = client

	msgChan := client.ReceiveMessages(innerCtx)

	if err := client.QueryWithSession(innerCtx, prompt, sessionID); err != nil {
		cancel()
		return nil, fmt.Errorf("query: %w", err)
	}

	go prod.watchCancel(ctx)
	go prod.pump(msgChan)

	return prod, nil
}

// buildSDKOptions translates RunOptions into SDK options, per §4.6: model
// and working-directory passthrough, permission-mode mapping (with a
// WithCanUseTool callback only for "default" mode), and allowed-tools
// passthrough. emit lets the permission callback surface
// permission_request events for ask/unclassified decisions.
func buildSDKOptions(opts driver.RunOptions, emit func(driver.Event)) []claudecode.Option {
	var sdkOpts []claudecode.Option

	if opts.Model != "" {
		sdkOpts = append(sdkOpts, claudecode.WithModel(opts.Model))
	}
	if opts.WorkingDir != "" {
		sdkOpts = append(sdkOpts, claudecode.WithCwd(opts.WorkingDir))
	}
	if len(opts.AllowedTools) > 0 {
		sdkOpts = append(sdkOpts, claudecode.WithAllowedTools(opts.AllowedTools...))
	}

	mode, useCallback := permissionMode(opts.Permissions)
	sdkOpts = append(sdkOpts, claudecode.WithPermissionMode(mode))
	if useCallback {
		sdkOpts = append(sdkOpts, claudecode.WithCanUseTool(canUseTool(opts.Permissions, emit)))
	}

	sdkOpts = append(sdkOpts, claudecode.WithPartialStreaming())
	sdkOpts = append(sdkOpts, claudecode.WithDebugWriter(io.Discard))

	return sdkOpts
}

// production is the claudesdk Production: one SDK client and the
// normalizer translating its message stream into canonical events.
type production struct {
	events chan driver.Event
	client claudecode.Client
	cancel context.CancelFunc
	log    *slog.Logger
	norm   *normalizer

	watchDone chan struct{} // closed by pump once the message stream ends

	closeOnce   sync.Once
	mu          sync.Mutex
	err         error
	interrupted bool
}

func (p *production) Events() <-chan driver.Event { return p.events }

func (p *production) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *production) Close() error {
	p.closeOnce.Do(p.cancel)
	return nil
}

func (p *production) markInterrupted() {
	p.mu.Lock()
	p.interrupted = true
	p.mu.Unlock()
}

// emitSideEvent lets the permission callback push a permission_request
// event onto the stream from outside the pump goroutine.
func (p *production) emitSideEvent(ev driver.Event) {
	if ev.SessionID == "" {
		ev.SessionID = p.norm.sessionID
	}
	if ev.BackendID == "" {
		ev.BackendID = p.norm.backendID
	}
	p.events <- ev
}

// watchCancel bridges the caller's ctx to this production's internally
// owned controller: the first time ctx fires, it marks the production
// interrupted and cancels the controller, which tears down the SDK
// client's subprocess and ends ReceiveMessages. It exits without acting
// once pump reports the stream has ended on its own.
func (p *production) watchCancel(ctx context.Context) {
	select {
	case <-ctx.Done():
		p.markInterrupted()
		p.cancel()
	case <-p.watchDone:
	}
}

// pump consumes the SDK's message channel, normalizes each message, and
// guarantees exactly one Done event before closing p.events: the
// ResultMessage's Done translation, or a synthesized interrupted/error
// Done if the channel closes without one.
func (p *production) pump(msgChan <-chan claudecode.Message) {
	defer close(p.watchDone)
	defer close(p.events)

	emittedDone := false
	for msg := range msgChan {
		if msg == nil {
			continue
		}
		for _, ev := range p.norm.handle(msg) {
			p.events <- ev
			if ev.Type == driver.EventDone {
				emittedDone = true
			}
		}
		if emittedDone {
			return
		}
	}

	if emittedDone {
		return
	}

	p.mu.Lock()
	interrupted := p.interrupted
	p.mu.Unlock()

	status := driver.StatusError
	if interrupted {
		status = driver.StatusInterrupted
	}
	p.events <- driver.NewEvent(driver.EventDone, p.norm.backendID, driver.DonePayload{
		Status: status,
	}, p.norm.sessionID)
}
