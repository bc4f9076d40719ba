// Package ssemanaged implements the SSE-with-managed-server backend
// normalizer (spec §4.9): it either spawns a local server binary and waits
// for it to become ready, or connects straight to a caller-supplied URL,
// then drives one session over the server's HTTP/SSE surface.
package ssemanaged

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nodrama/agentbridge/internal/driver"
)

// Deps are an Adapter's dependencies, matching the teacher's
// DriverDeps{Log *slog.Logger} constructor convention.
type Deps struct {
	Log *slog.Logger
}

// Adapter is the ssemanaged backend.
type Adapter struct {
	id  string
	cfg Config
	log *slog.Logger
}

// NewAdapter returns an Adapter identified by id, operating per cfg.Mode.
func NewAdapter(id string, cfg Config, deps Deps) *Adapter {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{id: id, cfg: cfg, log: log.With("backend", id)}
}

func (a *Adapter) BackendID() string { return a.id }

// Available reports, in managed mode, whether the server CLI is reachable
// on PATH; the HTTP/SSE client is built into this package, so there is no
// separate client library to probe. External mode only requires a
// configured base URL.
func (a *Adapter) Available(ctx context.Context) bool {
	if a.cfg.Mode == ModeExternal {
		return a.cfg.BaseURL != ""
	}
	_, err := exec.LookPath(a.cfg.CLIPath)
	return err == nil
}

// Run starts (or connects to) a server and returns a Production whose
// background goroutine drives session creation, prompt submission, and SSE
// consumption through to completion.
func (a *Adapter) Run(ctx context.Context, prompt string, opts driver.RunOptions) (driver.Production, error) {
	sessionID := driver.NewSessionID()
	innerCtx, cancel := context.WithCancel(context.Background())

	prod := &production{
		events:    make(chan driver.Event),
		cancel:    cancel,
		log:       a.log,
		watchDone: make(chan struct{}),
	}

	var baseURL string
	switch a.cfg.Mode {
	case ModeExternal:
		if a.cfg.BaseURL == "" {
			cancel()
			return nil, fmt.Errorf("ssemanaged: external mode requires Config.BaseURL")
		}
		baseURL = a.cfg.BaseURL
	default:
		srv, err := startManagedServer(innerCtx, a.cfg, opts.WorkingDir, a.log)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("start managed server: %w", err)
		}
		prod.srv = srv
		baseURL = srv.baseURL
	}

	go prod.watchCancel(ctx)
	go prod.run(innerCtx, baseURL, prompt, opts, a.id, sessionID, a.cfg)

	return prod, nil
}

// production is the ssemanaged Production.
type production struct {
	events chan driver.Event
	srv    *managedServer
	cancel context.CancelFunc
	log    *slog.Logger

	watchDone chan struct{}

	closeOnce   sync.Once
	mu          sync.Mutex
	interrupted bool
}

func (p *production) Events() <-chan driver.Event { return p.events }

// Err always returns nil: every failure this backend observes is
// translated into a Done event with a non-success status inside run,
// mirroring claudesdk's and threadagent's own Production.Err().
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

func (p *production) watchCancel(ctx context.Context) {
	select {
	case <-ctx.Done():
		p.markInterrupted()
		p.cancel()
	case <-p.watchDone:
	}
}

// run executes readiness -> session creation -> prompt -> SSE-consumption
// and guarantees exactly one Done event before closing p.events.
func (p *production) run(ctx context.Context, baseURL, prompt string, opts driver.RunOptions, backendID, sessionID string, cfg Config) {
	defer close(p.watchDone)
	defer close(p.events)
	if p.srv != nil {
		defer p.srv.shutdown(cfg.CloseTimeout)
	}

	emitEvent := func(t driver.EventType, payload any) {
		p.events <- driver.NewEvent(t, backendID, payload, sessionID)
	}

	if p.srv != nil {
		if err := p.srv.waitReady(ctx, cfg); err != nil {
			p.fail(emitEvent, fmt.Errorf("server readiness: %w", err))
			return
		}
	}

	client := newServerClient(baseURL, p.log)
	upstreamID, err := client.createSession(ctx, opts.WorkingDir)
	if err != nil {
		p.fail(emitEvent, fmt.Errorf("create session: %w", err))
		return
	}

	emitEvent(driver.EventInit, driver.InitPayload{Model: opts.Model, WorkingDir: opts.WorkingDir})

	norm := newNormalizer(backendID, sessionID, upstreamID)

	var doneOnce sync.Once
	doneCh := make(chan struct{})
	markDone := func() { doneOnce.Do(func() { close(doneCh) }) }
	isDone := func() bool {
		select {
		case <-doneCh:
			return true
		default:
			return false
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return consumeSSE(gctx, baseURL, p.log, func(raw []byte) {
			evs, ok := norm.handle(raw)
			if !ok {
				return
			}
			for _, ev := range evs {
				select {
				case p.events <- ev:
				case <-gctx.Done():
					return
				}
				if ev.Type == driver.EventDone {
					markDone()
				}
			}
		})
	})

	if p.srv != nil {
		srv := p.srv
		g.Go(func() error {
			select {
			case <-srv.exited():
				if isDone() {
					return nil
				}
				return fmt.Errorf("server exited unexpectedly: %w", srv.waitErr())
			case <-doneCh:
				return nil
			case <-gctx.Done():
				return nil
			}
		})
	}

	if err := client.sendPrompt(ctx, upstreamID, prompt, opts); err != nil {
		emitEvent(driver.EventError, driver.ErrorPayload{Message: fmt.Sprintf("send prompt: %v", err)})
		p.cancel()
		_ = g.Wait()
		if !isDone() {
			emitEvent(driver.EventDone, driver.DonePayload{Status: p.finalFailureStatus()})
		}
		return
	}

	waitErr := g.Wait()

	if isDone() {
		return
	}

	if p.wasInterrupted() {
		abortCtx, abortCancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = client.abortSession(abortCtx, upstreamID)
		abortCancel()
		emitEvent(driver.EventDone, driver.DonePayload{Status: driver.StatusInterrupted})
		return
	}

	if waitErr != nil {
		emitEvent(driver.EventError, driver.ErrorPayload{
			Code: "OPENCODE_SERVER_EXIT", Message: waitErr.Error(), Recoverable: false,
		})
		emitEvent(driver.EventDone, driver.DonePayload{Status: driver.StatusError})
		return
	}

	emitEvent(driver.EventError, driver.ErrorPayload{
		Message: "event stream closed without a terminal event", Recoverable: false,
	})
	emitEvent(driver.EventDone, driver.DonePayload{Status: driver.StatusError})
}

func (p *production) finalFailureStatus() driver.TerminalStatus {
	if p.wasInterrupted() {
		return driver.StatusInterrupted
	}
	return driver.StatusError
}

func (p *production) fail(emit func(driver.EventType, any), err error) {
	emit(driver.EventError, driver.ErrorPayload{Message: err.Error()})
	emit(driver.EventDone, driver.DonePayload{Status: p.finalFailureStatus()})
}
