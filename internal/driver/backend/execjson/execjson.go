// Package execjson implements the child-process + NDJSON backend normalizer
// (spec §4.8): it spawns a CLI, frames its stdout as newline-delimited
// JSON, translates each line into a canonical event, and maps the
// process's exit code to a terminal status when the CLI itself never
// emitted one.
package execjson

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/nodrama/agentbridge/internal/driver"
	"github.com/nodrama/agentbridge/internal/driver/ndjson"
)

// Deps are an Adapter's dependencies, matching the teacher's
// DriverDeps{Log *slog.Logger} constructor convention.
type Deps struct {
	Log *slog.Logger
}

// Adapter is the execjson backend. One Adapter may be registered per
// distinct CLI; concurrent Run calls are independent (each spawns its own
// process and, if needed, its own settings-override directory).
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

// Run spawns the CLI and returns a Production that frames and normalizes
// its stdout. It never blocks past process start; all parsing happens in
// a background goroutine.
func (a *Adapter) Run(ctx context.Context, prompt string, opts driver.RunOptions) (driver.Production, error) {
	sessionID := driver.NewSessionID()

	sets := buildToolSets(opts.Permissions, opts.AllowedTools, opts.DisallowedTools)
	settings, err := writeSettingsFile(sets)
	if err != nil {
		return nil, fmt.Errorf("materialize settings file: %w", err)
	}

	args := buildArgs(prompt, opts, sets)

	cmd := exec.Command(a.cfg.CLIPath, args...)
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}
	cmd.Stderr = os.Stderr

	var envExtra map[string]string
	if settings != nil {
		envExtra = map[string]string{a.cfg.SettingsEnvVar: settings.path}
	}
	cmd.Env = driver.BuildEnv(envExtra)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		settings.cleanup()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		settings.cleanup()
		return nil, fmt.Errorf("start %s: %w", a.cfg.CLIPath, err)
	}

	prod := &production{
		events:       make(chan driver.Event),
		cmd:          cmd,
		settings:     settings,
		stopCh:       make(chan struct{}),
		watchDone:    make(chan struct{}),
		log:          a.log,
		closeTimeout: a.cfg.CloseTimeout,
	}

	go prod.watchCancel(ctx)
	go prod.pump(stdout, a.id, sessionID)

	return prod, nil
}

// buildArgs constructs the CLI's flag list per §4.8: fixed
// --output-format stream-json, fixed --prompt <prompt>, then --model,
// --max-session-turns, --allowed-tools, each only if applicable.
func buildArgs(prompt string, opts driver.RunOptions, sets toolSets) []string {
	args := []string{"--output-format", "stream-json", "--prompt", prompt}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.MaxTurns > 0 {
		args = append(args, "--max-session-turns", strconv.Itoa(opts.MaxTurns))
	}
	if allow := sets.allowCSV(); len(allow) > 0 {
		args = append(args, "--allowed-tools", joinCSV(allow))
	}
	return args
}

func joinCSV(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// production is the execjson Production: a spawned process whose stdout is
// framed and normalized in one background goroutine.
type production struct {
	events chan driver.Event
	cmd    *exec.Cmd

	settings *settingsFile
	log      *slog.Logger

	stopCh       chan struct{} // closed by Close to request early shutdown
	stopOnce     sync.Once
	watchDone    chan struct{} // closed once watchCancel has nothing left to watch
	closeTimeout time.Duration

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
	p.stopOnce.Do(func() { close(p.stopCh) })
	return nil
}

func (p *production) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
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

// watchCancel sends SIGTERM the first time either ctx or p.stopCh fires,
// then escalates to Kill if the process has not exited within
// closeTimeout. It exits once pump signals it is done via watchDone,
// bounding its own lifetime regardless of which trigger (if any) fires.
func (p *production) watchCancel(ctx context.Context) {
	select {
	case <-ctx.Done():
		p.markInterrupted()
	case <-p.stopCh:
		p.markInterrupted()
	case <-p.watchDone:
		return
	}

	if proc := p.cmd.Process; proc != nil {
		_ = proc.Signal(syscall.SIGTERM)
	}

	timeout := p.closeTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	select {
	case <-p.watchDone:
	case <-time.After(timeout):
		if proc := p.cmd.Process; proc != nil {
			_ = proc.Kill()
		}
	}
}

// pump reads stdout, frames it as NDJSON, normalizes each line, and
// guarantees exactly one done event before closing p.events: either one
// translated from a "result" line, or one synthesized from the process's
// exit code (overridden by interrupted status) if the CLI never produced
// one. A stdout read failure short of EOF is recorded via p.err instead —
// the driver above synthesizes the terminal pair for that case.
func (p *production) pump(stdout io.ReadCloser, backendID, sessionID string) {
	defer close(p.watchDone)
	defer close(p.events)
	defer p.settings.cleanup()

	framer := ndjson.New()
	emittedDone := false
	buf := make([]byte, 64*1024)

	readErr := func() error {
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				for _, r := range framer.Feed(buf[:n]) {
					if p.emit(r, backendID, sessionID, &emittedDone) {
						return nil
					}
				}
			}
			if err != nil {
				if err == io.EOF {
					for _, r := range framer.Close() {
						if p.emit(r, backendID, sessionID, &emittedDone) {
							return nil
						}
					}
					return nil
				}
				return err
			}
		}
	}()

	if readErr != nil {
		p.setErr(fmt.Errorf("reading stdout: %w", readErr))
		_ = p.cmd.Wait()
		return
	}

	waitErr := p.cmd.Wait()

	if !emittedDone {
		p.events <- driver.NewEvent(driver.EventDone, backendID, driver.DonePayload{
			Status: exitStatus(waitErr, p.wasInterrupted()),
		}, sessionID)
	}
}

// emit normalizes one NDJSON result and sends it, reporting whether a done
// event was just sent (to let the caller stop pumping further lines).
func (p *production) emit(r ndjson.Result, backendID, sessionID string, emittedDone *bool) bool {
	if !r.OK && p.log != nil {
		p.log.Warn("parse execjson output", "error", r.Err, "line", r.RawLine)
	}
	ev, ok := normalizeLine(r, backendID, sessionID)
	if !ok {
		return false
	}
	p.events <- ev
	if ev.Type == driver.EventDone {
		*emittedDone = true
		return true
	}
	return false
}

// exitStatus maps a cmd.Wait() error to a terminal status per §4.8: exit
// 0 -> success, 53 -> max_turns, 1 and 42 -> error, anything else ->
// error; interrupted always overrides.
func exitStatus(waitErr error, interrupted bool) driver.TerminalStatus {
	if interrupted {
		return driver.StatusInterrupted
	}
	if waitErr == nil {
		return driver.StatusSuccess
	}
	exitErr, ok := waitErr.(*exec.ExitError)
	if !ok {
		return driver.StatusError
	}
	switch exitErr.ExitCode() {
	case 0:
		return driver.StatusSuccess
	case 53:
		return driver.StatusMaxTurns
	default:
		return driver.StatusError
	}
}
