package ssemanaged

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nodrama/agentbridge/internal/portutil"
)

// managedServer owns a spawned server process for one Run, the same
// responsibilities the teacher's openCodeSession.launchHeadless/Stop carry:
// pick a free port, start the binary, wait for it to become ready, and tear
// it down on any exit path.
type managedServer struct {
	cmd        *exec.Cmd
	baseURL    string
	log        *slog.Logger
	readyLines <-chan string

	mu       sync.Mutex
	exitErr  error
	exitedCh chan struct{}
}

// startManagedServer spawns cfg.CLIPath with "serve --host H --port P" and
// returns once the process has started (not once it is ready — readiness is
// a separate step so its stdout/stderr pattern-match fallback can observe
// lines emitted before the caller starts waiting).
func startManagedServer(ctx context.Context, cfg Config, workingDir string, log *slog.Logger) (*managedServer, error) {
	var port int
	var err error
	if cfg.PreferredPort != 0 {
		port, err = portutil.FindFreePortFrom(cfg.PreferredPort, 10)
	} else {
		port, err = portutil.FindFreePort()
	}
	if err != nil {
		return nil, fmt.Errorf("find free port: %w", err)
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	baseURL := fmt.Sprintf("http://%s:%d", host, port)

	cmd := exec.CommandContext(ctx, cfg.CLIPath, "serve", "--host", host, "--port", fmt.Sprintf("%d", port))
	if workingDir != "" {
		cmd.Dir = workingDir
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	srv := &managedServer{cmd: cmd, baseURL: baseURL, log: log, exitedCh: make(chan struct{})}

	lines := make(chan string, 16)
	go streamLines(stdoutPipe, lines)
	go streamLines(stderrPipe, lines)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.CLIPath, err)
	}

	go func() {
		defer close(srv.exitedCh)
		err := cmd.Wait()
		srv.mu.Lock()
		srv.exitErr = err
		srv.mu.Unlock()
	}()

	srv.readyLines = lines
	return srv, nil
}

func streamLines(r io.ReadCloser, out chan<- string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// waitReady blocks until the server is observed ready, the process exits, or
// timeout elapses. When cfg.HealthPath is set it polls that endpoint, and
// the stdout/stderr lines are drained (and merely logged) in the
// background; otherwise readiness falls back to pattern-matching those
// lines directly for "ready" / "listening" / "http://", per spec's literal
// readiness heuristic. Either way, s.readyLines ends up with exactly one
// consumer at a time so the server's stdout/stderr pipes never deadlock.
func (s *managedServer) waitReady(ctx context.Context, cfg Config) error {
	deadline := time.Now().Add(cfg.ReadinessTimeout)

	if cfg.HealthPath != "" {
		go s.drainLines()
		return s.waitHealthy(ctx, s.baseURL+cfg.HealthPath, deadline)
	}
	err := s.waitPatternMatch(ctx, deadline)
	go s.drainLines()
	return err
}

// drainLines logs remaining server output after readiness has been
// resolved one way or another, keeping the output pipes flowing.
func (s *managedServer) drainLines() {
	for line := range s.readyLines {
		if s.log != nil {
			s.log.Debug("ssemanaged server output", "line", line)
		}
	}
}

func (s *managedServer) waitHealthy(ctx context.Context, base string, deadline time.Time) error {
	url := base
	for {
		select {
		case <-s.exitedCh:
			return fmt.Errorf("server exited before becoming healthy: %w", s.waitErr())
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server not healthy after readiness timeout")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err == nil {
			resp, err := http.DefaultClient.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (s *managedServer) waitPatternMatch(ctx context.Context, deadline time.Time) error {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("server not ready after readiness timeout")
		}
		select {
		case line, ok := <-s.readyLinesChan():
			if !ok {
				continue
			}
			lower := strings.ToLower(line)
			if strings.Contains(lower, "ready") || strings.Contains(lower, "listening") || strings.Contains(lower, "http://") {
				return nil
			}
		case <-s.exitedCh:
			return fmt.Errorf("server exited before becoming ready: %w", s.waitErr())
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(remaining):
			return fmt.Errorf("server not ready after readiness timeout")
		}
	}
}

func (s *managedServer) readyLinesChan() <-chan string {
	return s.readyLines
}

func (s *managedServer) waitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

// exited returns a channel closed once the server process has exited; the
// exit error observed (nil for a clean exit) is then available via waitErr.
func (s *managedServer) exited() <-chan struct{} { return s.exitedCh }

// shutdown implements spec §4.9's shutdown discipline for the managed
// server: SIGTERM, then a bounded wait, then Kill.
func (s *managedServer) shutdown(closeTimeout time.Duration) {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	_ = s.cmd.Process.Signal(syscall.SIGTERM)

	if closeTimeout <= 0 {
		closeTimeout = 3 * time.Second
	}
	select {
	case <-s.exitedCh:
	case <-time.After(closeTimeout):
		_ = s.cmd.Process.Kill()
		<-s.exitedCh
	}
}
