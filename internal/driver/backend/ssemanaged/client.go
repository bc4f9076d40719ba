package ssemanaged

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nodrama/agentbridge/internal/driver"
)

// serverClient is a thin HTTP/SSE client against one running server
// instance (managed or external), grounded on the teacher's own
// createSession/sendMessage/abortSession/consumeSSE quartet.
type serverClient struct {
	baseURL string
	log     *slog.Logger
}

func newServerClient(baseURL string, log *slog.Logger) *serverClient {
	return &serverClient{baseURL: baseURL, log: log}
}

// createSession creates a new upstream session via POST /session.
func (c *serverClient) createSession(ctx context.Context, cwd string) (string, error) {
	url := c.baseURL + "/session"
	if cwd != "" {
		url += "?directory=" + cwd
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("create session: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode session response: %w", err)
	}
	return result.ID, nil
}

type messageRequest struct {
	Model *messageModel `json:"model,omitempty"`
	Parts []messagePart `json:"parts"`
}

type messageModel struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

type messagePart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// sendPrompt posts the prompt via the non-blocking prompt_async endpoint.
func (c *serverClient) sendPrompt(ctx context.Context, sessionID, prompt string, opts driver.RunOptions) error {
	url := c.baseURL + "/session/" + sessionID + "/prompt_async"

	body := messageRequest{Parts: []messagePart{{Type: "text", Text: prompt}}}
	if opts.Model != "" {
		providerID, modelID := parseModel(opts.Model)
		body.Model = &messageModel{ProviderID: providerID, ModelID: modelID}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("prompt_async API error %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// abortSession asks the server to stop processing sessionID.
func (c *serverClient) abortSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session/"+sessionID+"/abort", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// parseModel splits a "provider/model" string into providerID and modelID.
func parseModel(model string) (providerID, modelID string) {
	idx := strings.Index(model, "/")
	if idx < 0 {
		return "", model
	}
	return model[:idx], model[idx+1:]
}

// consumeSSE reads the server's global event stream, handing each decoded
// "data:" line to handleLine, until ctx is done or the stream closes. The
// global stream carries every session's events; filtering to one session is
// the normalizer's job, not this reader's.
func consumeSSE(ctx context.Context, baseURL string, log *slog.Logger, handleLine func(raw []byte)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/event", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect SSE stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("SSE endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	if log != nil {
		log.Debug("ssemanaged SSE stream connected", "url", baseURL+"/event")
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		handleLine([]byte(strings.TrimPrefix(line, "data: ")))
	}
	return scanner.Err()
}
