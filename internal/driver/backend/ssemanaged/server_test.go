package ssemanaged

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(exited bool) *managedServer {
	srv := &managedServer{
		log:      slog.Default(),
		exitedCh: make(chan struct{}),
	}
	if exited {
		close(srv.exitedCh)
	}
	return srv
}

func TestWaitPatternMatch_MatchesReadyLine(t *testing.T) {
	srv := newTestServer(false)
	lines := make(chan string, 4)
	srv.readyLines = lines
	lines <- "starting up"
	lines <- "server listening on 127.0.0.1:4000"

	err := srv.waitPatternMatch(context.Background(), time.Now().Add(time.Second))
	require.NoError(t, err)
}

func TestWaitPatternMatch_ServerExitsBeforeReady(t *testing.T) {
	srv := newTestServer(false)
	lines := make(chan string)
	srv.readyLines = lines
	close(srv.exitedCh)

	err := srv.waitPatternMatch(context.Background(), time.Now().Add(time.Second))
	assert.Error(t, err)
}

func TestWaitPatternMatch_TimesOut(t *testing.T) {
	srv := newTestServer(false)
	lines := make(chan string)
	srv.readyLines = lines

	err := srv.waitPatternMatch(context.Background(), time.Now().Add(10*time.Millisecond))
	assert.Error(t, err)
}

func TestWaitHealthy_SucceedsOn200(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	srv := newTestServer(false)
	err := srv.waitHealthy(context.Background(), ts.URL, time.Now().Add(time.Second))
	require.NoError(t, err)
}

func TestWaitHealthy_ServerExitsBeforeHealthy(t *testing.T) {
	srv := newTestServer(true)
	err := srv.waitHealthy(context.Background(), "http://127.0.0.1:1/health", time.Now().Add(time.Second))
	assert.Error(t, err)
}
