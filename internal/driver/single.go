package driver

import (
	"context"
	"fmt"
	"time"
)

// Drive wraps one adapter's production in the canonical session lifecycle
// described by spec §4.4. It returns synchronously with an error only for
// a registry lookup failure ("unknown-backend"); every other failure mode
// (pre-aborted cancellation, adapter exception, protocol violation) is
// surfaced as events on the returned stream, never as a returned error.
//
// The returned channel is closed exactly once, after the session's Done
// event (synthesized or adapter-produced) has been sent.
func Drive(ctx context.Context, backendID, prompt string, opts RunOptions, reg *Registry) (<-chan Event, error) {
	adapter, ok := reg.Lookup(backendID)
	if !ok {
		return nil, &ErrUnknownBackend{BackendID: backendID}
	}

	out := make(chan Event)
	go runSingleSession(ctx, adapter, prompt, opts, "", out)
	return out, nil
}

// runSingleSession implements the §4.4 algorithm. taskID, when non-empty,
// is stamped onto every event's Metadata under "taskId" so a fan-in caller
// (the parallel driver) can demultiplex a merged stream; Drive itself
// passes "" and leaves Metadata untouched.
func runSingleSession(ctx context.Context, adapter Adapter, prompt string, opts RunOptions, taskID string, out chan<- Event) {
	defer close(out)

	sessionID := NewSessionID()
	start := time.Now()

	send := func(ev Event) {
		if taskID != "" {
			if ev.Metadata == nil {
				ev.Metadata = make(map[string]any, 1)
			}
			ev.Metadata["taskId"] = taskID
		}
		out <- ev
	}

	if ctx.Err() != nil {
		send(synthesizedDone(adapter.BackendID(), sessionID, StatusInterrupted, 0))
		return
	}

	prod, err := adapter.Run(ctx, prompt, opts)
	if err != nil {
		emitAdapterFailure(send, adapter.BackendID(), sessionID, start, fmt.Errorf("adapter run: %w", err))
		return
	}

	terminalEmitted := false
	defer func() {
		if !terminalEmitted {
			_ = prod.Close()
		}
	}()

	events := prod.Events()
	for {
		select {
		case <-ctx.Done():
			if !terminalEmitted {
				_ = prod.Close()
				send(synthesizedDone(adapter.BackendID(), sessionID, StatusInterrupted, time.Since(start).Milliseconds()))
				terminalEmitted = true
			}
			return

		case ev, ok := <-events:
			if !ok {
				if terminalEmitted {
					return
				}
				if err := prod.Err(); err != nil {
					emitAdapterFailure(send, adapter.BackendID(), sessionID, start, err)
				} else {
					emitMissingDone(send, adapter.BackendID(), sessionID, start)
				}
				terminalEmitted = true
				return
			}

			if ev.SessionID != "" {
				sessionID = ev.SessionID
			} else {
				ev.SessionID = sessionID
			}
			send(ev)

			if ev.Type == EventDone {
				terminalEmitted = true
				_ = prod.Close()
				return
			}
		}
	}
}

func emitAdapterFailure(send func(Event), backendID, sessionID string, start time.Time, cause error) {
	send(Event{
		Type:      EventError,
		BackendID: backendID,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Payload: ErrorPayload{
			Code:        CodeAdapterError,
			Message:     cause.Error(),
			Recoverable: false,
		},
	})
	send(Event{
		Type:      EventDone,
		BackendID: backendID,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Payload: DonePayload{
			Status:     StatusError,
			Usage:      zeroUsage(),
			DurationMs: time.Since(start).Milliseconds(),
		},
	})
}

func emitMissingDone(send func(Event), backendID, sessionID string, start time.Time) {
	send(Event{
		Type:      EventError,
		BackendID: backendID,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Payload: ErrorPayload{
			Code:        CodeMissingDone,
			Message:     "protocol violation: adapter completed without terminal event",
			Recoverable: false,
		},
	})
	send(Event{
		Type:      EventDone,
		BackendID: backendID,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Payload: DonePayload{
			Status:     StatusError,
			Usage:      zeroUsage(),
			DurationMs: time.Since(start).Milliseconds(),
		},
	})
}

func synthesizedDone(backendID, sessionID string, status TerminalStatus, durationMs int64) Event {
	return Event{
		Type:      EventDone,
		BackendID: backendID,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Payload: DonePayload{
			Status:     status,
			Usage:      zeroUsage(),
			DurationMs: durationMs,
		},
	}
}
