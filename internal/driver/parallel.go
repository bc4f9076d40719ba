package driver

import (
	"context"
	"sync"
	"time"
)

// Task describes one session to run as part of a DriveAll fan-out. ID
// should be unique within a single DriveAll call; it is stamped onto every
// event that task produces (Event.Metadata["taskId"]) so callers can
// demultiplex the merged stream. Ctx, if set, contributes to the shared
// any-cancel token every task in the batch runs under: per spec §5,
// tripping ANY task's token cancels ALL tasks, not just that one. Leave
// Ctx nil on every task to have the batch cancel only with DriveAll's own
// ctx.
type Task struct {
	ID        string
	BackendID string
	Prompt    string
	Opts      RunOptions
	Ctx       context.Context
}

// DriveAll runs every task concurrently against reg and fans their events
// into one merged stream, per spec §4.5. Each task has an independent
// completion lifecycle: one task's adapter failure, protocol violation, or
// unknown backend id produces that task's own error+done pair and never
// affects the others. Cancellation, however, is shared: per spec §5's
// any-cancel invariant, ctx and every task's Ctx are unioned into a single
// token, and tripping any one of them cancels every task in the batch. The
// returned channel closes once every task's stream has closed. An empty
// task list yields an already-closed channel.
func DriveAll(ctx context.Context, reg *Registry, tasks []Task) <-chan Event {
	out := make(chan Event)

	if len(tasks) == 0 {
		close(out)
		return out
	}

	sharedCtx, cancelShared := unionAllContexts(ctx, tasks)

	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for _, t := range tasks {
		go func(t Task) {
			defer wg.Done()
			runTask(sharedCtx, reg, t, out)
		}(t)
	}

	go func() {
		wg.Wait()
		cancelShared()
		close(out)
	}()

	return out
}

func runTask(ctx context.Context, reg *Registry, t Task, out chan<- Event) {
	adapter, ok := reg.Lookup(t.BackendID)
	if !ok {
		sessionID := NewSessionID()
		send := func(ev Event) {
			if ev.Metadata == nil {
				ev.Metadata = make(map[string]any, 1)
			}
			ev.Metadata["taskId"] = t.ID
			out <- ev
		}
		emitAdapterFailure(send, t.BackendID, sessionID, time.Now(), &ErrUnknownBackend{BackendID: t.BackendID})
		return
	}

	runSingleSession(ctx, adapter, t.Prompt, t.Opts, t.ID, out)
}

// unionAllContexts derives the single any-cancel token a DriveAll batch
// runs under: a context that is Done as soon as ctx or any task's Ctx
// fires. One goroutine watches each source and trips the shared cancel;
// every watcher exits as soon as the shared context is done, and DriveAll
// calls the returned cancel once every task has finished, so the fan-in
// does not outlive the batch. When no task sets Ctx, ctx is returned
// directly with a no-op cancel, avoiding the extra goroutines for the
// common case.
func unionAllContexts(ctx context.Context, tasks []Task) (context.Context, context.CancelFunc) {
	sources := make([]context.Context, 0, len(tasks)+1)
	sources = append(sources, ctx)
	for _, t := range tasks {
		if t.Ctx != nil {
			sources = append(sources, t.Ctx)
		}
	}
	if len(sources) == 1 {
		return ctx, func() {}
	}

	merged, cancel := context.WithCancel(context.Background())
	for _, src := range sources {
		go func(src context.Context) {
			select {
			case <-src.Done():
				cancel()
			case <-merged.Done():
			}
		}(src)
	}
	return merged, cancel
}
