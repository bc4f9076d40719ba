package main

import (
	"log/slog"

	"github.com/nodrama/agentbridge/internal/driver"
	"github.com/nodrama/agentbridge/internal/driver/backend/claudesdk"
	"github.com/nodrama/agentbridge/internal/driver/backend/execjson"
	"github.com/nodrama/agentbridge/internal/driver/backend/ssemanaged"
	"github.com/nodrama/agentbridge/internal/driver/backend/threadagent"
)

// buildRegistry registers every backend this binary ships with, each under
// its spec-chosen id, configured from the environment the way the teacher's
// own cmd/* binaries read AGENTCTL_*/FLOWGENTIC_* variables.
func buildRegistry(log *slog.Logger) *driver.Registry {
	reg := driver.NewRegistry()

	adapters := []driver.Adapter{
		claudesdk.NewAdapter("claudesdk", claudesdk.Deps{Log: log}),
		threadagent.NewAdapter("threadagent", threadagent.DefaultConfig(), threadagent.Deps{Log: log}),
		execjson.NewAdapter("execjson", execjson.DefaultConfig(), execjson.Deps{Log: log}),
		ssemanaged.NewAdapter("ssemanaged", ssemanaged.DefaultConfig(), ssemanaged.Deps{Log: log}),
	}

	for _, a := range adapters {
		if err := reg.Register(a); err != nil {
			log.Warn("skipping duplicate backend registration", "backend", a.BackendID(), "error", err)
		}
	}

	return reg
}
