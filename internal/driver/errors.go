package driver

// Error codes synthesized by the drivers and backends. See spec §7 for the
// full table of recoverability and terminal-inducing behavior; the backend
// packages define their own codes (NDJSON_PARSE_ERROR, OPENCODE_SERVER_EXIT,
// ...) alongside the events they synthesize.
const (
	CodeAdapterError = "ADAPTER_ERROR"
	CodeMissingDone  = "MISSING_DONE"
)

func zeroUsage() Usage { return Usage{} }
