package execjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/nodrama/agentbridge/internal/driver"
)

// capabilityTools maps each PermissionPolicy axis to the concrete tool
// names it governs, per spec §4.8's capability → tool-name translation.
var capabilityTools = map[string]string{
	"fileWrite":     "edit",
	"shellExecute":  "ShellTool",
	"networkAccess": "webfetch",
}

// toolSets is the allow/deny tool-name sets computed from a
// driver.PermissionPolicy plus any user-provided allowed/disallowed tools.
type toolSets struct {
	Allow map[string]struct{}
	Deny  map[string]struct{}
}

// buildToolSets applies §4.8's rule: allow adds to the allow-set, deny adds
// to the deny-set, deny overrides allow (the intersection is removed from
// allow), then merges in the caller's own allowed/disallowed tool lists.
func buildToolSets(policy driver.PermissionPolicy, allowedTools, disallowedTools []string) toolSets {
	sets := toolSets{Allow: map[string]struct{}{}, Deny: map[string]struct{}{}}
	normalized := policy.Normalized()

	apply := func(cap driver.Capability, tool string) {
		switch cap {
		case driver.CapAllow:
			sets.Allow[tool] = struct{}{}
		case driver.CapDeny:
			sets.Deny[tool] = struct{}{}
		}
	}

	apply(normalized.FileWrite, capabilityTools["fileWrite"])
	apply(normalized.ShellExecute, capabilityTools["shellExecute"])
	apply(normalized.NetworkAccess, capabilityTools["networkAccess"])

	for tool := range sets.Deny {
		delete(sets.Allow, tool)
	}

	for _, t := range allowedTools {
		sets.Allow[t] = struct{}{}
	}
	for _, t := range disallowedTools {
		sets.Deny[t] = struct{}{}
		delete(sets.Allow, t)
	}

	return sets
}

func (s toolSets) allowCSV() []string {
	return sortedKeys(s.Allow)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// settingsFile is a materialized temporary settings override, holding the
// path to delete on cleanup.
type settingsFile struct {
	dir  string
	path string
}

// writeSettingsFile materializes a settings override with tools.core =
// allow-set and tools.exclude = deny-set when the policy produced any
// deny entries, per spec §4.8. Returns nil, nil when there is nothing to
// override (an empty deny-set).
func writeSettingsFile(sets toolSets) (*settingsFile, error) {
	if len(sets.Deny) == 0 {
		return nil, nil
	}

	dir, err := os.MkdirTemp("", "agentbridge-settings-"+uuid.New().String())
	if err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}

	doc := map[string]any{
		"tools": map[string]any{
			"core":    sets.allowCSV(),
			"exclude": sortedKeys(sets.Deny),
		},
	}
	body, err := json.Marshal(doc)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("marshal settings: %w", err)
	}

	path := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("write settings file: %w", err)
	}

	return &settingsFile{dir: dir, path: path}, nil
}

func (f *settingsFile) cleanup() {
	if f == nil {
		return
	}
	_ = os.RemoveAll(f.dir)
}
