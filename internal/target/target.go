// Package target describes where each supported agent tool expects synced
// content inside a downstream repository.
package target

import (
	"fmt"
	"path/filepath"
	"sort"
)

// Target is one agent tool's downstream layout. Empty directories mean the
// tool has no native location for that kind of artifact.
type Target struct {
	Name      string
	SkillsDir string
	RulesDir  string
	AgentsDir string
	// Pointer, when set, is a file created next to AGENTS.md that directs
	// the tool at it.
	Pointer string
}

// InlineRules reports whether rules for this target go into the rules block
// of AGENTS.md instead of separate files.
func (t Target) InlineRules() bool {
	return t.RulesDir == ""
}

var targets = map[string]Target{
	"claude": {
		Name:      "claude",
		SkillsDir: filepath.Join(".claude", "skills"),
		RulesDir:  filepath.Join(".claude", "rules"),
		AgentsDir: filepath.Join(".claude", "agents"),
		Pointer:   "CLAUDE.md",
	},
	"codex": {
		Name:      "codex",
		SkillsDir: filepath.Join(".codex", "skills"),
	},
}

// Default is the target list used when none is configured.
var Default = []string{"claude"}

// Lookup returns the target called name.
func Lookup(name string) (Target, error) {
	t, ok := targets[name]
	if !ok {
		return Target{}, fmt.Errorf("unknown target %q (supported: %v)", name, Names())
	}
	return t, nil
}

// Resolve looks up every name, preserving order and dropping duplicates.
func Resolve(names []string) ([]Target, error) {
	seen := make(map[string]bool)
	var out []Target
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		t, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Names lists the supported target names, sorted.
func Names() []string {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
