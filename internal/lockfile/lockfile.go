// Package lockfile persists what the last sync wrote into a downstream
// repository: the source it came from and the manifest of synced artifacts.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/schaermu/agconf/internal/fileutil"
)

// Version is the schema version written by this build.
const Version = 1

// ErrUnsupportedVersion is returned by Load for a lockfile written by a newer
// agconf.
var ErrUnsupportedVersion = errors.New("unsupported lockfile version")

// RelPath is the lockfile location relative to the repository root.
const RelPath = ".agconf/lockfile.json"

// Source types.
const (
	SourceGit   = "git"
	SourceLocal = "local"
)

// Lockfile is the persisted sync record.
type Lockfile struct {
	Version      int       `json:"version"`
	SyncedAt     time.Time `json:"synced_at"`
	Source       Source    `json:"source"`
	MarkerPrefix string    `json:"marker_prefix"`
	Targets      []string  `json:"targets"`
	Content      Content   `json:"content"`
}

// Source describes where the canonical content came from.
type Source struct {
	Type       string `json:"type"`
	Repository string `json:"repository,omitempty"`
	Ref        string `json:"ref,omitempty"`
	Commit     string `json:"commit,omitempty"`
	Path       string `json:"path,omitempty"`
}

// String renders the source as a short descriptor, e.g.
// "git:github.com/acme/standards@1a2b3c4" or "local:/srv/standards".
func (s Source) String() string {
	if s.Type == SourceLocal {
		return SourceLocal + ":" + s.Path
	}
	desc := SourceGit + ":" + s.Repository
	switch {
	case s.Commit != "":
		commit := s.Commit
		if len(commit) > 7 {
			commit = commit[:7]
		}
		desc += "@" + commit
	case s.Ref != "":
		desc += "@" + s.Ref
	}
	return desc
}

// Content is the manifest of synced artifacts.
type Content struct {
	GlobalBlockHash string   `json:"global_block_hash,omitempty"`
	Skills          []string `json:"skills"`
	Rules           []string `json:"rules"`
	Agents          []string `json:"agents"`
	// SkillFiles maps "<skill>/<path>" to the content hash of every file
	// copied verbatim alongside a SKILL.md.
	SkillFiles map[string]string `json:"skill_files,omitempty"`
}

// Path returns the lockfile path for the repository rooted at dir.
func Path(dir string) string {
	return filepath.Join(dir, RelPath)
}

// Load reads the lockfile at path. A missing file yields nil and no error.
// Comments and trailing commas are tolerated so hand-edited files still load.
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading lockfile: %w", err)
	}

	var lf Lockfile
	if err := json.Unmarshal(jsonc.ToJSON(data), &lf); err != nil {
		return nil, fmt.Errorf("parsing lockfile %s: %w", path, err)
	}
	if lf.Version > Version {
		return nil, fmt.Errorf("%w: %s has version %d, newer than supported version %d", ErrUnsupportedVersion, path, lf.Version, Version)
	}
	return &lf, nil
}

// Save writes lf to path as indented JSON. Manifest lists are sorted and
// never written as null.
func Save(path string, lf *Lockfile) error {
	out := *lf
	out.Version = Version
	out.Targets = sorted(lf.Targets)
	out.Content.Skills = sorted(lf.Content.Skills)
	out.Content.Rules = sorted(lf.Content.Rules)
	out.Content.Agents = sorted(lf.Content.Agents)

	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := fileutil.WriteAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("writing lockfile: %w", err)
	}
	return nil
}

func sorted(in []string) []string {
	out := append(make([]string, 0, len(in)), in...)
	sort.Strings(out)
	return out
}

// Manifest returns the previous manifest for kind ("skills", "rules" or
// "agents"). A nil lockfile has empty manifests.
func (lf *Lockfile) Manifest(kind string) []string {
	if lf == nil {
		return nil
	}
	switch kind {
	case "skills":
		return lf.Content.Skills
	case "rules":
		return lf.Content.Rules
	case "agents":
		return lf.Content.Agents
	}
	return nil
}

// Equivalent reports whether lf and other record the same sync, ignoring the
// time it happened. Manifest order does not matter.
func (lf *Lockfile) Equivalent(other *Lockfile) bool {
	if lf == nil || other == nil {
		return lf == other
	}
	return lf.Source == other.Source &&
		lf.MarkerPrefix == other.MarkerPrefix &&
		lf.Content.GlobalBlockHash == other.Content.GlobalBlockHash &&
		slices.Equal(sorted(lf.Targets), sorted(other.Targets)) &&
		slices.Equal(sorted(lf.Content.Skills), sorted(other.Content.Skills)) &&
		slices.Equal(sorted(lf.Content.Rules), sorted(other.Content.Rules)) &&
		slices.Equal(sorted(lf.Content.Agents), sorted(other.Content.Agents)) &&
		maps.Equal(lf.Content.SkillFiles, other.Content.SkillFiles)
}

// SkillFileKey is the SkillFiles key of file rel (slash-separated) in skill.
func SkillFileKey(skill, rel string) string {
	return skill + "/" + rel
}

// SkillFiles returns the recorded hashes of skill's verbatim files, keyed by
// their slash-separated path inside the skill directory. A nil lockfile
// records none.
func (lf *Lockfile) SkillFiles(skill string) map[string]string {
	if lf == nil {
		return nil
	}
	files := make(map[string]string)
	for key, hash := range lf.Content.SkillFiles {
		if rel, ok := strings.CutPrefix(key, skill+"/"); ok {
			files[rel] = hash
		}
	}
	return files
}
