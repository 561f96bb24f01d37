// Package orphan decides which previously synced artifacts may be deleted
// after they disappear from the canonical source.
package orphan

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/schaermu/agconf/internal/contenthash"
	"github.com/schaermu/agconf/internal/managed"
)

// Action is the outcome of a deletion decision.
type Action string

const (
	ActionDelete Action = "delete"
	ActionSkip   Action = "skip"
)

// Reasons attached to a Decision.
const (
	ReasonNotOnDisk  = "not on disk"
	ReasonNotManaged = "not managed"
	ReasonModified   = "orphaned but skipped: modified locally"
	ReasonUntracked  = "orphaned but skipped: holds files not synced by agconf"
	ReasonPrevious   = "removed from source"
	ReasonUntouched  = "removed from source, content unchanged"
	ReasonForced     = "removed from source, forced"
)

// Decision is the verdict for one artifact.
type Decision struct {
	Name   string
	Action Action
	Reason string
}

// Delete reports whether the artifact should be removed.
func (d Decision) Delete() bool {
	return d.Action == ActionDelete
}

// Options controls ResolveDeletion.
type Options struct {
	Managed managed.Options
	// Force deletes managed artifacts recorded in the previous manifest even
	// when they were edited locally.
	Force bool
}

// FindOrphans returns the names in previous that are missing from current,
// sorted.
func FindOrphans(previous, current []string) []string {
	keep := make(map[string]struct{}, len(current))
	for _, name := range current {
		keep[name] = struct{}{}
	}

	seen := make(map[string]struct{})
	var orphans []string
	for _, name := range previous {
		if _, ok := keep[name]; ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		orphans = append(orphans, name)
	}
	sort.Strings(orphans)
	return orphans
}

// ResolveDeletion decides whether an orphaned artifact can be deleted.
// content is the artifact's main file; exists is false when nothing is on
// disk under that name.
//
// Only files carrying the managed flag for opts.Managed's prefix are ever
// deleted. A managed file whose stored hash no longer matches its content is
// skipped, whether or not the previous manifest recorded it, unless
// opts.Force is set and the manifest did record it.
func ResolveDeletion(name string, wasInPrevious bool, content string, exists bool, opts Options) Decision {
	d := Decision{Name: name, Action: ActionSkip}
	switch {
	case !exists:
		d.Reason = ReasonNotOnDisk
	case !managed.IsManaged(content, opts.Managed):
		d.Reason = ReasonNotManaged
	case !managed.HasManualChanges(content, opts.Managed):
		d.Action = ActionDelete
		d.Reason = ReasonUntouched
		if wasInPrevious {
			d.Reason = ReasonPrevious
		}
	case wasInPrevious && opts.Force:
		d.Action = ActionDelete
		d.Reason = ReasonForced
	default:
		d.Reason = ReasonModified
	}
	return d
}

// ResolveDirDeletion refines a delete decision for an artifact that owns a
// whole directory, such as a skill. main is the file the decision was made
// on, relative to dir with forward slashes. files maps every other file the
// sync wrote into dir, in the same form, to its recorded hash.
//
// The directory is kept when it holds any file outside main and files, or a
// file whose content no longer matches its hash. Changed files are only
// overridden by opts.Force for artifacts recorded in the previous manifest;
// files that were never synced always keep the directory.
func ResolveDirDeletion(d Decision, wasInPrevious bool, dir, main string, files map[string]string, opts Options) (Decision, error) {
	if !d.Delete() {
		return d, nil
	}

	var untracked, modified bool
	err := filepath.WalkDir(dir, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == main {
			return nil
		}
		want, ok := files[rel]
		if !ok || !e.Type().IsRegular() {
			untracked = true
			return filepath.SkipAll
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if contenthash.Compute(string(data)) != want {
			modified = true
		}
		return nil
	})
	if err != nil {
		return d, err
	}

	switch {
	case untracked:
		d.Action = ActionSkip
		d.Reason = ReasonUntracked
	case modified && opts.Force && wasInPrevious:
		d.Reason = ReasonForced
	case modified:
		d.Action = ActionSkip
		d.Reason = ReasonModified
	}
	return d, nil
}

// ResolveFileDeletion decides whether a file that was copied verbatim and
// has since been removed from the source can be deleted. recorded is the
// hash written to the lockfile when the file was synced.
func ResolveFileDeletion(name, content string, exists bool, recorded string, opts Options) Decision {
	d := Decision{Name: name, Action: ActionSkip}
	switch {
	case !exists:
		d.Reason = ReasonNotOnDisk
	case contenthash.Compute(content) == recorded:
		d.Action = ActionDelete
		d.Reason = ReasonPrevious
	case opts.Force:
		d.Action = ActionDelete
		d.Reason = ReasonForced
	default:
		d.Reason = ReasonModified
	}
	return d
}
