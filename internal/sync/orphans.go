package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schaermu/agconf/internal/fileutil"
	"github.com/schaermu/agconf/internal/orphan"
	"github.com/schaermu/agconf/internal/source"
	"github.com/schaermu/agconf/internal/target"
)

// artifactKind describes how one kind of flat managed artifact is laid out
// inside a target directory.
type artifactKind struct {
	kind     string
	manifest string
	dir      func(target.Target) string
	// file is the artifact's main file, relative to the kind directory.
	file func(name string) string
	// remove is what a delete removes, relative to the kind directory.
	remove func(name string) (path string, dir bool)
	// scan lists artifact names found on disk.
	scan func(root string) ([]string, error)
}

var artifactKinds = []artifactKind{
	{
		kind:     KindSkill,
		manifest: "skills",
		dir:      func(t target.Target) string { return t.SkillsDir },
		file:     func(name string) string { return filepath.Join(name, source.SkillFile) },
		remove:   func(name string) (string, bool) { return name, true },
		scan:     scanSkills,
	},
	{
		kind:     KindRule,
		manifest: "rules",
		dir:      func(t target.Target) string { return t.RulesDir },
		file:     filepath.FromSlash,
		remove:   func(name string) (string, bool) { return filepath.FromSlash(name), false },
		scan:     scanRules,
	},
	{
		kind:     KindAgent,
		manifest: "agents",
		dir:      func(t target.Target) string { return t.AgentsDir },
		file:     func(name string) string { return name + ".md" },
		remove:   func(name string) (string, bool) { return name + ".md", false },
		scan:     scanAgents,
	},
}

// planOrphans resolves artifacts that are on disk or in the previous
// manifest but no longer in the source. Besides the lockfile's manifest, the
// target directories are scanned so that managed files survive a lost or
// older lockfile and still get cleaned up.
func (p *planner) planOrphans() error {
	for _, k := range artifactKinds {
		previous := p.prev.Manifest(k.manifest)
		current := p.currentNames(k.manifest)

		if p.engine.cfg.Sync.KeepOrphans {
			if orphans := orphan.FindOrphans(previous, current); len(orphans) > 0 {
				p.engine.logger.Info("keeping orphans", "kind", k.kind, "names", orphans)
			}
			continue
		}

		for _, t := range p.targets {
			kindDir := k.dir(t)
			if kindDir == "" {
				continue
			}
			root := filepath.Join(p.engine.dir, kindDir)

			onDisk, err := k.scan(root)
			if err != nil {
				return fmt.Errorf("failed to scan %s: %w", kindDir, err)
			}

			inPrevious := make(map[string]bool, len(previous))
			for _, name := range previous {
				inPrevious[name] = true
			}
			for _, name := range orphan.FindOrphans(append(append([]string{}, previous...), onDisk...), current) {
				if err := p.resolveOrphan(k, root, name, inPrevious[name]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (p *planner) resolveOrphan(k artifactKind, root, name string, wasInPrevious bool) error {
	removePath, isDir := k.remove(name)
	dest := filepath.Join(root, removePath)
	if !strings.HasPrefix(dest, root+string(filepath.Separator)) {
		p.engine.logger.Warn("ignoring orphan outside its directory", "kind", k.kind, "name", name)
		return nil
	}

	mainFile := filepath.Join(root, k.file(name))
	content, exists, err := fileutil.ReadOptional(mainFile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", mainFile, err)
	}

	opts := orphan.Options{Managed: p.opts, Force: p.engine.opts.Force}
	decision := orphan.ResolveDeletion(name, wasInPrevious, content, exists, opts)
	if isDir {
		mainRel, err := filepath.Rel(dest, mainFile)
		if err != nil {
			return err
		}
		decision, err = orphan.ResolveDirDeletion(decision, wasInPrevious, dest, filepath.ToSlash(mainRel), p.prev.SkillFiles(name), opts)
		if err != nil {
			return fmt.Errorf("failed to inspect %s: %w", dest, err)
		}
	}

	switch {
	case decision.Delete():
		p.plan.Delete = append(p.plan.Delete, FileOp{
			Kind:     k.kind,
			Name:     name,
			DestPath: dest,
			Dir:      isDir,
			Root:     root,
		})
	case decision.Reason == orphan.ReasonModified || decision.Reason == orphan.ReasonUntracked:
		rel := p.engine.rel(dest)
		p.engine.logger.Warn("orphan kept", "kind", k.kind, "name", name, "path", rel, "reason", decision.Reason)
		p.plan.Skipped = append(p.plan.Skipped, SkippedOrphan{Path: rel, Decision: decision})
	default:
		p.engine.logger.Debug("orphan left alone", "kind", k.kind, "name", name, "reason", decision.Reason)
	}
	return nil
}

func (p *planner) currentNames(manifest string) []string {
	switch manifest {
	case "skills":
		return p.plan.Manifest.Skills
	case "rules":
		return p.plan.Manifest.Rules
	case "agents":
		return p.plan.Manifest.Agents
	}
	return nil
}

// scanSkills lists the directories below root that hold a SKILL.md.
func scanSkills(root string) ([]string, error) {
	entries, err := readDir(root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, e.Name(), source.SkillFile)); err == nil {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// scanRules lists markdown files below root as slash-separated paths.
func scanRules(root string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root && os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func scanAgents(root string) ([]string, error) {
	entries, err := readDir(root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".md"))
	}
	return names, nil
}

func readDir(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return entries, err
}
