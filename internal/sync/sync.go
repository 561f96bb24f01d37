package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/schaermu/agconf/internal/config"
	"github.com/schaermu/agconf/internal/contenthash"
	"github.com/schaermu/agconf/internal/fileutil"
	"github.com/schaermu/agconf/internal/lockfile"
	"github.com/schaermu/agconf/internal/managed"
	"github.com/schaermu/agconf/internal/markers"
	"github.com/schaermu/agconf/internal/orphan"
	"github.com/schaermu/agconf/internal/source"
	"github.com/schaermu/agconf/internal/target"
)

// InstructionsFile is the global instructions document at the repository root.
const InstructionsFile = "AGENTS.md"

const pointerContent = "@" + InstructionsFile + "\n"

// Options tunes a sync run.
type Options struct {
	DryRun bool
	// Override rewrites AGENTS.md from scratch, dropping repository content.
	Override bool
	// Force deletes orphans recorded in the lockfile even when edited.
	Force bool
	// Now stamps the global block and the lockfile. Nil means time.Now.
	Now func() time.Time
}

// Engine orchestrates the sync process
type Engine struct {
	cfg      *config.Config
	dir      string
	resolver source.Resolver
	logger   *slog.Logger
	opts     Options
}

// NewEngine creates a sync engine for the repository rooted at dir.
func NewEngine(cfg *config.Config, dir string, resolver source.Resolver, logger *slog.Logger, opts Options) *Engine {
	return &Engine{
		cfg:      cfg,
		dir:      dir,
		resolver: resolver,
		logger:   logger,
		opts:     opts,
	}
}

// Run executes the complete sync process
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	e.logger.Info("starting sync",
		"dir", e.dir,
		"targets", e.cfg.Targets,
		"dry_run", e.opts.DryRun)

	targets, err := target.Resolve(e.cfg.Targets)
	if err != nil {
		return nil, err
	}

	resolved, err := e.resolver.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source: %w", err)
	}
	e.logger.Info("source resolved", "source", resolved.Source.String(), "dir", resolved.Dir)

	content, err := source.Load(e.cfg.SourceDir(resolved.Dir))
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical content: %w", err)
	}
	e.logger.Info("discovered canonical content",
		"instructions", content.HasInstructions,
		"skills", len(content.Skills),
		"rules", len(content.Rules),
		"agents", len(content.Agents))

	prev, err := lockfile.Load(lockfile.Path(e.dir))
	if errors.Is(err, lockfile.ErrUnsupportedVersion) {
		return nil, fmt.Errorf("refusing to overwrite lockfile: %w", err)
	}
	if err != nil {
		e.logger.Warn("failed to load previous lockfile (will treat as fresh sync)", "error", err)
		prev = nil
	}

	prefix := content.Prefix()
	if prev != nil && prev.MarkerPrefix != "" && prev.MarkerPrefix != prefix {
		e.logger.Warn("marker prefix changed, content managed under the old prefix is left alone",
			"previous", prev.MarkerPrefix,
			"current", prefix)
	}

	now := e.now()
	p := &planner{
		engine:  e,
		content: content,
		source:  resolved.Source,
		prefix:  prefix,
		opts:    managed.Options{Prefix: prefix},
		targets: targets,
		prev:    prev,
		now:     now,
		plan:    &Plan{},
	}
	plan, err := p.build()
	if err != nil {
		return nil, fmt.Errorf("failed to build sync plan: %w", err)
	}

	e.logger.Info("sync plan",
		"add", len(plan.Add),
		"update", len(plan.Update),
		"delete", len(plan.Delete),
		"skipped", len(plan.Skipped))
	for _, verr := range plan.Validation {
		e.logger.Warn("validation error", "error", verr)
	}

	report := e.report(plan, resolved.Source, prefix)

	if e.opts.DryRun {
		e.logPlanDetails(plan)
		e.logger.Info("dry-run complete, no changes applied")
		return report, nil
	}

	if err := e.applyPlan(plan); err != nil {
		return nil, fmt.Errorf("failed to apply sync plan: %w", err)
	}

	lf := &lockfile.Lockfile{
		SyncedAt:     now.UTC(),
		Source:       resolved.Source,
		MarkerPrefix: prefix,
		Targets:      e.cfg.Targets,
		Content:      plan.Manifest,
	}
	if report.Changed() || !lf.Equivalent(prev) {
		if err := lockfile.Save(lockfile.Path(e.dir), lf); err != nil {
			return nil, fmt.Errorf("failed to save lockfile: %w", err)
		}
		report.LockfileWritten = true
	}

	e.logger.Info("sync completed successfully",
		"added", len(report.Added),
		"updated", len(report.Updated),
		"deleted", len(report.Deleted))
	return report, nil
}

func (e *Engine) now() time.Time {
	if e.opts.Now != nil {
		return e.opts.Now()
	}
	return time.Now()
}

// rel returns path relative to the repository root, for logs and reports.
func (e *Engine) rel(path string) string {
	if r, err := filepath.Rel(e.dir, path); err == nil {
		return filepath.ToSlash(r)
	}
	return path
}

func (e *Engine) report(plan *Plan, src lockfile.Source, prefix string) *Report {
	r := &Report{
		Source:      src,
		Prefix:      prefix,
		DryRun:      e.opts.DryRun,
		Unchanged:   plan.Unchanged,
		Skipped:     plan.Skipped,
		Overwritten: plan.Overwritten,
		Validation:  plan.Validation,
	}
	for _, op := range plan.Add {
		r.Added = append(r.Added, e.rel(op.DestPath))
	}
	for _, op := range plan.Update {
		r.Updated = append(r.Updated, e.rel(op.DestPath))
	}
	for _, op := range plan.Delete {
		r.Deleted = append(r.Deleted, e.rel(op.DestPath))
	}
	return r
}

// applyPlan executes the sync plan
func (e *Engine) applyPlan(plan *Plan) error {
	for _, op := range plan.Add {
		e.logger.Info("adding file", "path", e.rel(op.DestPath))
		if err := writeOp(op); err != nil {
			return fmt.Errorf("failed to add file %s: %w", op.DestPath, err)
		}
	}

	for _, op := range plan.Update {
		e.logger.Info("updating file", "path", e.rel(op.DestPath))
		if err := writeOp(op); err != nil {
			return fmt.Errorf("failed to update file %s: %w", op.DestPath, err)
		}
	}

	for _, op := range plan.Delete {
		e.logger.Info("deleting orphan", "kind", op.Kind, "name", op.Name, "path", e.rel(op.DestPath))
		remove := os.Remove
		if op.Dir {
			remove = os.RemoveAll
		}
		if err := remove(op.DestPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", op.DestPath, err)
		}
		removeEmptyParents(op.DestPath, op.Root)
	}

	return nil
}

func writeOp(op FileOp) error {
	if op.SourcePath != "" {
		return fileutil.CopyFile(op.SourcePath, op.DestPath)
	}
	_, err := fileutil.WriteIfChanged(op.DestPath, op.Content)
	return err
}

// removeEmptyParents removes the directories between path and root that a
// delete left empty. root itself is kept.
func removeEmptyParents(path, root string) {
	if root == "" {
		return
	}
	for dir := filepath.Dir(path); dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}

// logPlanDetails logs detailed plan information for dry-run
func (e *Engine) logPlanDetails(plan *Plan) {
	for _, op := range plan.Add {
		e.logger.Info("[dry-run] would add", "path", e.rel(op.DestPath), "kind", op.Kind)
	}
	for _, op := range plan.Update {
		e.logger.Info("[dry-run] would update", "path", e.rel(op.DestPath), "kind", op.Kind)
	}
	for _, op := range plan.Delete {
		e.logger.Info("[dry-run] would delete", "path", e.rel(op.DestPath), "kind", op.Kind)
	}
	for _, s := range plan.Skipped {
		e.logger.Info("[dry-run] would skip orphan", "path", s.Path, "reason", s.Decision.Reason)
	}
}

// planner builds a Plan from canonical content and the repository's
// current files. It reads but never writes.
type planner struct {
	engine  *Engine
	content *source.Content
	source  lockfile.Source
	prefix  string
	opts    managed.Options
	targets []target.Target
	prev    *lockfile.Lockfile
	now     time.Time
	plan    *Plan
}

func (p *planner) build() (*Plan, error) {
	if err := p.planInstructions(); err != nil {
		return nil, err
	}
	for _, step := range []func() error{p.planSkills, p.planRules, p.planAgents} {
		if err := step(); err != nil {
			return nil, err
		}
	}
	if err := p.planOrphans(); err != nil {
		return nil, err
	}
	return p.plan, nil
}

// stage compares data with what is on disk at dest and records an add,
// update or nothing. Managed files carrying local edits are noted before
// they are replaced.
func (p *planner) stage(op FileOp, data []byte, checkEdits bool) error {
	existing, err := os.ReadFile(op.DestPath)
	switch {
	case os.IsNotExist(err):
		p.plan.Add = append(p.plan.Add, op)
		return nil
	case err != nil:
		return fmt.Errorf("failed to read %s: %w", op.DestPath, err)
	case bytes.Equal(existing, data):
		p.plan.Unchanged = append(p.plan.Unchanged, p.engine.rel(op.DestPath))
		return nil
	}

	if checkEdits && managed.HasManualChanges(string(existing), p.opts) {
		rel := p.engine.rel(op.DestPath)
		p.engine.logger.Warn("overwriting locally modified managed file", "path", rel)
		p.plan.Overwritten = append(p.plan.Overwritten, rel)
	}
	p.plan.Update = append(p.plan.Update, op)
	return nil
}

// planInstructions merges the global block and, for targets without a rules
// directory, the rules block into AGENTS.md.
func (p *planner) planInstructions() error {
	path := filepath.Join(p.engine.dir, InstructionsFile)
	existing, exists, err := fileutil.ReadOptional(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", InstructionsFile, err)
	}

	doc := existing
	if p.content.HasInstructions {
		res := markers.MergeGlobalDocument(existing, p.content.Instructions, p.source.String(), markers.MergeOptions{
			Override: p.engine.opts.Override,
			Prefix:   p.prefix,
			Now:      p.now,
		})
		// An unchanged global block keeps the existing document, so the
		// "Last synced" stamp does not churn on every run.
		if res.Changed || p.engine.opts.Override {
			doc = res.Content
			if res.Merged && res.PreservedRepoContent && !markers.Parse(existing, p.prefix).HasMarkers() {
				p.engine.logger.Info("moved existing content into the repository block", "path", InstructionsFile)
			}
		}
	}

	var inline []markers.Rule
	if p.inlineRules() {
		for _, r := range p.content.Rules {
			data, err := os.ReadFile(r.File)
			if err != nil {
				return fmt.Errorf("failed to read rule %s: %w", r.Path, err)
			}
			inline = append(inline, markers.Rule{Path: r.Path, Content: string(data)})
		}
	}
	doc = markers.UpsertRulesBlock(doc, inline, p.prefix)

	if _, hash, ok := markers.GlobalBlock(doc, p.prefix); ok {
		p.plan.Manifest.GlobalBlockHash = hash
	}

	op := FileOp{Kind: KindInstructions, Name: InstructionsFile, DestPath: path, Content: []byte(doc)}
	switch {
	case doc == existing && exists:
		p.plan.Unchanged = append(p.plan.Unchanged, InstructionsFile)
	case doc == "":
		return nil
	case !exists:
		p.plan.Add = append(p.plan.Add, op)
	default:
		p.plan.Update = append(p.plan.Update, op)
	}

	for _, t := range p.targets {
		if t.Pointer == "" {
			continue
		}
		pointer := filepath.Join(p.engine.dir, t.Pointer)
		if _, err := os.Stat(pointer); err == nil {
			continue
		}
		p.plan.Add = append(p.plan.Add, FileOp{
			Kind:     KindPointer,
			Name:     t.Pointer,
			DestPath: pointer,
			Content:  []byte(pointerContent),
		})
	}
	return nil
}

func (p *planner) inlineRules() bool {
	for _, t := range p.targets {
		if t.InlineRules() {
			return true
		}
	}
	return false
}

func (p *planner) planSkills() error {
	for _, s := range p.content.Skills {
		p.plan.Manifest.Skills = append(p.plan.Manifest.Skills, s.Name)

		raw, err := os.ReadFile(filepath.Join(s.Dir, source.SkillFile))
		if err != nil {
			return fmt.Errorf("failed to read skill %s: %w", s.Name, err)
		}
		p.plan.Validation = append(p.plan.Validation, managed.Validate(managed.KindSkill, s.Name, string(raw))...)
		skillFile := []byte(managed.AddManagedMetadata(string(raw), p.opts))

		// Companion files are copied verbatim; their hashes go to the
		// lockfile so later runs can tell whether they were edited.
		companions := make(map[string][]byte, len(s.Files))
		for _, f := range s.Files {
			if f == source.SkillFile {
				continue
			}
			data, err := os.ReadFile(filepath.Join(s.Dir, f))
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", filepath.Join(s.Dir, f), err)
			}
			companions[f] = data
			p.recordSkillFile(s.Name, filepath.ToSlash(f), data)
		}

		for _, t := range p.targets {
			if t.SkillsDir == "" {
				continue
			}
			destDir := filepath.Join(p.engine.dir, t.SkillsDir, s.Name)
			for _, f := range s.Files {
				op := FileOp{Kind: KindSkill, Name: s.Name, DestPath: filepath.Join(destDir, f)}
				if f == source.SkillFile {
					op.Content = skillFile
					if err := p.stage(op, skillFile, true); err != nil {
						return err
					}
					continue
				}

				op.SourcePath = filepath.Join(s.Dir, f)
				if err := p.stage(op, companions[f], false); err != nil {
					return err
				}
			}
			if err := p.planStaleSkillFiles(s, destDir); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *planner) recordSkillFile(skill, rel string, data []byte) {
	if p.plan.Manifest.SkillFiles == nil {
		p.plan.Manifest.SkillFiles = make(map[string]string)
	}
	p.plan.Manifest.SkillFiles[lockfile.SkillFileKey(skill, rel)] = contenthash.Compute(string(data))
}

// planStaleSkillFiles removes companion files that an earlier sync copied
// into destDir and that the skill no longer has upstream. Files edited since
// they were copied are kept and reported.
func (p *planner) planStaleSkillFiles(s source.Skill, destDir string) error {
	if p.engine.cfg.Sync.KeepOrphans {
		return nil
	}
	recorded := p.prev.SkillFiles(s.Name)
	if len(recorded) == 0 {
		return nil
	}

	current := make(map[string]bool, len(s.Files))
	for _, f := range s.Files {
		current[filepath.ToSlash(f)] = true
	}
	stale := make([]string, 0, len(recorded))
	for rel := range recorded {
		if !current[rel] {
			stale = append(stale, rel)
		}
	}
	sort.Strings(stale)

	opts := orphan.Options{Managed: p.opts, Force: p.engine.opts.Force}
	for _, rel := range stale {
		path := filepath.Join(destDir, filepath.FromSlash(rel))
		if !strings.HasPrefix(path, destDir+string(filepath.Separator)) {
			p.engine.logger.Warn("ignoring skill file outside its directory", "skill", s.Name, "file", rel)
			continue
		}
		content, exists, err := fileutil.ReadOptional(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		decision := orphan.ResolveFileDeletion(lockfile.SkillFileKey(s.Name, rel), content, exists, recorded[rel], opts)
		switch {
		case decision.Delete():
			p.plan.Delete = append(p.plan.Delete, FileOp{
				Kind:     KindSkill,
				Name:     s.Name,
				DestPath: path,
				Root:     destDir,
			})
		case decision.Reason == orphan.ReasonModified:
			relPath := p.engine.rel(path)
			p.engine.logger.Warn("orphan kept", "kind", KindSkill, "name", s.Name, "path", relPath, "reason", decision.Reason)
			p.plan.Skipped = append(p.plan.Skipped, SkippedOrphan{Path: relPath, Decision: decision})
		}
	}
	return nil
}

func (p *planner) planRules() error {
	for _, r := range p.content.Rules {
		p.plan.Manifest.Rules = append(p.plan.Manifest.Rules, r.Path)

		raw, err := os.ReadFile(r.File)
		if err != nil {
			return fmt.Errorf("failed to read rule %s: %w", r.Path, err)
		}
		p.plan.Validation = append(p.plan.Validation, managed.Validate(managed.KindRule, r.Path, string(raw))...)

		opts := p.opts
		opts.SourcePath = r.Path
		data := []byte(managed.AddManagedMetadata(string(raw), opts))

		for _, t := range p.targets {
			if t.RulesDir == "" {
				continue
			}
			op := FileOp{
				Kind:     KindRule,
				Name:     r.Path,
				DestPath: filepath.Join(p.engine.dir, t.RulesDir, filepath.FromSlash(r.Path)),
				Content:  data,
			}
			if err := p.stage(op, data, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *planner) planAgents() error {
	for _, a := range p.content.Agents {
		p.plan.Manifest.Agents = append(p.plan.Manifest.Agents, a.Name)

		raw, err := os.ReadFile(a.File)
		if err != nil {
			return fmt.Errorf("failed to read agent %s: %w", a.Name, err)
		}
		p.plan.Validation = append(p.plan.Validation, managed.Validate(managed.KindAgent, a.Name, string(raw))...)
		data := []byte(managed.AddManagedMetadata(string(raw), p.opts))

		for _, t := range p.targets {
			if t.AgentsDir == "" {
				continue
			}
			op := FileOp{
				Kind:     KindAgent,
				Name:     a.Name,
				DestPath: filepath.Join(p.engine.dir, t.AgentsDir, a.Name+".md"),
				Content:  data,
			}
			if err := p.stage(op, data, true); err != nil {
				return err
			}
		}
	}
	return nil
}
