package sync

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/schaermu/agconf/internal/contenthash"
	"github.com/schaermu/agconf/internal/fileutil"
	"github.com/schaermu/agconf/internal/lockfile"
	"github.com/schaermu/agconf/internal/managed"
	"github.com/schaermu/agconf/internal/markers"
	"github.com/schaermu/agconf/internal/target"
)

// ErrNotSynced is returned by Check when the repository has no lockfile.
var ErrNotSynced = errors.New("repository has not been synced (no lockfile)")

// Drift reasons.
const (
	DriftMissing    = "missing"
	DriftNotManaged = "not managed"
	DriftModified   = "modified"
)

// Drift is one managed file or block that no longer matches what was synced.
type Drift struct {
	Kind string
	// Path is relative to the repository root.
	Path     string
	Reason   string
	Expected string
	Actual   string
}

func (d Drift) String() string {
	if d.Reason == DriftModified {
		return fmt.Sprintf("%s: %s (expected %s, actual %s)", d.Path, d.Reason, d.Expected, d.Actual)
	}
	return d.Path + ": " + d.Reason
}

// CheckReport is the result of Check.
type CheckReport struct {
	Lockfile *lockfile.Lockfile
	// Checked counts the files and blocks inspected.
	Checked int
	Drifts  []Drift
}

// OK reports whether nothing drifted.
func (r *CheckReport) OK() bool {
	return len(r.Drifts) == 0
}

// Check verifies every artifact recorded in the lockfile of the repository
// at dir against the hash embedded when it was written. It never modifies
// the repository.
func Check(dir string) (*CheckReport, error) {
	lf, err := lockfile.Load(lockfile.Path(dir))
	if err != nil {
		return nil, err
	}
	if lf == nil {
		return nil, ErrNotSynced
	}

	targets, err := target.Resolve(lf.Targets)
	if err != nil {
		return nil, fmt.Errorf("lockfile targets: %w", err)
	}

	prefix := lf.MarkerPrefix
	if prefix == "" {
		prefix = managed.DefaultPrefix
	}
	c := &checker{dir: dir, prefix: prefix, opts: managed.Options{Prefix: prefix}, report: &CheckReport{Lockfile: lf}}

	if err := c.checkInstructions(lf, targets); err != nil {
		return nil, err
	}
	for _, k := range artifactKinds {
		for _, t := range targets {
			kindDir := k.dir(t)
			if kindDir == "" {
				continue
			}
			for _, name := range lf.Manifest(k.manifest) {
				if err := c.checkFile(k.kind, filepath.Join(dir, kindDir, k.file(name))); err != nil {
					return nil, err
				}
				if k.kind != KindSkill {
					continue
				}
				if err := c.checkCompanions(filepath.Join(dir, kindDir, name), lf.SkillFiles(name)); err != nil {
					return nil, err
				}
			}
		}
	}
	return c.report, nil
}

// checkCompanions compares the files copied verbatim into a skill directory
// with the hashes recorded when they were copied.
func (c *checker) checkCompanions(skillDir string, files map[string]string) error {
	rels := make([]string, 0, len(files))
	for rel := range files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	for _, rel := range rels {
		c.report.Checked++
		path := filepath.Join(skillDir, filepath.FromSlash(rel))
		content, exists, err := fileutil.ReadOptional(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		switch actual := contenthash.Compute(content); {
		case !exists:
			c.add(KindSkill, path, DriftMissing, "", "")
		case actual != files[rel]:
			c.add(KindSkill, path, DriftModified, files[rel], actual)
		}
	}
	return nil
}

type checker struct {
	dir    string
	prefix string
	opts   managed.Options
	report *CheckReport
}

func (c *checker) add(kind, path, reason, expected, actual string) {
	rel, err := filepath.Rel(c.dir, path)
	if err != nil {
		rel = path
	}
	c.report.Drifts = append(c.report.Drifts, Drift{
		Kind:     kind,
		Path:     filepath.ToSlash(rel),
		Reason:   reason,
		Expected: expected,
		Actual:   actual,
	})
}

func (c *checker) checkFile(kind, path string) error {
	c.report.Checked++
	content, exists, err := fileutil.ReadOptional(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !exists {
		c.add(kind, path, DriftMissing, "", "")
		return nil
	}

	st := managed.Inspect(content, c.opts)
	switch {
	case !st.Managed:
		c.add(kind, path, DriftNotManaged, "", "")
	case st.Modified:
		c.add(kind, path, DriftModified, st.ExpectedHash, st.ActualHash)
	}
	return nil
}

func (c *checker) checkInstructions(lf *lockfile.Lockfile, targets []target.Target) error {
	inline := false
	for _, t := range targets {
		inline = inline || t.InlineRules()
	}
	checkRules := inline && len(lf.Content.Rules) > 0
	if lf.Content.GlobalBlockHash == "" && !checkRules {
		return nil
	}

	path := filepath.Join(c.dir, InstructionsFile)
	doc, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.report.Checked++
			c.add(KindInstructions, path, DriftMissing, "", "")
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", InstructionsFile, err)
	}

	if lf.Content.GlobalBlockHash != "" {
		c.report.Checked++
		content, _, ok := markers.GlobalBlock(string(doc), c.prefix)
		switch {
		case !ok:
			c.add(KindInstructions, path, "global block "+DriftMissing, "", "")
		case contenthash.Compute(content) != lf.Content.GlobalBlockHash:
			c.add(KindInstructions, path, DriftModified, lf.Content.GlobalBlockHash, contenthash.Compute(content))
		}
	}

	if checkRules {
		c.report.Checked++
		content, stored, ok := markers.RulesBlock(string(doc), c.prefix)
		switch {
		case !ok:
			c.add(KindRule, path, "rules block "+DriftMissing, "", "")
		case stored != "" && contenthash.Compute(content) != stored:
			c.add(KindRule, path, DriftModified, stored, contenthash.Compute(content))
		}
	}
	return nil
}
