package sync

import (
	"github.com/schaermu/agconf/internal/lockfile"
	"github.com/schaermu/agconf/internal/orphan"
)

// Artifact kinds as they appear in plans and reports.
const (
	KindInstructions = "instructions"
	KindPointer      = "pointer"
	KindSkill        = "skill"
	KindRule         = "rule"
	KindAgent        = "agent"
)

// Plan represents the sync operations to perform
type Plan struct {
	Add    []FileOp
	Update []FileOp
	Delete []FileOp
	// Unchanged lists destinations that already hold the desired content.
	Unchanged []string
	// Skipped holds orphans that were kept, keyed by destination.
	Skipped []SkippedOrphan
	// Overwritten lists managed files with local edits that the plan
	// replaces.
	Overwritten []string
	// Validation collects problems found in canonical files. They do not
	// stop the sync.
	Validation []error

	// Manifest is what the lockfile records after the plan is applied.
	Manifest lockfile.Content
}

// FileOp represents a file operation
type FileOp struct {
	Kind string
	// Name is the artifact name recorded in the manifest.
	Name     string
	DestPath string // absolute path in the downstream repository
	// SourcePath is set for files copied verbatim from the source.
	SourcePath string
	// Content is written when SourcePath is empty.
	Content []byte
	// Dir marks a delete of a whole skill directory.
	Dir bool
	// Root bounds the cleanup of directories left empty by a delete.
	Root string
}

// SkippedOrphan is an orphan the resolver refused to delete.
type SkippedOrphan struct {
	Path     string
	Decision orphan.Decision
}

// Report summarizes a sync run. Paths are relative to the repository root.
type Report struct {
	Source      lockfile.Source
	Prefix      string
	DryRun      bool
	Added       []string
	Updated     []string
	Deleted     []string
	Unchanged   []string
	Skipped     []SkippedOrphan
	Overwritten []string
	Validation  []error
	// LockfileWritten is false when the lockfile already recorded this sync.
	LockfileWritten bool
}

// Changed reports whether the run wrote or removed anything.
func (r *Report) Changed() bool {
	return len(r.Added)+len(r.Updated)+len(r.Deleted) > 0
}
