package markers

import (
	"strings"
	"time"

	"github.com/schaermu/agconf/internal/contenthash"
)

// MergeOptions controls MergeGlobalDocument.
type MergeOptions struct {
	// Override discards the existing document and writes a fresh one.
	Override bool
	Prefix   string
	// Now stamps the "Last synced" comment. Zero means time.Now().
	Now time.Time
}

// MergeResult is the outcome of MergeGlobalDocument.
type MergeResult struct {
	Content string
	// Merged is true when an existing document was folded into the result.
	Merged bool
	// PreservedRepoContent is true when non-empty repository content was
	// carried into the repo block.
	PreservedRepoContent bool
	// Changed is true when the global content differs from what the
	// existing document held. Metadata comments are not compared.
	Changed bool
}

// MergeGlobalDocument rebuilds the global instructions document around
// globalContent. An empty existing means there is no document yet.
//
// Repository content is never dropped: the repo block of a recognized
// document is kept, text outside any region is appended to it, and a
// document with no markers for the prefix is moved into the repo block
// wholesale. An existing rules block is carried over untouched.
func MergeGlobalDocument(existing, globalContent, source string, opts MergeOptions) MergeResult {
	m := For(opts.Prefix)
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	content := strings.TrimSpace(globalContent)
	global := buildGlobalBlock(m, content, source, now)

	doc := Parse(existing, m.Prefix())
	changed := true
	if doc.Global != nil {
		old, _ := splitMetadata(doc.Global.Inner)
		changed = old != content
	}

	if strings.TrimSpace(existing) == "" || opts.Override {
		return MergeResult{
			Content: assemble(global, "", buildRepoBlock(m, "")),
			Changed: changed,
		}
	}

	var repo, rules string
	if doc.HasMarkers() {
		if doc.Repo != nil {
			repo = repoContent(doc.Repo.Inner)
		}
		if outside := doc.Outside(); outside != "" {
			repo = joinSections(repo, outside)
		}
		if doc.Rules != nil {
			rules = existing[doc.Rules.Start:doc.Rules.End]
		}
	} else {
		repo = strings.TrimSpace(existing)
	}

	return MergeResult{
		Content:              assemble(global, rules, buildRepoBlock(m, repo)),
		Merged:               true,
		PreservedRepoContent: repo != "",
		Changed:              changed,
	}
}

// HasGlobalBlockChanges reports whether the global block was edited since it
// was written. Documents without a global block, or whose block predates the
// content hash comment, report false.
func HasGlobalBlockChanges(document, prefix string) bool {
	content, stored, ok := GlobalBlock(document, prefix)
	if !ok || stored == "" {
		return false
	}
	return contenthash.Compute(content) != stored
}

// GlobalBlock returns the content of the global block with its metadata
// comments removed, and the hash recorded in those comments.
func GlobalBlock(document, prefix string) (content, hash string, ok bool) {
	doc := Parse(document, prefix)
	if doc.Global == nil {
		return "", "", false
	}
	content, hash = splitMetadata(doc.Global.Inner)
	return content, hash, true
}

// RepoContent returns the repository-specific content of document, or "" when
// it has no repo block for prefix.
func RepoContent(document, prefix string) string {
	doc := Parse(document, prefix)
	if doc.Repo == nil {
		return ""
	}
	return repoContent(doc.Repo.Inner)
}

func repoContent(inner string) string {
	s := strings.TrimSpace(inner)
	if rest, ok := strings.CutPrefix(s, repoLeadIn); ok {
		s = strings.TrimSpace(rest)
	}
	return s
}

func buildGlobalBlock(m Markers, content, source string, now time.Time) string {
	lines := []string{
		m.Start(KindGlobal),
		m.managedByLine(),
		"<!-- Source: " + source + " -->",
		"<!-- Last synced: " + now.UTC().Format(time.RFC3339) + " -->",
		"<!-- Content hash: " + contenthash.Compute(content) + " -->",
		"",
	}
	if content != "" {
		lines = append(lines, content, "")
	}
	lines = append(lines, m.End(KindGlobal))
	return strings.Join(lines, "\n")
}

func buildRepoBlock(m Markers, content string) string {
	lines := []string{m.Start(KindRepo), repoLeadIn, ""}
	if content != "" {
		lines = append(lines, content, "")
	}
	lines = append(lines, m.End(KindRepo))
	return strings.Join(lines, "\n")
}

func assemble(blocks ...string) string {
	var parts []string
	for _, b := range blocks {
		if b != "" {
			parts = append(parts, b)
		}
	}
	return strings.Join(parts, "\n\n") + "\n"
}

func joinSections(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n\n" + b
}
