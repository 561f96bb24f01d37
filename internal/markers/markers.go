// Package markers maintains the global instructions document (AGENTS.md).
//
// The document is split into regions delimited by HTML comments:
//
//	<!-- {prefix}:global:start -->   canonical content, owned by agconf
//	<!-- {prefix}:global:end -->
//	<!-- {prefix}:rules:start -->    concatenated rules, owned by agconf
//	<!-- {prefix}:rules:end -->
//	<!-- {prefix}:repo:start -->     repository-specific content
//	<!-- {prefix}:repo:end -->
//
// Every marker and metadata line is built from the prefix given to each call.
// Regions written under one prefix are plain text to a caller using another.
package markers

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultPrefix is used when no prefix is configured.
const DefaultPrefix = "agconf"

// Kind names a marker-delimited region.
type Kind string

const (
	KindGlobal Kind = "global"
	KindRules  Kind = "rules"
	KindRepo   Kind = "repo"
)

// repoLeadIn opens every repo block written by agconf. It is removed when the
// block is read back so re-syncs do not stack copies of it.
const repoLeadIn = "<!-- Repository-specific instructions below -->"

var metadataLineRe = regexp.MustCompile(`^<!-- (DO NOT EDIT THIS SECTION[^>]*|Source: .*|Last synced: .*|Content hash: (.*)) -->$`)

// Markers builds marker strings for one prefix.
type Markers struct {
	prefix string
}

// For returns the markers for prefix.
func For(prefix string) Markers {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Markers{prefix: prefix}
}

// Prefix returns the prefix the markers are built from.
func (m Markers) Prefix() string {
	return m.prefix
}

// Start returns the opening marker for kind.
func (m Markers) Start(kind Kind) string {
	return "<!-- " + m.prefix + ":" + string(kind) + ":start -->"
}

// End returns the closing marker for kind.
func (m Markers) End(kind Kind) string {
	return "<!-- " + m.prefix + ":" + string(kind) + ":end -->"
}

func (m Markers) managedByLine() string {
	return "<!-- DO NOT EDIT THIS SECTION - Managed by " + m.prefix + " -->"
}

// Block is one region of a parsed document.
type Block struct {
	Kind Kind
	// Start and End are byte offsets of the whole region, markers included.
	Start, End int
	// Inner is the text between the markers.
	Inner string
}

// Document is the global instructions document split into regions.
type Document struct {
	Text   string
	Global *Block
	Rules  *Block
	Repo   *Block
}

// Parse locates the regions for prefix. Missing or unterminated regions are
// left nil.
func Parse(text, prefix string) Document {
	m := For(prefix)
	return Document{
		Text:   text,
		Global: findBlock(text, m, KindGlobal),
		Rules:  findBlock(text, m, KindRules),
		Repo:   findBlock(text, m, KindRepo),
	}
}

func findBlock(text string, m Markers, kind Kind) *Block {
	startMarker, endMarker := m.Start(kind), m.End(kind)
	start := strings.Index(text, startMarker)
	if start < 0 {
		return nil
	}
	innerStart := start + len(startMarker)
	rel := strings.Index(text[innerStart:], endMarker)
	if rel < 0 {
		return nil
	}
	innerEnd := innerStart + rel
	return &Block{
		Kind:  kind,
		Start: start,
		End:   innerEnd + len(endMarker),
		Inner: text[innerStart:innerEnd],
	}
}

// HasMarkers reports whether any region for the parsed prefix was found.
func (d Document) HasMarkers() bool {
	return d.Global != nil || d.Rules != nil || d.Repo != nil
}

// Outside returns the text that is not inside any region, trimmed. Chunks
// between regions are joined with a blank line.
func (d Document) Outside() string {
	var blocks []*Block
	for _, b := range []*Block{d.Global, d.Rules, d.Repo} {
		if b != nil {
			blocks = append(blocks, b)
		}
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Start < blocks[j].Start })

	var chunks []string
	pos := 0
	for _, b := range blocks {
		if b.Start > pos {
			chunks = appendTrimmed(chunks, d.Text[pos:b.Start])
		}
		if b.End > pos {
			pos = b.End
		}
	}
	chunks = appendTrimmed(chunks, d.Text[pos:])
	return strings.Join(chunks, "\n\n")
}

func appendTrimmed(chunks []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

// splitMetadata separates the leading run of metadata comment lines from the
// content of a managed region. The returned content is trimmed.
func splitMetadata(inner string) (content, hash string) {
	lines := strings.Split(strings.TrimLeft(inner, "\r\n"), "\n")
	i := 0
	for ; i < len(lines); i++ {
		m := metadataLineRe.FindStringSubmatch(strings.TrimSpace(lines[i]))
		if m == nil {
			break
		}
		if m[2] != "" {
			hash = strings.TrimSpace(m[2])
		}
	}
	return strings.TrimSpace(strings.Join(lines[i:], "\n")), hash
}

// splice replaces text[start:end] with replacement, normalizing the blank
// lines around it so regions stay separated by exactly one empty line.
func splice(text string, start, end int, replacement string) string {
	before := strings.TrimRight(text[:start], "\r\n")
	after := strings.TrimLeft(text[end:], "\r\n")

	var parts []string
	for _, p := range []string{before, replacement, after} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	out := strings.Join(parts, "\n\n")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}
