package markers

import (
	"bytes"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/schaermu/agconf/internal/contenthash"
	"github.com/schaermu/agconf/internal/frontmatter"
)

const rulesHeading = "# Project Rules"

// Rule is one rule file to inline into the rules block.
type Rule struct {
	// Path is the rule's path relative to the canonical rules directory.
	Path    string
	Content string
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// BuildRulesBlock renders rules, sorted by path, as a rules region. Each
// rule loses its frontmatter and has its headings pushed one level down so
// they nest under the block's own heading.
func BuildRulesBlock(rules []Rule, prefix string) string {
	m := For(prefix)
	sorted := append([]Rule{}, rules...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	sections := []string{rulesHeading}
	for _, r := range sorted {
		body := strings.TrimSpace(frontmatter.Parse(r.Content).Body)
		section := "<!-- Rule: " + r.Path + " -->"
		if body != "" {
			section += "\n" + DemoteHeadings(body)
		}
		sections = append(sections, section)
	}
	content := strings.Join(sections, "\n\n")

	return strings.Join([]string{
		m.Start(KindRules),
		m.managedByLine(),
		"<!-- Content hash: " + contenthash.Compute(content) + " -->",
		"",
		content,
		"",
		m.End(KindRules),
	}, "\n")
}

// UpsertRulesBlock writes the rules region into document, replacing an
// existing one. A new region goes just before the repo block, or after the
// global block when there is no repo block. With no rules, an existing
// region is removed.
func UpsertRulesBlock(document string, rules []Rule, prefix string) string {
	doc := Parse(document, prefix)

	if len(rules) == 0 {
		if doc.Rules == nil {
			return document
		}
		return splice(document, doc.Rules.Start, doc.Rules.End, "")
	}

	block := BuildRulesBlock(rules, prefix)
	switch {
	case doc.Rules != nil:
		return splice(document, doc.Rules.Start, doc.Rules.End, block)
	case doc.Repo != nil:
		return splice(document, doc.Repo.Start, doc.Repo.Start, block)
	case doc.Global != nil:
		return splice(document, doc.Global.End, doc.Global.End, block)
	default:
		return splice(document, len(document), len(document), block)
	}
}

// HasRulesBlockChanges reports whether the rules region was edited since it
// was written.
func HasRulesBlockChanges(document, prefix string) bool {
	content, stored, ok := RulesBlock(document, prefix)
	if !ok || stored == "" {
		return false
	}
	return contenthash.Compute(content) != stored
}

// RulesBlock returns the content of the rules block without its metadata
// comments, and the hash recorded in them.
func RulesBlock(document, prefix string) (content, hash string, ok bool) {
	doc := Parse(document, prefix)
	if doc.Rules == nil {
		return "", "", false
	}
	content, hash = splitMetadata(doc.Rules.Inner)
	return content, hash, true
}

// DemoteHeadings adds one "#" to every ATX heading in md. Headings inside
// code blocks are not touched, and level six headings stay at level six.
func DemoteHeadings(md string) string {
	source := []byte(md)
	root := markdown.Parser().Parse(text.NewReader(source))

	var positions []int
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if h.Level < 6 && h.Lines().Len() > 0 {
			if pos, ok := atxMarker(source, h.Lines().At(0).Start); ok {
				positions = append(positions, pos)
			}
		}
		return ast.WalkSkipChildren, nil
	})
	if len(positions) == 0 {
		return md
	}
	sort.Ints(positions)

	var out bytes.Buffer
	prev := 0
	for _, pos := range positions {
		out.Write(source[prev:pos])
		out.WriteByte('#')
		prev = pos
	}
	out.Write(source[prev:])
	return out.String()
}

// atxMarker finds the first "#" of the heading line containing offset.
// Setext headings and headings nested in other blocks have none.
func atxMarker(source []byte, offset int) (int, bool) {
	i := bytes.LastIndexByte(source[:offset], '\n') + 1
	for i < offset && source[i] == ' ' {
		i++
	}
	if i < len(source) && source[i] == '#' {
		return i, true
	}
	return 0, false
}
