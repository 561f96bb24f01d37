// Package frontmatter reads and writes the restricted YAML-like header that
// sits between "---" lines at the top of skill, rule and agent files.
//
// Only three value shapes are understood: scalars, block or inline
// sequences of strings, and a single level of nested string mappings.
// Anything the grammar does not recognize is skipped rather than rejected,
// since the files being parsed are often hand written.
//
// Lines are split on "\n" only. A header written with CRLF line endings keeps
// a trailing "\r" on every line but the last, and those lines do not match
// the key/value pattern, so they are dropped. Existing content hashes in
// downstream repositories were computed with this behavior; changing it
// would make every CRLF file report drift.
package frontmatter

import (
	"bytes"
	"encoding/json"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	blockRe  = regexp.MustCompile(`(?s)\A---\r?\n(.*?)\r?\n---(?:\r?\n|\z)`)
	keyRe    = regexp.MustCompile(`^([A-Za-z0-9_][A-Za-z0-9_-]*):\s*([^\r\n]*)$`)
	itemRe   = regexp.MustCompile(`^\s+-\s+([^\r\n]*)$`)
	nestedRe = regexp.MustCompile(`^\s+([A-Za-z0-9_][A-Za-z0-9_-]*):\s*([^\r\n]*)$`)
	digitsRe = regexp.MustCompile(`^[0-9]+$`)
)

const delimiter = "---"

// Document is a parsed markdown file.
type Document struct {
	// Frontmatter is nil when the file has no header block.
	Frontmatter *Frontmatter
	// Body is everything after the closing delimiter, or the whole text
	// when there is no header.
	Body string
	// Raw is the header text between the delimiters, unparsed.
	Raw string
}

// Parse splits text into its header and body. It never fails: malformed
// headers yield whatever keys could be read, and text that does not start
// with a header block is returned as body.
func Parse(text string) Document {
	m := blockRe.FindStringSubmatchIndex(text)
	if m == nil {
		return Document{Body: text}
	}
	raw := text[m[2]:m[3]]
	if raw == "" {
		return Document{Body: text}
	}
	return Document{
		Frontmatter: parseHeader(raw),
		Body:        text[m[1]:],
		Raw:         raw,
	}
}

func parseHeader(raw string) *Frontmatter {
	fm := New()
	lines := strings.Split(raw, "\n")
	current := ""

	for i, line := range lines {
		if current != "" {
			cur, _ := fm.Get(current)
			if m := itemRe.FindStringSubmatch(line); m != nil && cur.Kind == KindSequence {
				cur.Items = append(cur.Items, unquote(m[1]))
				fm.Set(current, cur)
				continue
			}
			if m := nestedRe.FindStringSubmatch(line); m != nil && cur.Kind == KindMapping {
				cur.Fields.Set(m[1], unquote(m[2]))
				continue
			}
		}

		m := keyRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key, value := m[1], strings.TrimSpace(m[2])
		current = ""

		switch {
		case value == "":
			// A bare key opens a block. Only an immediately following
			// "- item" line makes it a sequence.
			if i+1 < len(lines) && itemRe.MatchString(lines[i+1]) {
				fm.Set(key, Sequence())
			} else {
				fm.Set(key, Mapping(nil))
			}
			current = key
		case strings.HasPrefix(value, "["):
			if items, ok := parseInlineArray(value); ok {
				fm.Set(key, Value{Kind: KindSequence, Items: items})
			} else {
				fm.Set(key, Scalar(value))
			}
		default:
			fm.Set(key, Scalar(unquote(value)))
		}
	}

	return fm
}

// parseInlineArray decodes a JSON array such as ["a", "b"]. Elements that are
// not strings keep their JSON spelling.
func parseInlineArray(value string) ([]string, bool) {
	dec := json.NewDecoder(strings.NewReader(value))
	dec.UseNumber()

	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}

	items := make([]string, 0, len(raw))
	for _, elem := range raw {
		switch v := elem.(type) {
		case string:
			items = append(items, v)
		case json.Number:
			items = append(items, v.String())
		case bool:
			items = append(items, strconv.FormatBool(v))
		case nil:
			items = append(items, "null")
		default:
			var buf bytes.Buffer
			enc := json.NewEncoder(&buf)
			enc.SetEscapeHTML(false)
			if err := enc.Encode(v); err != nil {
				return nil, false
			}
			items = append(items, strings.TrimSpace(buf.String()))
		}
	}
	return items, true
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// Serialize renders fm as header lines, without the surrounding delimiters
// and without a trailing newline. Null values are skipped.
func Serialize(fm *Frontmatter) string {
	var lines []string
	for _, key := range fm.keys {
		v := fm.values[key]
		switch v.Kind {
		case KindScalar:
			lines = append(lines, key+": "+formatScalar(v.Scalar))
		case KindSequence:
			lines = append(lines, key+":")
			for _, item := range v.Items {
				lines = append(lines, "  - "+formatScalar(item))
			}
		case KindMapping:
			lines = append(lines, key+":")
			if v.Fields == nil {
				continue
			}
			for _, k := range v.Fields.keys {
				lines = append(lines, "  "+k+": "+formatScalar(v.Fields.values[k]))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// Render reassembles a document. A nil or empty fm yields body unchanged, so
// text that never had a header does not gain empty delimiters.
func Render(fm *Frontmatter, body string) string {
	if fm == nil {
		return body
	}
	header := Serialize(fm)
	if header == "" {
		return body
	}
	return delimiter + "\n" + header + "\n" + delimiter + "\n" + body
}

func formatScalar(s string) string {
	if NeedsQuoting(s) {
		return `"` + s + `"`
	}
	return s
}

// NeedsQuoting reports whether s must be written in double quotes to be read
// back as the same scalar.
func NeedsQuoting(s string) bool {
	if s == "" {
		return true
	}
	if strings.ContainsAny(s, ":#@") {
		return true
	}
	if strings.EqualFold(s, "true") || strings.EqualFold(s, "false") {
		return true
	}
	return digitsRe.MatchString(s)
}
