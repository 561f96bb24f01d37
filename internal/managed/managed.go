// Package managed marks skill, rule and agent files as owned by agconf by
// writing bookkeeping keys into their frontmatter metadata, and detects when
// such a file has been edited since it was written.
//
// Bookkeeping keys live under the "metadata" mapping and are named after a
// configurable prefix: {prefix}_managed, {prefix}_content_hash and, for rule
// files, {prefix}_source_path. The content hash covers everything except
// those keys, so injecting them never changes the hash.
package managed

import (
	"strings"
	"unicode"

	"github.com/schaermu/agconf/internal/contenthash"
	"github.com/schaermu/agconf/internal/frontmatter"
)

// DefaultPrefix is used when Options.Prefix is empty.
const DefaultPrefix = "agconf"

const metadataKey = "metadata"

// Options selects the key prefix for one operation. Each call carries its own
// Options; there is no package-level prefix.
type Options struct {
	// Prefix is normalized to snake_case before building key names.
	Prefix string
	// SourcePath, when set, is recorded under {prefix}_source_path by
	// AddManagedMetadata. Used for rule files.
	SourcePath string
}

// Keys are the metadata key names derived from a prefix.
type Keys struct {
	Managed     string
	ContentHash string
	SourcePath  string
}

// Keys returns the metadata key names for o.
func (o Options) Keys() Keys {
	p := NormalizePrefix(o.Prefix)
	return Keys{
		Managed:     p + "_managed",
		ContentHash: p + "_content_hash",
		SourcePath:  p + "_source_path",
	}
}

func (k Keys) all() []string {
	return []string{k.Managed, k.ContentHash, k.SourcePath}
}

// NormalizePrefix converts a marker prefix such as "my-org" or "myOrg" into
// the snake_case form used for metadata keys. An empty prefix yields
// DefaultPrefix.
func NormalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return DefaultPrefix
	}

	var b strings.Builder
	var prev rune
	for _, r := range prefix {
		switch {
		case unicode.IsUpper(r):
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			r = '_'
			if prev != '_' {
				b.WriteRune(r)
			}
		}
		prev = r
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return DefaultPrefix
	}
	return out
}

// AddManagedMetadata marks content as managed and records its content hash.
// A file without frontmatter gains a header holding only the metadata
// mapping. The result depends only on the input, so calling it again on its
// own output returns the same bytes.
func AddManagedMetadata(content string, opts Options) string {
	hash := ComputeContentHash(content, opts)

	doc := frontmatter.Parse(content)
	fm := doc.Frontmatter
	if fm == nil {
		fm = frontmatter.New()
	}

	meta := fm.Fields(metadataKey)
	if meta == nil {
		meta = frontmatter.NewFields()
		fm.Set(metadataKey, frontmatter.Mapping(meta))
	}

	keys := opts.Keys()
	meta.Set(keys.Managed, "true")
	meta.Set(keys.ContentHash, hash)
	if opts.SourcePath != "" {
		meta.Set(keys.SourcePath, opts.SourcePath)
	}

	return frontmatter.Render(fm, doc.Body)
}

// StripManagedMetadata removes the bookkeeping keys for opts' prefix. The
// metadata mapping is dropped when nothing else is left in it, and a header
// left with no keys at all is dropped too, returning the bare body. Content
// without frontmatter is returned unchanged.
func StripManagedMetadata(content string, opts Options) string {
	doc := frontmatter.Parse(content)
	if doc.Frontmatter == nil {
		return content
	}

	fm := doc.Frontmatter
	if meta := fm.Fields(metadataKey); meta != nil {
		for _, k := range opts.Keys().all() {
			meta.Delete(k)
		}
		if meta.Len() == 0 {
			fm.Delete(metadataKey)
		}
	}

	return frontmatter.Render(fm, doc.Body)
}

// ComputeContentHash fingerprints content with the bookkeeping keys removed.
// For a file that never had frontmatter this is the hash of its trimmed
// body, and so is the hash of the same file after AddManagedMetadata.
func ComputeContentHash(content string, opts Options) string {
	return contenthash.Compute(strings.TrimSpace(StripManagedMetadata(content, opts)))
}

// IsManaged reports whether content carries {prefix}_managed: "true".
// Files managed under another prefix are not managed for opts.
func IsManaged(content string, opts Options) bool {
	v, ok := metadataValue(content, opts.Keys().Managed)
	return ok && strings.EqualFold(strings.TrimSpace(v), "true")
}

// StoredHash returns the recorded {prefix}_content_hash, if any.
func StoredHash(content string, opts Options) (string, bool) {
	return metadataValue(content, opts.Keys().ContentHash)
}

// SourcePath returns the recorded {prefix}_source_path, if any.
func SourcePath(content string, opts Options) (string, bool) {
	return metadataValue(content, opts.Keys().SourcePath)
}

// HasManualChanges reports whether a managed file was edited after it was
// written. Unmanaged content always reports false. A managed file that lost
// its hash cannot be proven untouched and reports true.
func HasManualChanges(content string, opts Options) bool {
	if !IsManaged(content, opts) {
		return false
	}
	stored, ok := StoredHash(content, opts)
	if !ok || stored == "" {
		return true
	}
	return stored != ComputeContentHash(content, opts)
}

func metadataValue(content, key string) (string, bool) {
	doc := frontmatter.Parse(content)
	if doc.Frontmatter == nil {
		return "", false
	}
	meta := doc.Frontmatter.Fields(metadataKey)
	if meta == nil {
		return "", false
	}
	return meta.Get(key)
}
