package managed

import (
	"errors"
	"strings"
	"testing"

	"github.com/schaermu/agconf/internal/contenthash"
	"github.com/schaermu/agconf/internal/frontmatter"
)

var defaultOpts = Options{}

// samples covers the shapes of files that get synced.
var samples = map[string]string{
	"no frontmatter":       "# Skill\n\nDo the thing.\n",
	"no frontmatter blank": "\n\n# Leading blank lines\n",
	"plain frontmatter":    "---\nname: review\ndescription: Reviews code\n---\n# Review\n",
	"other metadata": "---\nname: review\ndescription: Reviews code\nmetadata:\n  owner: platform\n---\n" +
		"Body text.\n",
	"empty metadata": "---\nname: x\nmetadata:\n---\nbody\n",
	"sequence":       "---\nname: x\ntags:\n  - a\n  - b\n---\nbody\n",
	"body with rule": "---\nname: x\n---\n\n---\n\nafter a horizontal rule\n",
}

func TestNormalizePrefix(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"", "agconf"},
		{"agconf", "agconf"},
		{"my-org", "my_org"},
		{"myOrg", "my_org"},
		{"ACME", "acme"},
		{"team.standards", "team_standards"},
		{"--", "agconf"},
	} {
		if got := NormalizePrefix(tc.in); got != tc.want {
			t.Errorf("NormalizePrefix(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAddManagedMetadata_NoFrontmatter(t *testing.T) {
	content := "# Skill\n\nDo the thing.\n"
	got := AddManagedMetadata(content, defaultOpts)

	hash := contenthash.Compute(strings.TrimSpace(content))
	want := "---\nmetadata:\n  agconf_managed: \"true\"\n  agconf_content_hash: \"" + hash + "\"\n---\n" + content
	if got != want {
		t.Errorf("AddManagedMetadata mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestAddManagedMetadata_KeepsOtherMetadata(t *testing.T) {
	got := AddManagedMetadata(samples["other metadata"], defaultOpts)

	fm := frontmatter.Parse(got).Frontmatter
	meta := fm.Fields("metadata")
	if meta == nil {
		t.Fatal("metadata mapping missing")
	}
	want := []string{"owner", "agconf_managed", "agconf_content_hash"}
	keys := meta.Keys()
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("metadata keys = %v, want %v", keys, want)
	}
	if fm.String("name") != "review" {
		t.Errorf("name lost: %q", fm.String("name"))
	}
}

func TestAddManagedMetadata_RuleSourcePath(t *testing.T) {
	opts := Options{SourcePath: "security/api.md"}
	got := AddManagedMetadata("# API rules\n", opts)

	path, ok := SourcePath(got, opts)
	if !ok || path != "security/api.md" {
		t.Errorf("SourcePath = %q, %v", path, ok)
	}
	if HasManualChanges(got, opts) {
		t.Error("fresh rule reported as modified")
	}
}

func TestHashStableUnderMetadataInjection(t *testing.T) {
	for name, content := range samples {
		t.Run(name, func(t *testing.T) {
			before := ComputeContentHash(content, defaultOpts)
			after := ComputeContentHash(AddManagedMetadata(content, defaultOpts), defaultOpts)
			if before != after {
				t.Errorf("hash changed after injection: %s -> %s", before, after)
			}
		})
	}
}

func TestNoFrontmatterFixedPoint(t *testing.T) {
	content := "Plain body without any header.\n"
	added := AddManagedMetadata(content, defaultOpts)

	if frontmatter.Parse(added).Frontmatter == nil {
		t.Fatal("expected injected frontmatter")
	}
	if got := StripManagedMetadata(added, defaultOpts); got != content {
		t.Errorf("stripped content = %q, want original %q", got, content)
	}
	if ComputeContentHash(content, defaultOpts) != ComputeContentHash(added, defaultOpts) {
		t.Error("hash of injected content diverges from original")
	}
	if HasManualChanges(added, defaultOpts) {
		t.Error("untouched file reported as modified")
	}
}

func TestIdempotence(t *testing.T) {
	for name, content := range samples {
		t.Run(name, func(t *testing.T) {
			once := AddManagedMetadata(content, defaultOpts)
			twice := AddManagedMetadata(once, defaultOpts)
			if once != twice {
				t.Errorf("second pass changed output\nonce:\n%s\ntwice:\n%s", once, twice)
			}
		})
	}
}

func TestStripManagedMetadata(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "drops empty metadata",
			in:   "---\nname: x\nmetadata:\n  agconf_managed: \"true\"\n  agconf_content_hash: \"sha256:000000000000\"\n---\nbody",
			want: "---\nname: x\n---\nbody",
		},
		{
			name: "keeps unrelated metadata",
			in:   "---\nmetadata:\n  owner: me\n  agconf_managed: \"true\"\n---\nbody",
			want: "---\nmetadata:\n  owner: me\n---\nbody",
		},
		{
			name: "keeps other prefixes",
			in:   "---\nmetadata:\n  acme_managed: \"true\"\n  agconf_managed: \"true\"\n---\nbody",
			want: "---\nmetadata:\n  acme_managed: \"true\"\n---\nbody",
		},
		{
			name: "header with only metadata collapses to body",
			in:   "---\nmetadata:\n  agconf_managed: \"true\"\n---\nbody",
			want: "body",
		},
		{
			name: "no frontmatter unchanged",
			in:   "body only",
			want: "body only",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripManagedMetadata(tc.in, defaultOpts); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPrefixIsolation(t *testing.T) {
	acme := Options{Prefix: "acme"}
	content := AddManagedMetadata(samples["plain frontmatter"], acme)

	if !IsManaged(content, acme) {
		t.Fatal("content should be managed under its own prefix")
	}
	if IsManaged(content, defaultOpts) {
		t.Error("content managed under acme must not be managed under agconf")
	}
	if HasManualChanges(content, defaultOpts) {
		t.Error("unmanaged content never reports manual changes")
	}

	// Marking under a second prefix leaves the first prefix's keys alone.
	both := AddManagedMetadata(content, defaultOpts)
	if !IsManaged(both, acme) || !IsManaged(both, defaultOpts) {
		t.Error("expected both prefixes to be managed")
	}
	if HasManualChanges(both, defaultOpts) {
		t.Error("freshly marked content reported as modified")
	}
}

func TestHasManualChanges(t *testing.T) {
	managed := AddManagedMetadata(samples["plain frontmatter"], defaultOpts)

	if HasManualChanges(managed, defaultOpts) {
		t.Error("fresh managed file reported as modified")
	}

	edited := managed + "\nLocal addition.\n"
	if !HasManualChanges(edited, defaultOpts) {
		t.Error("body edit not detected")
	}

	renamed := strings.Replace(managed, "name: review", "name: renamed", 1)
	if !HasManualChanges(renamed, defaultOpts) {
		t.Error("frontmatter edit not detected")
	}

	// Trailing whitespace is not meaningful content.
	if HasManualChanges(managed+"\n\n", defaultOpts) {
		t.Error("trailing newlines reported as modification")
	}

	if HasManualChanges(samples["plain frontmatter"], defaultOpts) {
		t.Error("unmanaged file reported as modified")
	}

	noHash := "---\nmetadata:\n  agconf_managed: \"true\"\n---\nbody\n"
	if !HasManualChanges(noHash, defaultOpts) {
		t.Error("managed file without hash should be treated as modified")
	}
}

func TestIsManaged(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		want    bool
	}{
		{"quoted true", "---\nmetadata:\n  agconf_managed: \"true\"\n---\n", true},
		{"bare true", "---\nmetadata:\n  agconf_managed: true\n---\n", true},
		{"false", "---\nmetadata:\n  agconf_managed: \"false\"\n---\n", false},
		{"top-level key", "---\nagconf_managed: \"true\"\n---\n", false},
		{"no frontmatter", "agconf_managed: true", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsManaged(tc.content, defaultOpts); got != tc.want {
				t.Errorf("IsManaged = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(KindSkill, "broken", "---\nname: broken\n---\nbody")
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
	var verr *ValidationError
	if !errors.As(errs[0], &verr) || verr.Field != "description" {
		t.Errorf("unexpected error: %v", errs[0])
	}

	if errs := Validate(KindAgent, "none", "no header"); len(errs) != 2 {
		t.Errorf("expected 2 errors for missing header, got %v", errs)
	}
	if errs := Validate(KindRule, "any", "no header"); errs != nil {
		t.Errorf("rules have no required fields, got %v", errs)
	}
	if errs := Validate(KindSkill, "ok", samples["plain frontmatter"]); errs != nil {
		t.Errorf("valid skill reported errors: %v", errs)
	}
}

func TestInspect(t *testing.T) {
	managed := AddManagedMetadata(samples["no frontmatter"], defaultOpts)

	st := Inspect(managed, defaultOpts)
	if !st.Managed || st.Modified || st.ExpectedHash != st.ActualHash {
		t.Errorf("unexpected status for fresh file: %+v", st)
	}

	st = Inspect(managed+"edit\n", defaultOpts)
	if !st.Modified || st.ExpectedHash == st.ActualHash {
		t.Errorf("edit not reported: %+v", st)
	}

	if st := Inspect("plain", defaultOpts); st.Managed {
		t.Errorf("plain text reported as managed: %+v", st)
	}
}
