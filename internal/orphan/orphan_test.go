package orphan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/schaermu/agconf/internal/contenthash"
	"github.com/schaermu/agconf/internal/managed"
)

func TestFindOrphans(t *testing.T) {
	tests := []struct {
		name     string
		previous []string
		current  []string
		want     []string
	}{
		{"nothing removed", []string{"a", "b"}, []string{"b", "a"}, nil},
		{"one removed", []string{"a", "b"}, []string{"a"}, []string{"b"}},
		{"sorted output", []string{"z", "m", "a"}, nil, []string{"a", "m", "z"}},
		{"duplicates collapse", []string{"x", "x"}, nil, []string{"x"}},
		{"new names ignored", nil, []string{"a"}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, FindOrphans(tc.previous, tc.current)); diff != "" {
				t.Errorf("FindOrphans mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveDeletion(t *testing.T) {
	synced := managed.AddManagedMetadata("---\nname: b\ndescription: Skill b\n---\n# B\n", managed.Options{})
	edited := synced + "\nLocal tweak.\n"
	foreign := managed.AddManagedMetadata("# B\n", managed.Options{Prefix: "acme"})

	tests := []struct {
		name     string
		previous bool
		content  string
		exists   bool
		force    bool
		want     Action
		reason   string
	}{
		{"missing on disk", true, "", false, false, ActionSkip, ReasonNotOnDisk},
		{"unmanaged", true, "# B\n", true, false, ActionSkip, ReasonNotManaged},
		{"other prefix", true, foreign, true, false, ActionSkip, ReasonNotManaged},
		{"untouched in previous", true, synced, true, false, ActionDelete, ReasonPrevious},
		{"untouched not in previous", false, synced, true, false, ActionDelete, ReasonUntouched},
		{"edited in previous", true, edited, true, false, ActionSkip, ReasonModified},
		{"edited not in previous", false, edited, true, false, ActionSkip, ReasonModified},
		{"edited in previous forced", true, edited, true, true, ActionDelete, ReasonForced},
		{"edited not in previous forced", false, edited, true, true, ActionSkip, ReasonModified},
		{"unmanaged forced", true, "# B\n", true, true, ActionSkip, ReasonNotManaged},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := ResolveDeletion("b", tc.previous, tc.content, tc.exists, Options{Force: tc.force})
			if d.Action != tc.want || d.Reason != tc.reason {
				t.Errorf("got %s (%s), want %s (%s)", d.Action, d.Reason, tc.want, tc.reason)
			}
			if d.Name != "b" {
				t.Errorf("name = %q", d.Name)
			}
		})
	}
}

// An artifact outside the previous manifest whose hash no longer matches is
// never deleted, whatever the options.
func TestResolveDeletion_NeverDeletesEditedUnknownArtifacts(t *testing.T) {
	bodies := []string{"", "# x\n", "---\nname: x\n---\nbody\n", "---\nmetadata:\n  owner: me\n---\ntext"}
	for _, body := range bodies {
		content := managed.AddManagedMetadata(body, managed.Options{}) + "changed"
		for _, force := range []bool{false, true} {
			d := ResolveDeletion("x", false, content, true, Options{Force: force})
			if d.Delete() {
				t.Errorf("edited artifact %q deleted (force=%v)", body, force)
			}
		}
	}
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestResolveDirDeletion(t *testing.T) {
	const notes = "# Notes\n"
	const script = "#!/bin/sh\necho hi\n"
	recorded := map[string]string{
		"notes.md":       contenthash.Compute(notes),
		"scripts/run.sh": contenthash.Compute(script),
	}
	deleteDecision := Decision{Name: "b", Action: ActionDelete, Reason: ReasonPrevious}

	tests := []struct {
		name     string
		decision Decision
		previous bool
		force    bool
		files    map[string]string
		want     Action
		reason   string
	}{
		{
			name:     "untouched siblings",
			decision: deleteDecision,
			previous: true,
			files:    map[string]string{"notes.md": notes, "scripts/run.sh": script},
			want:     ActionDelete,
			reason:   ReasonPrevious,
		},
		{
			name:     "sibling removed locally",
			decision: deleteDecision,
			previous: true,
			files:    map[string]string{"notes.md": notes},
			want:     ActionDelete,
			reason:   ReasonPrevious,
		},
		{
			name:     "edited sibling",
			decision: deleteDecision,
			previous: true,
			files:    map[string]string{"notes.md": notes + "mine\n", "scripts/run.sh": script},
			want:     ActionSkip,
			reason:   ReasonModified,
		},
		{
			name:     "edited sibling forced",
			decision: deleteDecision,
			previous: true,
			force:    true,
			files:    map[string]string{"notes.md": notes + "mine\n"},
			want:     ActionDelete,
			reason:   ReasonForced,
		},
		{
			name:     "edited sibling forced without lockfile entry",
			decision: Decision{Name: "b", Action: ActionDelete, Reason: ReasonUntouched},
			force:    true,
			files:    map[string]string{"notes.md": notes + "mine\n"},
			want:     ActionSkip,
			reason:   ReasonModified,
		},
		{
			name:     "user added file",
			decision: deleteDecision,
			previous: true,
			files:    map[string]string{"notes.md": notes, "mine.md": "# Mine\n"},
			want:     ActionSkip,
			reason:   ReasonUntracked,
		},
		{
			name:     "user added file forced",
			decision: deleteDecision,
			previous: true,
			force:    true,
			files:    map[string]string{"nested/mine.md": "# Mine\n"},
			want:     ActionSkip,
			reason:   ReasonUntracked,
		},
		{
			name:     "skip stays skip",
			decision: Decision{Name: "b", Action: ActionSkip, Reason: ReasonModified},
			previous: true,
			files:    map[string]string{"mine.md": "# Mine\n"},
			want:     ActionSkip,
			reason:   ReasonModified,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, map[string]string{"SKILL.md": "managed"})
			writeFiles(t, dir, tc.files)

			d, err := ResolveDirDeletion(tc.decision, tc.previous, dir, "SKILL.md", recorded, Options{Force: tc.force})
			if err != nil {
				t.Fatalf("ResolveDirDeletion failed: %v", err)
			}
			if d.Action != tc.want || d.Reason != tc.reason {
				t.Errorf("got %s (%s), want %s (%s)", d.Action, d.Reason, tc.want, tc.reason)
			}
		})
	}
}

func TestResolveFileDeletion(t *testing.T) {
	const content = "# Notes\n"
	recorded := contenthash.Compute(content)

	tests := []struct {
		name    string
		content string
		exists  bool
		force   bool
		want    Action
		reason  string
	}{
		{"missing", "", false, false, ActionSkip, ReasonNotOnDisk},
		{"untouched", content, true, false, ActionDelete, ReasonPrevious},
		{"edited", content + "mine\n", true, false, ActionSkip, ReasonModified},
		{"edited forced", content + "mine\n", true, true, ActionDelete, ReasonForced},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := ResolveFileDeletion("b/notes.md", tc.content, tc.exists, recorded, Options{Force: tc.force})
			if d.Action != tc.want || d.Reason != tc.reason {
				t.Errorf("got %s (%s), want %s (%s)", d.Action, d.Reason, tc.want, tc.reason)
			}
		})
	}
}
