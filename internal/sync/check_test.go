package sync

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestCheck_Clean(t *testing.T) {
	f := newFixture(t, canonicalTree())
	f.run(t, Options{})

	report, err := Check(f.repo)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !report.OK() {
		t.Errorf("fresh sync reported drift: %v", report.Drifts)
	}
	// global block, two skills and a companion file, two rules, one agent
	if report.Checked != 7 {
		t.Errorf("checked = %d, want 7", report.Checked)
	}
}

func TestCheck_Drift(t *testing.T) {
	f := newFixture(t, canonicalTree())
	f.run(t, Options{})

	skill := f.path(".claude/skills/a/SKILL.md")
	writeTree(t, f.repo, map[string]string{".claude/skills/a/SKILL.md": readFile(t, skill) + "edited\n"})
	if err := os.Remove(f.path(".claude/agents/reviewer.md")); err != nil {
		t.Fatal(err)
	}
	writeTree(t, f.repo, map[string]string{".claude/rules/style.md": "# Style\n"})

	report, err := Check(f.repo)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	want := []Drift{
		{Kind: KindSkill, Path: ".claude/skills/a/SKILL.md", Reason: DriftModified},
		{Kind: KindRule, Path: ".claude/rules/style.md", Reason: DriftNotManaged},
		{Kind: KindAgent, Path: ".claude/agents/reviewer.md", Reason: DriftMissing},
	}
	if diff := cmp.Diff(want, report.Drifts, cmpopts.IgnoreFields(Drift{}, "Expected", "Actual")); diff != "" {
		t.Errorf("drift mismatch (-want +got):\n%s", diff)
	}

	modified := report.Drifts[0]
	if modified.Expected == "" || modified.Actual == "" || modified.Expected == modified.Actual {
		t.Errorf("modified drift should carry both hashes: %+v", modified)
	}
	if !strings.Contains(modified.String(), "expected "+modified.Expected) {
		t.Errorf("String() = %q", modified.String())
	}
}

func TestCheck_CompanionFileDrift(t *testing.T) {
	f := newFixture(t, canonicalTree())
	f.run(t, Options{})

	writeTree(t, f.repo, map[string]string{".claude/skills/a/notes.md": "my notes\n"})

	report, err := Check(f.repo)
	if err != nil {
		t.Fatal(err)
	}
	want := []Drift{{Kind: KindSkill, Path: ".claude/skills/a/notes.md", Reason: DriftModified}}
	if diff := cmp.Diff(want, report.Drifts, cmpopts.IgnoreFields(Drift{}, "Expected", "Actual")); diff != "" {
		t.Errorf("drift mismatch (-want +got):\n%s", diff)
	}
}

func TestCheck_GlobalBlockDrift(t *testing.T) {
	f := newFixture(t, canonicalTree())
	f.run(t, Options{})

	doc := readFile(t, f.path("AGENTS.md"))
	writeTree(t, f.repo, map[string]string{"AGENTS.md": strings.Replace(doc, "Be kind.", "Be fast.", 1)})

	report, err := Check(f.repo)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Drifts) != 1 || report.Drifts[0].Path != "AGENTS.md" || report.Drifts[0].Reason != DriftModified {
		t.Errorf("expected global block drift, got %v", report.Drifts)
	}

	// Edits to the repository block are not drift.
	writeTree(t, f.repo, map[string]string{"AGENTS.md": strings.Replace(doc,
		"<!-- Repository-specific instructions below -->",
		"<!-- Repository-specific instructions below -->\n\nLocal notes.", 1)})
	report, err = Check(f.repo)
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() {
		t.Errorf("repo block edit reported as drift: %v", report.Drifts)
	}
}

func TestCheck_InlineRulesDrift(t *testing.T) {
	f := newFixture(t, canonicalTree(), "codex")
	f.run(t, Options{})

	report, err := Check(f.repo)
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() {
		t.Fatalf("fresh codex sync reported drift: %v", report.Drifts)
	}

	doc := readFile(t, f.path("AGENTS.md"))
	writeTree(t, f.repo, map[string]string{"AGENTS.md": strings.Replace(doc, "Run gofmt.", "Run anything.", 1)})
	report, err = Check(f.repo)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Drifts) != 1 || report.Drifts[0].Kind != KindRule {
		t.Errorf("expected rules block drift, got %v", report.Drifts)
	}
}

func TestCheck_NotSynced(t *testing.T) {
	_, err := Check(t.TempDir())
	if !errors.Is(err, ErrNotSynced) {
		t.Errorf("expected ErrNotSynced, got %v", err)
	}
}
