//go:build integration

package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/agconf/internal/testutil"
)

const defaultTimeout = 5 * time.Minute

// Harness drives the agconf binary against a canonical git repository and a
// downstream repository, both living in temporary directories.
type Harness struct {
	t      *testing.T
	binary string

	// Source is the work tree of the canonical repository.
	Source string
	// Repo is the downstream repository agconf syncs into.
	Repo     string
	cacheDir string
}

// NewHarness builds the binary and creates empty source and repo directories.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	return &Harness{
		t:        t,
		binary:   testutil.BuildBinary(t),
		Source:   t.TempDir(),
		Repo:     t.TempDir(),
		cacheDir: t.TempDir(),
	}
}

// InitSource initializes the canonical repository on branch main and commits
// files to it.
func (h *Harness) InitSource(ctx context.Context, files map[string]string) {
	h.t.Helper()
	h.MustGit(ctx, "init", "-b", "main")
	h.MustGit(ctx, "config", "user.email", "test@example.com")
	h.MustGit(ctx, "config", "user.name", "Test User")
	h.MustGit(ctx, "config", "commit.gpgsign", "false")
	h.CommitSource(ctx, "Initial commit", files, nil)
}

// CommitSource writes and removes files in the canonical repository and
// commits the result.
func (h *Harness) CommitSource(ctx context.Context, message string, write map[string]string, remove []string) {
	h.t.Helper()
	for rel, content := range write {
		writeFile(h.t, filepath.Join(h.Source, rel), content)
	}
	for _, rel := range remove {
		h.MustGit(ctx, "rm", "-r", "-q", rel)
	}
	h.MustGit(ctx, "add", "-A")
	h.MustGit(ctx, "commit", "-q", "-m", message)
}

// SourceHead returns the commit checked out in the canonical repository.
func (h *Harness) SourceHead(ctx context.Context) string {
	h.t.Helper()
	out, _ := h.MustGit(ctx, "rev-parse", "HEAD")
	return strings.TrimSpace(out)
}

// WriteConfig points the downstream repository at the canonical repository.
func (h *Harness) WriteConfig(extra string) {
	h.t.Helper()
	config := fmt.Sprintf(`source:
  url: file://%s
  ref: main
cache_dir: %s
%s`, filepath.ToSlash(h.Source), h.cacheDir, extra)
	h.WriteFile(".agconf/config.yaml", config)
}

// ResetRepo replaces the downstream repository with an empty directory.
func (h *Harness) ResetRepo() {
	h.t.Helper()
	h.Repo = h.t.TempDir()
}

// MustGit runs git in the canonical repository and fails the test on error.
func (h *Harness) MustGit(ctx context.Context, args ...string) (string, string) {
	h.t.Helper()
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", h.Source}, args...)...)
	stdout, stderr, exitCode, err := run(cmd)
	if err != nil {
		h.t.Fatalf("git failed: %v", err)
	}
	if exitCode != 0 {
		h.t.Fatalf("git %v failed with exit code %d\nstdout: %s\nstderr: %s", args, exitCode, stdout, stderr)
	}
	return stdout, stderr
}

// Exec runs agconf inside the downstream repository
func (h *Harness) Exec(ctx context.Context, args ...string) (string, string, int, error) {
	h.t.Helper()
	cmd := exec.CommandContext(ctx, h.binary, append(args, "--log-format", "text")...)
	cmd.Dir = h.Repo
	cmd.Env = append(os.Environ(), "GIT_CONFIG_NOSYSTEM=1")
	return run(cmd)
}

// MustExec runs agconf and fails the test if it returns non-zero
func (h *Harness) MustExec(ctx context.Context, args ...string) (string, string) {
	h.t.Helper()
	stdout, stderr, exitCode, err := h.Exec(ctx, args...)
	if err != nil {
		h.t.Fatalf("exec failed: %v", err)
	}
	if exitCode != 0 {
		h.t.Fatalf("command failed with exit code %d\nstdout: %s\nstderr: %s\ncmd: %v",
			exitCode, stdout, stderr, args)
	}
	logOutput(h.t, "[agconf] ", stderr)
	return stdout, stderr
}

// WriteFile writes a file into the downstream repository
func (h *Harness) WriteFile(rel, content string) {
	h.t.Helper()
	writeFile(h.t, filepath.Join(h.Repo, filepath.FromSlash(rel)), content)
}

// ReadFile reads a file from the downstream repository
func (h *Harness) ReadFile(rel string) string {
	h.t.Helper()
	data, err := os.ReadFile(filepath.Join(h.Repo, filepath.FromSlash(rel)))
	if err != nil {
		h.t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

// FileExists checks if a path exists in the downstream repository
func (h *Harness) FileExists(rel string) bool {
	_, err := os.Stat(filepath.Join(h.Repo, filepath.FromSlash(rel)))
	return err == nil
}

func run(cmd *exec.Cmd) (string, string, int, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", "", 0, fmt.Errorf("exec failed: %w", err)
		}
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)

func logOutput(t *testing.T, prefix, output string) {
	t.Helper()
	_, _ = (&testWriter{t: t, prefix: prefix}).Write([]byte(output))
}
