// Package git fetches canonical sources by shelling out to the git binary.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// tokenEnv carries the HTTPS token to the credential helper.
const tokenEnv = "AGCONF_GIT_TOKEN"

// Client provides git operations for canonical sources
type Client interface {
	// EnsureCheckout clones or updates a repository to ref and returns the
	// checked out commit.
	EnsureCheckout(ctx context.Context, url, ref, destDir string) (string, error)
	// Head returns the commit checked out in dir, or "" when dir is not a
	// git work tree.
	Head(ctx context.Context, dir string) (string, error)
}

// Auth selects the credentials used for remote operations. At most one
// field is set.
type Auth struct {
	SSHKeyFile     string
	HTTPSTokenFile string
}

// ShellClient implements Client by shelling out to the git command
type ShellClient struct {
	auth Auth
}

// NewShellClient creates a new git client that uses the git command
func NewShellClient(auth Auth) *ShellClient {
	return &ShellClient{auth: auth}
}

// EnsureCheckout clones destDir on first use and fetches into it afterwards,
// then force-checks out ref. Local edits in destDir are discarded.
func (c *ShellClient) EnsureCheckout(ctx context.Context, url, ref, destDir string) (string, error) {
	_, err := os.Stat(filepath.Join(destDir, ".git"))
	cloned := err == nil

	if !cloned {
		if err := os.MkdirAll(filepath.Dir(destDir), 0755); err != nil {
			return "", fmt.Errorf("failed to create cache directory: %w", err)
		}
		if err := c.remote(ctx, url, "clone", "--no-checkout", url, destDir); err != nil {
			return "", fmt.Errorf("git clone failed: %w", err)
		}
	} else {
		if err := c.remote(ctx, url, "-C", destDir, "fetch", "--tags", "--force", "origin"); err != nil {
			return "", fmt.Errorf("git fetch failed: %w", err)
		}
	}

	// Branches, tags and commits resolve directly; a branch that only
	// exists on the remote needs the origin/ form.
	if err := run(exec.CommandContext(ctx, "git", "-C", destDir, "checkout", "-f", ref)); err != nil {
		if err := run(exec.CommandContext(ctx, "git", "-C", destDir, "checkout", "-f", "origin/"+ref)); err != nil {
			return "", fmt.Errorf("git checkout failed for ref %q (tried both direct and remote): %w", ref, err)
		}
	}

	// A local branch left from an earlier run is behind after fetch. Tags
	// and commits have no origin/ counterpart, so a failure is expected.
	if cloned {
		_ = run(exec.CommandContext(ctx, "git", "-C", destDir, "reset", "--hard", "origin/"+ref))
	}

	commit, err := c.Head(ctx, destDir)
	if err != nil {
		return "", err
	}
	if commit == "" {
		return "", fmt.Errorf("git rev-parse failed: %s is not a work tree", destDir)
	}
	return commit, nil
}

// Head returns the HEAD commit of dir.
func (c *ShellClient) Head(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "--is-inside-work-tree")
	if out, err := cmd.Output(); err != nil || strings.TrimSpace(string(out)) != "true" {
		return "", nil
	}

	out, err := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "HEAD").Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// remote runs a git command that talks to url, with credentials attached.
func (c *ShellClient) remote(ctx context.Context, url string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	if err := c.configureAuth(cmd, url); err != nil {
		return err
	}
	return run(cmd)
}

// configureAuth sets up authentication for git operations
func (c *ShellClient) configureAuth(cmd *exec.Cmd, url string) error {
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	switch {
	case c.auth.SSHKeyFile != "" && (strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")):
		// The key path is shell-quoted: GIT_SSH_COMMAND is run by a shell.
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.auth.SSHKeyFile))
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)

	case c.auth.HTTPSTokenFile != "" && strings.HasPrefix(url, "https://"):
		token, err := os.ReadFile(c.auth.HTTPSTokenFile)
		if err != nil {
			return fmt.Errorf("failed to read HTTPS token file: %w", err)
		}
		cmd.Env = append(cmd.Env, tokenEnv+"="+strings.TrimSpace(string(token)))
		cmd.Args = insertGitFlags(cmd.Args,
			"-c", `credential.helper=!f() { echo "username=x-access-token"; echo "password=$`+tokenEnv+`"; }; f`,
		)
	}
	return nil
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand (e.g. "clone", "fetch").
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// run executes cmd and folds its output into the error on failure.
func run(cmd *exec.Cmd) error {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
