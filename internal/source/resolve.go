package source

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/schaermu/agconf/internal/config"
	"github.com/schaermu/agconf/internal/git"
	"github.com/schaermu/agconf/internal/lockfile"
)

// Resolved is a source made available on the local filesystem.
type Resolved struct {
	// Dir is the root of the checkout or local directory.
	Dir    string
	Source lockfile.Source
}

// Resolver makes the configured source available locally.
type Resolver interface {
	Resolve(ctx context.Context) (*Resolved, error)
}

// NewResolver returns the resolver for cfg. Relative local paths are taken
// relative to repoRoot.
func NewResolver(cfg *config.Config, repoRoot string, client git.Client) Resolver {
	if cfg.IsRemote() {
		return &GitResolver{
			URL:  cfg.Source.URL,
			Ref:  cfg.Source.Ref,
			Dest: cfg.RepoDir(),
			Git:  client,
		}
	}
	path := cfg.Source.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(repoRoot, path)
	}
	return &LocalResolver{Path: path, Git: client}
}

// LocalResolver uses a directory in place. When the directory is a git work
// tree its HEAD is recorded.
type LocalResolver struct {
	Path string
	Git  git.Client
}

// Resolve implements Resolver.
func (r *LocalResolver) Resolve(ctx context.Context) (*Resolved, error) {
	abs, err := filepath.Abs(r.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source path: %w", err)
	}

	src := lockfile.Source{Type: lockfile.SourceLocal, Path: abs}
	if r.Git != nil {
		commit, err := r.Git.Head(ctx, abs)
		if err != nil {
			return nil, err
		}
		src.Commit = commit
	}
	return &Resolved{Dir: abs, Source: src}, nil
}

// GitResolver checks out a remote repository into a cache directory.
type GitResolver struct {
	URL  string
	Ref  string
	Dest string
	Git  git.Client
}

// Resolve implements Resolver.
func (r *GitResolver) Resolve(ctx context.Context) (*Resolved, error) {
	commit, err := r.Git.EnsureCheckout(ctx, r.URL, r.Ref, r.Dest)
	if err != nil {
		return nil, fmt.Errorf("failed to checkout source: %w", err)
	}
	return &Resolved{
		Dir: r.Dest,
		Source: lockfile.Source{
			Type:       lockfile.SourceGit,
			Repository: r.URL,
			Ref:        r.Ref,
			Commit:     commit,
		},
	}, nil
}
