package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/schaermu/agconf/internal/target"
)

// RelPath is the config file location relative to the repository root.
const RelPath = ".agconf/config.yaml"

// Config represents a downstream repository's agconf configuration
type Config struct {
	Source   SourceConfig `yaml:"source"`
	Targets  []string     `yaml:"targets"`
	Sync     SyncConfig   `yaml:"sync"`
	Auth     AuthConfig   `yaml:"auth"`
	CacheDir string       `yaml:"cache_dir"`
}

// SourceConfig locates the canonical repository. Exactly one of URL and Path
// is set. A relative Path is resolved against the downstream repository root.
type SourceConfig struct {
	URL    string `yaml:"url"`
	Ref    string `yaml:"ref"`
	Path   string `yaml:"path"`
	Subdir string `yaml:"subdir"`
}

// SyncConfig configures sync behavior
type SyncConfig struct {
	// KeepOrphans disables deletion of artifacts removed from the source.
	KeepOrphans bool `yaml:"keep_orphans"`
	// Override rewrites AGENTS.md from scratch instead of merging.
	Override bool `yaml:"override"`
}

// AuthConfig configures Git authentication
type AuthConfig struct {
	SSHKeyFile     string `yaml:"ssh_key_file"`
	HTTPSTokenFile string `yaml:"https_token_file"`
}

// Path returns the config file path for the repository rooted at dir.
func Path(dir string) string {
	return filepath.Join(dir, RelPath)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// FromSource builds a configuration around a source given on the command
// line: a git URL or a local directory.
func FromSource(source, ref string) (*Config, error) {
	var cfg Config
	if isRemote(source) {
		cfg.Source.URL = source
		cfg.Source.Ref = ref
	} else {
		cfg.Source.Path = source
	}
	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Source.URL = os.ExpandEnv(c.Source.URL)
	c.Source.Ref = os.ExpandEnv(c.Source.Ref)
	c.Source.Path = os.ExpandEnv(c.Source.Path)
	c.Source.Subdir = os.ExpandEnv(c.Source.Subdir)
	c.Auth.SSHKeyFile = os.ExpandEnv(c.Auth.SSHKeyFile)
	c.Auth.HTTPSTokenFile = os.ExpandEnv(c.Auth.HTTPSTokenFile)
	c.CacheDir = os.ExpandEnv(c.CacheDir)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Source.URL != "" && c.Source.Ref == "" {
		c.Source.Ref = "main"
	}
	if len(c.Targets) == 0 {
		c.Targets = append([]string{}, target.Default...)
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir()
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "agconf")
	}
	return filepath.Join(os.TempDir(), "agconf-cache")
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	switch {
	case c.Source.URL == "" && c.Source.Path == "":
		return fmt.Errorf("one of source.url or source.path is required")
	case c.Source.URL != "" && c.Source.Path != "":
		return fmt.Errorf("source: only one of url or path may be set")
	}
	if c.Source.URL != "" && c.Source.Ref == "" {
		return fmt.Errorf("source.ref is required")
	}
	if c.Source.Subdir != "" && (filepath.IsAbs(c.Source.Subdir) || strings.HasPrefix(filepath.Clean(c.Source.Subdir), "..")) {
		return fmt.Errorf("source.subdir must be a relative path inside the source: %s", c.Source.Subdir)
	}

	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}
	if _, err := target.Resolve(c.Targets); err != nil {
		return fmt.Errorf("targets: %w", err)
	}

	// Validate auth: only one auth method may be configured
	if c.Auth.SSHKeyFile != "" && c.Auth.HTTPSTokenFile != "" {
		return fmt.Errorf("auth: only one of ssh_key_file or https_token_file may be set")
	}
	if (c.Auth.SSHKeyFile != "" || c.Auth.HTTPSTokenFile != "") && c.Source.URL == "" {
		return fmt.Errorf("auth is only used with source.url")
	}

	// Validate auth: when auth is configured, the URL scheme must match
	if c.Auth.SSHKeyFile != "" && !c.IsSSH() {
		return fmt.Errorf("auth.ssh_key_file is set but source.url does not use an SSH scheme (git@ or ssh://)")
	}
	if c.Auth.HTTPSTokenFile != "" && !c.IsHTTPS() {
		return fmt.Errorf("auth.https_token_file is set but source.url does not use HTTPS scheme")
	}

	return nil
}

// IsRemote reports whether the source is fetched with git.
func (c *Config) IsRemote() bool {
	return c.Source.URL != ""
}

var slugRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// RepoDir returns the path where the source repository is checked out
func (c *Config) RepoDir() string {
	slug := strings.TrimSuffix(c.Source.URL, ".git")
	for _, p := range []string{"https://", "http://", "ssh://", "git@"} {
		slug = strings.TrimPrefix(slug, p)
	}
	slug = strings.Trim(slugRe.ReplaceAllString(slug, "_"), "_")
	return filepath.Join(c.CacheDir, "repos", slug)
}

// SourceDir returns the directory holding canonical content, given the root
// of the resolved source.
func (c *Config) SourceDir(root string) string {
	if c.Source.Subdir == "" {
		return root
	}
	return filepath.Join(root, c.Source.Subdir)
}

// AuthMethod returns a description of the configured auth method
func (c *Config) AuthMethod() string {
	if c.Auth.SSHKeyFile != "" {
		return "ssh"
	}
	if c.Auth.HTTPSTokenFile != "" {
		return "https"
	}
	return "none"
}

// IsHTTPS returns true if the source URL uses HTTPS
func (c *Config) IsHTTPS() bool {
	return strings.HasPrefix(c.Source.URL, "https://")
}

// IsSSH returns true if the source URL uses SSH
func (c *Config) IsSSH() bool {
	return strings.HasPrefix(c.Source.URL, "git@") || strings.HasPrefix(c.Source.URL, "ssh://")
}

func isRemote(source string) bool {
	for _, p := range []string{"https://", "http://", "ssh://", "git@", "file://"} {
		if strings.HasPrefix(source, p) {
			return true
		}
	}
	return false
}
