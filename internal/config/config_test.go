package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoad(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Remove(tmpfile.Name())
	}()

	content := `
source:
  url: "git@github.com:acme/standards.git"
  ref: "v2"
  subdir: "engineering"

targets:
  - claude
  - codex

sync:
  keep_orphans: true

auth:
  ssh_key_file: "/home/user/.ssh/key"

cache_dir: "/tmp/agconf-cache"
`

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := &Config{
		Source:   SourceConfig{URL: "git@github.com:acme/standards.git", Ref: "v2", Subdir: "engineering"},
		Targets:  []string{"claude", "codex"},
		Sync:     SyncConfig{KeepOrphans: true},
		Auth:     AuthConfig{SSHKeyFile: "/home/user/.ssh/key"},
		CacheDir: "/tmp/agconf-cache",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("AGCONF_TEST_SOURCE", "/srv/standards")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("source:\n  path: ${AGCONF_TEST_SOURCE}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Source.Path != "/srv/standards" {
		t.Errorf("source.path = %q", cfg.Source.Path)
	}
	if diff := cmp.Diff([]string{"claude"}, cfg.Targets); diff != "" {
		t.Errorf("default targets mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil || !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("expected read error, got %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("source: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("expected parse error, got %v", err)
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("targets: [claude]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(invalid); err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid git source",
			cfg: Config{
				Source:  SourceConfig{URL: "git@github.com:acme/standards.git", Ref: "main"},
				Targets: []string{"claude"},
				Auth:    AuthConfig{SSHKeyFile: "/key"},
			},
			wantErr: false,
		},
		{
			name: "valid local source",
			cfg: Config{
				Source:  SourceConfig{Path: "../standards"},
				Targets: []string{"codex"},
			},
			wantErr: false,
		},
		{
			name:    "no source",
			cfg:     Config{Targets: []string{"claude"}},
			wantErr: true,
		},
		{
			name: "both url and path",
			cfg: Config{
				Source:  SourceConfig{URL: "https://github.com/acme/standards.git", Ref: "main", Path: "/srv"},
				Targets: []string{"claude"},
			},
			wantErr: true,
		},
		{
			name: "missing ref",
			cfg: Config{
				Source:  SourceConfig{URL: "https://github.com/acme/standards.git"},
				Targets: []string{"claude"},
			},
			wantErr: true,
		},
		{
			name: "subdir escapes source",
			cfg: Config{
				Source:  SourceConfig{Path: "/srv", Subdir: "../other"},
				Targets: []string{"claude"},
			},
			wantErr: true,
		},
		{
			name: "unknown target",
			cfg: Config{
				Source:  SourceConfig{Path: "/srv"},
				Targets: []string{"vim"},
			},
			wantErr: true,
		},
		{
			name:    "no targets",
			cfg:     Config{Source: SourceConfig{Path: "/srv"}},
			wantErr: true,
		},
		{
			name: "both ssh key and https token set",
			cfg: Config{
				Source:  SourceConfig{URL: "git@github.com:acme/standards.git", Ref: "main"},
				Targets: []string{"claude"},
				Auth:    AuthConfig{SSHKeyFile: "/key", HTTPSTokenFile: "/token"},
			},
			wantErr: true,
		},
		{
			name: "ssh key with https url",
			cfg: Config{
				Source:  SourceConfig{URL: "https://github.com/acme/standards.git", Ref: "main"},
				Targets: []string{"claude"},
				Auth:    AuthConfig{SSHKeyFile: "/key"},
			},
			wantErr: true,
		},
		{
			name: "https token with ssh url",
			cfg: Config{
				Source:  SourceConfig{URL: "git@github.com:acme/standards.git", Ref: "main"},
				Targets: []string{"claude"},
				Auth:    AuthConfig{HTTPSTokenFile: "/token"},
			},
			wantErr: true,
		},
		{
			name: "auth with local source",
			cfg: Config{
				Source:  SourceConfig{Path: "/srv"},
				Targets: []string{"claude"},
				Auth:    AuthConfig{SSHKeyFile: "/key"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{Source: SourceConfig{URL: "https://github.com/acme/standards.git"}}
	cfg.applyDefaults()

	if cfg.Source.Ref != "main" {
		t.Errorf("applyDefaults() did not set ref, got %q", cfg.Source.Ref)
	}
	if cfg.CacheDir == "" {
		t.Error("applyDefaults() did not set cache dir")
	}

	// Explicit values must not be overwritten
	cfg2 := Config{
		Source:   SourceConfig{URL: "https://github.com/acme/standards.git", Ref: "v1"},
		Targets:  []string{"codex"},
		CacheDir: "/cache",
	}
	cfg2.applyDefaults()

	if cfg2.Source.Ref != "v1" || cfg2.CacheDir != "/cache" || cfg2.Targets[0] != "codex" {
		t.Errorf("applyDefaults() overwrote explicit values: %+v", cfg2)
	}

	local := Config{Source: SourceConfig{Path: "/srv"}}
	local.applyDefaults()
	if local.Source.Ref != "" {
		t.Errorf("local sources have no ref, got %q", local.Source.Ref)
	}
}

func TestFromSource(t *testing.T) {
	remote, err := FromSource("https://github.com/acme/standards.git", "")
	if err != nil {
		t.Fatal(err)
	}
	if !remote.IsRemote() || remote.Source.Ref != "main" {
		t.Errorf("unexpected remote config: %+v", remote.Source)
	}

	local, err := FromSource("../standards", "ignored")
	if err != nil {
		t.Fatal(err)
	}
	if local.IsRemote() || local.Source.Path != "../standards" || local.Source.Ref != "" {
		t.Errorf("unexpected local config: %+v", local.Source)
	}
}

func TestRepoDir(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/acme/standards.git", "/cache/repos/github.com_acme_standards"},
		{"git@github.com:acme/standards.git", "/cache/repos/github.com_acme_standards"},
		{"ssh://git@example.com:2222/team/std", "/cache/repos/example.com_2222_team_std"},
	}
	for _, tt := range tests {
		cfg := Config{Source: SourceConfig{URL: tt.url}, CacheDir: "/cache"}
		if got := cfg.RepoDir(); got != tt.want {
			t.Errorf("RepoDir(%s) = %s, want %s", tt.url, got, tt.want)
		}
	}
}

func TestSourceDir(t *testing.T) {
	tests := []struct {
		name   string
		subdir string
		want   string
	}{
		{
			name:   "empty subdir returns root",
			subdir: "",
			want:   "/src",
		},
		{
			name:   "subdir set returns root/subdir",
			subdir: "standards",
			want:   "/src/standards",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Source: SourceConfig{Subdir: tt.subdir}}
			if got := cfg.SourceDir("/src"); got != tt.want {
				t.Errorf("SourceDir() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAuthMethod(t *testing.T) {
	tests := []struct {
		name string
		auth AuthConfig
		want string
	}{
		{
			name: "ssh key set",
			auth: AuthConfig{SSHKeyFile: "/key"},
			want: "ssh",
		},
		{
			name: "https token set",
			auth: AuthConfig{HTTPSTokenFile: "/token"},
			want: "https",
		},
		{
			name: "none",
			want: "none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Auth: tt.auth}
			if got := cfg.AuthMethod(); got != tt.want {
				t.Errorf("AuthMethod() = %s, want %s", got, tt.want)
			}
		})
	}
}
