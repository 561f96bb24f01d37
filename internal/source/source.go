// Package source loads canonical content: the global instructions document,
// skills, rules and agents, plus the optional agconf.yaml manifest.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/schaermu/agconf/internal/managed"
)

// ManifestFile is the optional canonical repository manifest.
const ManifestFile = "agconf.yaml"

// Manifest is the canonical repository's agconf.yaml.
type Manifest struct {
	Meta struct {
		Name string `yaml:"name"`
	} `yaml:"meta"`
	Markers struct {
		Prefix string `yaml:"prefix"`
	} `yaml:"markers"`
}

// Content is everything discovered in a canonical source directory.
type Content struct {
	Dir      string
	Manifest Manifest
	// Instructions is the global instructions document, empty when the
	// source has none.
	Instructions    string
	HasInstructions bool
	Skills          []Skill
	Rules           []Rule
	Agents          []Agent
}

// Prefix returns the marker prefix declared by the manifest, or the default.
func (c *Content) Prefix() string {
	if c.Manifest.Markers.Prefix == "" {
		return managed.DefaultPrefix
	}
	return c.Manifest.Markers.Prefix
}

// Load reads the canonical content rooted at dir.
func Load(dir string) (*Content, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", dir)
	}

	c := &Content{Dir: dir}
	if err := loadManifest(filepath.Join(dir, ManifestFile), &c.Manifest); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, InstructionsFile))
	switch {
	case err == nil:
		c.Instructions = string(data)
		c.HasInstructions = true
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read global instructions: %w", err)
	}

	if c.Skills, err = discoverSkills(dir); err != nil {
		return nil, err
	}
	if c.Rules, err = discoverRules(dir); err != nil {
		return nil, err
	}
	if c.Agents, err = discoverAgents(dir); err != nil {
		return nil, err
	}
	return c, nil
}

func loadManifest(path string, m *Manifest) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", ManifestFile, err)
	}
	if err := yaml.Unmarshal(data, m); err != nil {
		return fmt.Errorf("failed to parse %s: %w", ManifestFile, err)
	}
	return nil
}
