package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Canonical layout, relative to the source directory.
const (
	InstructionsFile = "instructions/AGENTS.md"
	SkillsDir        = "skills"
	SkillFile        = "SKILL.md"
	RulesDir         = "rules"
	AgentsDir        = "agents"
)

// Skill is a skill directory. Files holds every file in it relative to Dir,
// with SKILL.md first.
type Skill struct {
	Name  string
	Dir   string
	Files []string
}

// Rule is a markdown file under rules/. Path is relative to the rules
// directory with forward slashes.
type Rule struct {
	Path string
	File string
}

// Agent is a markdown file directly under agents/.
type Agent struct {
	Name string
	File string
}

// discoverAllFiles finds all regular files below dir. Hidden files and
// directories (names starting with ".") are skipped. A missing dir yields
// no files.
func discoverAllFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == dir && os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// discoverSkills returns every directory under skills/ that holds a SKILL.md.
func discoverSkills(root string) ([]Skill, error) {
	dir := filepath.Join(root, SkillsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read skills directory: %w", err)
	}

	var skills []Skill
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		skillDir := filepath.Join(dir, e.Name())
		if _, err := os.Stat(filepath.Join(skillDir, SkillFile)); err != nil {
			continue
		}

		paths, err := discoverAllFiles(skillDir)
		if err != nil {
			return nil, fmt.Errorf("failed to discover files of skill %s: %w", e.Name(), err)
		}
		files := []string{SkillFile}
		for _, p := range paths {
			rel, err := filepath.Rel(skillDir, p)
			if err != nil {
				return nil, err
			}
			if rel != SkillFile {
				files = append(files, rel)
			}
		}
		skills = append(skills, Skill{Name: e.Name(), Dir: skillDir, Files: files})
	}
	return skills, nil
}

// discoverRules returns every markdown file below rules/, sorted by path.
func discoverRules(root string) ([]Rule, error) {
	dir := filepath.Join(root, RulesDir)
	paths, err := discoverAllFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to discover rules: %w", err)
	}

	var rules []Rule
	for _, p := range paths {
		if filepath.Ext(p) != ".md" {
			continue
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return nil, err
		}
		rules = append(rules, Rule{Path: filepath.ToSlash(rel), File: p})
	}
	return rules, nil
}

// discoverAgents returns the markdown files directly under agents/.
func discoverAgents(root string) ([]Agent, error) {
	dir := filepath.Join(root, AgentsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read agents directory: %w", err)
	}

	var agents []Agent
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".md" {
			continue
		}
		agents = append(agents, Agent{
			Name: strings.TrimSuffix(name, ".md"),
			File: filepath.Join(dir, name),
		})
	}
	return agents, nil
}
