package managed

import (
	"fmt"
	"strings"

	"github.com/schaermu/agconf/internal/frontmatter"
)

// Kind is the type of a flat managed file.
type Kind string

const (
	KindSkill Kind = "skill"
	KindRule  Kind = "rule"
	KindAgent Kind = "agent"
)

// requiredFields lists the frontmatter keys each kind must define.
var requiredFields = map[Kind][]string{
	KindSkill: {"name", "description"},
	KindAgent: {"name", "description"},
}

// ValidationError reports a canonical file that is missing a required field.
type ValidationError struct {
	Kind  Kind
	Name  string
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q: missing required frontmatter field %q", e.Kind, e.Name, e.Field)
}

// Validate checks that content defines every field its kind requires. All
// problems are returned so the caller can report them together.
func Validate(kind Kind, name, content string) []error {
	required := requiredFields[kind]
	if len(required) == 0 {
		return nil
	}

	fm := frontmatter.Parse(content).Frontmatter
	var errs []error
	for _, field := range required {
		if fm == nil || strings.TrimSpace(fm.String(field)) == "" {
			errs = append(errs, &ValidationError{Kind: kind, Name: name, Field: field})
		}
	}
	return errs
}

// Status is the result of inspecting one file on disk.
type Status struct {
	Managed      bool
	ExpectedHash string
	ActualHash   string
	Modified     bool
}

// Inspect reads the bookkeeping state of content for the check command.
func Inspect(content string, opts Options) Status {
	if !IsManaged(content, opts) {
		return Status{}
	}
	expected, _ := StoredHash(content, opts)
	actual := ComputeContentHash(content, opts)
	return Status{
		Managed:      true,
		ExpectedHash: expected,
		ActualHash:   actual,
		Modified:     expected != actual,
	}
}
