package filelist

import (
	pathpkg "path"
	"strings"

	"github.com/pkg/errors"

	"github.com/bmatcuk/doublestar/v4"
)

// selectionPattern is a single parsed exclusion pattern.
type selectionPattern struct {
	// negated indicates that the pattern re-includes matching resources.
	negated bool
	// directoryOnly indicates that the pattern only matches directories.
	directoryOnly bool
	// matchLeaf indicates that the pattern is matched against the final path
	// component rather than the whole path.
	matchLeaf bool
	// pattern is the doublestar pattern.
	pattern string
}

// newSelectionPattern parses an exclusion pattern.
func newSelectionPattern(pattern string) (*selectionPattern, error) {
	// If the pattern is empty, it's invalid.
	if pattern == "" {
		return nil, errors.New("empty pattern")
	}

	// Check if this is a negated pattern. If so, strip off but record the
	// negation.
	negated := false
	if pattern[0] == '!' {
		negated = true
		pattern = pattern[1:]
	}

	// Check if this is a directory-only pattern.
	directoryOnly := false
	if strings.HasSuffix(pattern, "/") {
		directoryOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	// Patterns are relative to the project root.
	pattern = strings.TrimPrefix(pattern, "/")
	if pattern == "" {
		return nil, errors.New("pattern matches project root")
	}

	// Verify pattern syntax.
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.Errorf("invalid pattern: %q", pattern)
	}

	// Success.
	return &selectionPattern{
		negated:       negated,
		directoryOnly: directoryOnly,
		matchLeaf:     !strings.Contains(pattern, "/"),
		pattern:       pattern,
	}, nil
}

// matches returns whether or not the pattern matches the path.
func (p *selectionPattern) matches(path string, directory bool) bool {
	// Handle directory-only patterns.
	if p.directoryOnly && !directory {
		return false
	}

	// Select the match target. Since we've already validated the pattern, we
	// know that matching can't fail.
	target := path
	if p.matchLeaf {
		target = pathpkg.Base(path)
	}
	match, _ := doublestar.Match(p.pattern, target)
	return match
}

// ValidPattern returns whether or not a selection pattern is valid.
func ValidPattern(pattern string) bool {
	_, err := newSelectionPattern(pattern)
	return err == nil
}

// Selection determines which project resources are shared. Patterns are
// exclusions evaluated in order, with later patterns overriding earlier ones
// and negated patterns re-including resources. A nil selection shares
// everything.
type Selection struct {
	// patterns are the parsed patterns.
	patterns []*selectionPattern
}

// NewSelection creates a selection from exclusion patterns.
func NewSelection(patterns []string) (*Selection, error) {
	// Parse patterns.
	parsed := make([]*selectionPattern, len(patterns))
	for i, p := range patterns {
		pattern, err := newSelectionPattern(p)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to parse pattern %q", p)
		}
		parsed[i] = pattern
	}

	// Success.
	return &Selection{parsed}, nil
}

// Excludes returns whether or not the resource at the specified store path is
// excluded from sharing.
func (s *Selection) Excludes(path string, directory bool) bool {
	// A nil selection shares everything.
	if s == nil {
		return false
	}

	// Run through patterns, keeping track of the excluded state as we reach
	// more specific rules.
	excluded := false
	for _, p := range s.patterns {
		if p.matches(path, directory) {
			excluded = !p.negated
		}
	}

	// Done.
	return excluded
}
