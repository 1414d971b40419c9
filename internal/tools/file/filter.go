package file

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jkaninda/toolguard/internal/tools"
)

// defaultExcludedNames are skipped at any depth regardless of options.
var defaultExcludedNames = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".vscode":      true,
	".DS_Store":    true,
}

// treeFilter decides which entries the tree walk skips.
type treeFilter struct {
	includeHidden bool
	patterns      []string
}

func newTreeFilter(includeHidden bool, patterns []string) (*treeFilter, error) {
	for _, p := range patterns {
		if err := validatePattern(p); err != nil {
			return nil, err
		}
	}
	return &treeFilter{includeHidden: includeHidden, patterns: patterns}, nil
}

func validatePattern(p string) error {
	invalid := func(msg string) error {
		return tools.NewError(tools.CodeInvalidArgument, "%s", msg)
	}
	switch {
	case p == "":
		return invalid("exclude must not contain empty pattern")
	case strings.ContainsRune(p, 0):
		return invalid("exclude pattern must not contain null char")
	case !balanced(p, '[', ']'):
		return invalid("exclude pattern has unbalanced square brackets")
	case !balanced(p, '{', '}'):
		return invalid("exclude pattern has unbalanced braces")
	case !doublestar.ValidatePattern(p):
		return invalid("exclude pattern is not a valid glob: " + p)
	}
	return nil
}

func balanced(p string, open, close rune) bool {
	depth := 0
	for _, r := range p {
		switch r {
		case open:
			depth++
		case close:
			if depth == 0 {
				return false
			}
			depth--
		}
	}
	return depth == 0
}

// exclude reports whether an entry is skipped. relPath is workspace
// relative; name is the entry's base name.
func (f *treeFilter) exclude(relPath, name string) bool {
	if !f.includeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	if defaultExcludedNames[name] {
		return true
	}
	return f.matches(relPath)
}

// matches tries each pattern against the path and, for non-root paths,
// the path with a trailing slash so "dir/**" style patterns hit directories.
func (f *treeFilter) matches(relPath string) bool {
	p := strings.ReplaceAll(relPath, `\`, "/")
	if p == "." {
		p = ""
	}
	for _, pattern := range f.patterns {
		if doublestar.MatchUnvalidated(pattern, p) {
			return true
		}
		if p != "" && doublestar.MatchUnvalidated(pattern, p+"/") {
			return true
		}
	}
	return false
}
