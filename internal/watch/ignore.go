package watch

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Default patterns to ignore (in addition to .gitignore).
var defaultIgnorePatterns = []string{
	".git/",
	".archgraph/",
	"node_modules/",
	"vendor/",
	"__pycache__/",
	".venv/",
	"dist/",
	"build/",
	"*.swp",
	"*~",
	".DS_Store",
}

// LoadMatcher builds a matcher from the default patterns plus the
// repository's root .gitignore, when present.
func LoadMatcher(root string) (gitignore.Matcher, error) {
	patterns := make([]gitignore.Pattern, 0, len(defaultIgnorePatterns))
	for _, p := range defaultIgnorePatterns {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}

	loaded, err := loadGitignore(root)
	if err != nil {
		return nil, err
	}
	patterns = append(patterns, loaded...)
	return gitignore.NewMatcher(patterns), nil
}

// loadGitignore loads .gitignore patterns from the repository root.
func loadGitignore(root string) ([]gitignore.Pattern, error) {
	content, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return patterns, nil
}

// ignored reports whether a root-relative path is excluded.
func ignored(matcher gitignore.Matcher, rel string, isDir bool) bool {
	if matcher == nil || rel == "." || rel == "" {
		return false
	}
	return matcher.Match(strings.Split(filepath.ToSlash(rel), "/"), isDir)
}
