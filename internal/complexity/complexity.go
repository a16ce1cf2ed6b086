// Package complexity measures cyclomatic complexity of Go sources and maps
// it onto graph symbols.
package complexity

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/fzipp/gocyclo"
	"go.uber.org/zap"

	"github.com/Benny93/archgraph/internal/graph"
)

// Function is the complexity of one Go function or method.
type Function struct {
	// File is the path relative to the analyzed root, slash separated.
	File       string `json:"file"`
	Line       int    `json:"line"`
	Package    string `json:"package"`
	Name       string `json:"name"`
	Complexity int    `json:"complexity"`
}

// Option customizes an analysis run.
type Option func(*analyzer)

// WithLogger reports files that fail to parse. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

type analyzer struct {
	root   string
	ignore *regexp.Regexp
	logger *zap.Logger
	fset   *token.FileSet
	stats  gocyclo.Stats
}

// Analyze walks root and measures every Go function in files not matched
// by ignore. Results are sorted by file, then line.
func Analyze(root string, ignore *regexp.Regexp, opts ...Option) ([]Function, error) {
	return AnalyzeFiles(root, []string{root}, ignore, opts...)
}

// AnalyzeFiles measures the given files or directories. Paths may be
// absolute or relative to root; reported files are relative to root.
// Directories are walked recursively, skipping vendor, testdata and hidden
// or underscore-prefixed directories. Files that do not parse are logged
// and skipped.
func AnalyzeFiles(root string, paths []string, ignore *regexp.Regexp, opts ...Option) ([]Function, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	a := &analyzer{root: absRoot, ignore: ignore, logger: zap.NewNop(), fset: token.NewFileSet()}
	for _, opt := range opts {
		opt(a)
	}

	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(absRoot, p)
		}
		info, err := os.Stat(p)
		if err != nil {
			// Deleted files have nothing left to measure.
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			a.file(p)
			continue
		}
		if err := a.dir(p); err != nil {
			return nil, fmt.Errorf("walking %s: %w", p, err)
		}
	}

	funcs := make([]Function, 0, len(a.stats))
	for _, s := range a.stats {
		file := s.Pos.Filename
		if rel, err := filepath.Rel(absRoot, file); err == nil {
			file = rel
		}
		funcs = append(funcs, Function{
			File:       filepath.ToSlash(file),
			Line:       s.Pos.Line,
			Package:    s.PkgName,
			Name:       s.FuncName,
			Complexity: s.Complexity,
		})
	}
	sort.Slice(funcs, func(i, j int) bool {
		if funcs[i].File != funcs[j].File {
			return funcs[i].File < funcs[j].File
		}
		return funcs[i].Line < funcs[j].Line
	})
	return funcs, nil
}

func (a *analyzer) dir(dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != dir && skipDir(entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(entry.Name(), ".go") {
			a.file(path)
		}
		return nil
	})
}

func (a *analyzer) file(path string) {
	if a.ignore != nil && a.ignore.MatchString(filepath.ToSlash(path)) {
		return
	}
	f, err := parser.ParseFile(a.fset, path, nil, 0)
	if err != nil {
		a.logger.Warn("skipping unparsable file", zap.String("file", path), zap.Error(err))
		return
	}
	a.stats = gocyclo.AnalyzeASTFile(f, a.fset, a.stats)
}

func skipDir(name string) bool {
	switch {
	case name == "vendor" || name == "testdata":
		return true
	case strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_"):
		return true
	}
	return false
}

// AssignToSymbols attaches each function's complexity to the innermost
// symbol of the same file whose line range contains the function's first
// line. Functions landing on the same symbol are summed; functions without
// a containing symbol are ignored.
func AssignToSymbols(funcs []Function, symbols []graph.Symbol) map[int64]float64 {
	byFile := make(map[string][]graph.Symbol)
	for _, s := range symbols {
		byFile[s.FilePath] = append(byFile[s.FilePath], s)
	}

	result := make(map[int64]float64)
	for _, f := range funcs {
		best, ok := innermost(byFile[f.File], f.Line)
		if !ok {
			continue
		}
		result[best.ID] += float64(f.Complexity)
	}
	return result
}

func innermost(candidates []graph.Symbol, line int) (graph.Symbol, bool) {
	var best graph.Symbol
	found := false
	for _, s := range candidates {
		end := max(s.LineEnd, s.LineStart)
		if s.LineStart <= 0 || line < s.LineStart || line > end {
			continue
		}
		if !found || narrower(s, best) {
			best = s
			found = true
		}
	}
	return best, found
}

// narrower orders by span, then the later start, then the lower id.
func narrower(a, b graph.Symbol) bool {
	spanA := max(a.LineEnd, a.LineStart) - a.LineStart
	spanB := max(b.LineEnd, b.LineStart) - b.LineStart
	if spanA != spanB {
		return spanA < spanB
	}
	if a.LineStart != b.LineStart {
		return a.LineStart > b.LineStart
	}
	return a.ID < b.ID
}

// Summary aggregates a set of measurements.
type Summary struct {
	Functions int        `json:"functions"`
	Average   float64    `json:"average"`
	Total     int        `json:"total"`
	Top       []Function `json:"top"`
}

// Summarize returns totals and the top most complex functions.
func Summarize(funcs []Function, top int) Summary {
	s := Summary{Functions: len(funcs), Top: []Function{}}
	if len(funcs) == 0 {
		return s
	}
	for _, f := range funcs {
		s.Total += f.Complexity
	}
	s.Average = float64(s.Total) / float64(len(funcs))

	ranked := append([]Function(nil), funcs...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Complexity > ranked[j].Complexity })
	if top > 0 && len(ranked) > top {
		ranked = ranked[:top]
	}
	s.Top = ranked
	return s
}
