package complexity

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Benny93/archgraph/internal/graph"
)

const sampleSource = `package sample

func Simple() int {
	return 1
}

func Branchy(n int) int {
	if n > 0 {
		return 1
	}
	for i := 0; i < n; i++ {
		if i%2 == 0 && i > 2 {
			n++
		}
	}
	return n
}
`

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "pkg/sample.go", sampleSource)
	writeFile(t, root, "vendor/dep/dep.go", "package dep\n\nfunc Dep() {}\n")

	t.Run("MeasuresFunctions", func(t *testing.T) {
		t.Parallel()
		funcs, err := Analyze(root, nil)
		require.NoError(t, err)

		var sample []Function
		for _, f := range funcs {
			if f.File == "pkg/sample.go" {
				sample = append(sample, f)
			}
		}
		require.Len(t, sample, 2)
		assert.Equal(t, "Simple", sample[0].Name)
		assert.Equal(t, 1, sample[0].Complexity)
		assert.Equal(t, 3, sample[0].Line)
		assert.Equal(t, "Branchy", sample[1].Name)
		assert.Equal(t, 5, sample[1].Complexity)
		assert.Equal(t, "sample", sample[1].Package)
	})

	t.Run("Ignore", func(t *testing.T) {
		t.Parallel()
		funcs, err := Analyze(root, regexp.MustCompile(`(^|/)vendor/`))
		require.NoError(t, err)

		for _, f := range funcs {
			assert.NotContains(t, f.File, "vendor")
		}
		assert.Len(t, funcs, 2)
	})

	t.Run("MissingFilesSkipped", func(t *testing.T) {
		t.Parallel()
		funcs, err := AnalyzeFiles(root, []string{"gone.go"}, nil)

		require.NoError(t, err)
		assert.Empty(t, funcs)
	})

	t.Run("SingleFile", func(t *testing.T) {
		t.Parallel()
		funcs, err := AnalyzeFiles(root, []string{"pkg/sample.go"}, nil)

		require.NoError(t, err)
		assert.Len(t, funcs, 2)
	})

	t.Run("HiddenDirectoriesSkipped", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, dir, "main.go", "package main\n\nfunc main() {}\n")
		writeFile(t, dir, ".archgraph/gen.go", "package gen\n\nfunc Gen() {}\n")
		writeFile(t, dir, "_scratch/s.go", "package s\n\nfunc S() {}\n")

		funcs, err := Analyze(dir, nil)

		require.NoError(t, err)
		require.Len(t, funcs, 1)
		assert.Equal(t, "main.go", funcs[0].File)
	})
}

func TestAnalyze_UnparsableFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "pkg/sample.go", sampleSource)
	writeFile(t, root, "pkg/broken.go", "package sample\n\nfunc Broken( {\n")

	t.Run("DirectoryWalk", func(t *testing.T) {
		t.Parallel()
		core, logs := observer.New(zap.WarnLevel)

		funcs, err := Analyze(root, nil, WithLogger(zap.New(core)))

		require.NoError(t, err)
		require.Len(t, funcs, 2)
		assert.Equal(t, "Simple", funcs[0].Name)
		assert.Equal(t, "Branchy", funcs[1].Name)
		entries := logs.FilterMessage("skipping unparsable file").All()
		require.Len(t, entries, 1)
		assert.Contains(t, entries[0].ContextMap()["file"], "broken.go")
	})

	t.Run("ExplicitFiles", func(t *testing.T) {
		t.Parallel()
		funcs, err := AnalyzeFiles(root, []string{"pkg/broken.go", "pkg/sample.go"}, nil)

		require.NoError(t, err)
		assert.Len(t, funcs, 2)
	})

	t.Run("OnlyBroken", func(t *testing.T) {
		t.Parallel()
		funcs, err := AnalyzeFiles(root, []string{"pkg/broken.go"}, nil)

		require.NoError(t, err)
		assert.Empty(t, funcs)
	})
}

func TestAssignToSymbols(t *testing.T) {
	t.Parallel()

	symbols := []graph.Symbol{
		{ID: 1, Name: "Server", Kind: graph.KindStruct, FilePath: "a.go", LineStart: 1, LineEnd: 100},
		{ID: 2, Name: "Serve", Kind: graph.KindMethod, FilePath: "a.go", LineStart: 10, LineEnd: 20},
		{ID: 3, Name: "Other", Kind: graph.KindFunction, FilePath: "b.go", LineStart: 10, LineEnd: 20},
		{ID: 4, Name: "one", Kind: graph.KindFunction, FilePath: "a.go", LineStart: 50},
	}

	t.Run("InnermostWins", func(t *testing.T) {
		got := AssignToSymbols([]Function{{File: "a.go", Line: 10, Complexity: 4}}, symbols)

		assert.Equal(t, map[int64]float64{2: 4}, got)
	})

	t.Run("OuterWhenNoInner", func(t *testing.T) {
		got := AssignToSymbols([]Function{{File: "a.go", Line: 30, Complexity: 2}}, symbols)

		assert.Equal(t, map[int64]float64{1: 2}, got)
	})

	t.Run("SameFileOnly", func(t *testing.T) {
		got := AssignToSymbols([]Function{{File: "c.go", Line: 10, Complexity: 2}}, symbols)

		assert.Empty(t, got)
	})

	t.Run("SingleLineSymbol", func(t *testing.T) {
		got := AssignToSymbols([]Function{{File: "a.go", Line: 50, Complexity: 3}}, symbols)

		assert.Equal(t, map[int64]float64{4: 3}, got)
	})

	t.Run("Sums", func(t *testing.T) {
		got := AssignToSymbols([]Function{
			{File: "b.go", Line: 10, Complexity: 2},
			{File: "b.go", Line: 15, Complexity: 1},
		}, symbols)

		assert.Equal(t, map[int64]float64{3: 3}, got)
	})
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	funcs := []Function{{Name: "a", Complexity: 1}, {Name: "b", Complexity: 7}, {Name: "c", Complexity: 4}}

	s := Summarize(funcs, 2)

	assert.Equal(t, 3, s.Functions)
	assert.Equal(t, 12, s.Total)
	assert.InDelta(t, 4.0, s.Average, 1e-9)
	require.Len(t, s.Top, 2)
	assert.Equal(t, "b", s.Top[0].Name)

	empty := Summarize(nil, 5)
	assert.NotNil(t, empty.Top)
	assert.Zero(t, empty.Average)
}
