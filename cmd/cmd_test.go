package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/archgraph/internal/graph"
	"github.com/Benny93/archgraph/internal/storage"
)

// testSnapshot has an api cycle (1, 2, 3) calling into a storage cycle
// (4, 5, 6) through 3 -> 4.
func testSnapshot() *storage.Snapshot {
	sym := func(id int64, name, file string) graph.Symbol {
		return graph.Symbol{ID: id, Name: name, QualifiedName: "svc." + name, Kind: graph.KindFunction, FilePath: file, LineStart: int(id) * 10, LineEnd: int(id)*10 + 5}
	}
	call := func(src, dst int64) graph.EdgeRow {
		return graph.EdgeRow{SourceID: src, TargetID: dst, Kind: graph.EdgeCall, Line: 1}
	}
	return &storage.Snapshot{
		Symbols: []graph.Symbol{
			sym(1, "Handle", "api/handler.go"),
			sym(2, "Routes", "api/routes.go"),
			sym(3, "Validate", "api/handler.go"),
			sym(4, "Query", "storage/db.go"),
			sym(5, "Get", "storage/cache.go"),
			sym(6, "Open", "storage/db.go"),
		},
		Edges: []graph.EdgeRow{
			call(1, 2), call(2, 3), call(3, 1),
			call(4, 5), call(5, 6), call(6, 4),
			call(3, 4),
		},
	}
}

// writeSnapshot writes the fixture snapshot to dir/name and returns its path.
func writeSnapshot(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, storage.WriteSnapshot(f, testSnapshot()))
	return path
}

func testGlobals(dir string) (*Globals, *bytes.Buffer) {
	var out bytes.Buffer
	return &Globals{Repo: dir, Out: &out}, &out
}

// importedRepo returns a repository directory with the fixture imported.
func importedRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	g, _ := testGlobals(dir)
	cmd := &ImportCmd{File: writeSnapshot(t, dir, "graph.json")}
	require.NoError(t, cmd.Run(g))
	return dir
}

func TestImportCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("ImportsSnapshot", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		g, out := testGlobals(dir)
		cmd := &ImportCmd{File: writeSnapshot(t, dir, "graph.json")}

		require.NoError(t, cmd.Run(g))
		assert.Contains(t, out.String(), "Imported")
		assert.Contains(t, out.String(), "Symbols:        6")
		assert.Contains(t, out.String(), "Edges:          7")
		assert.DirExists(t, filepath.Join(dir, ".archgraph", "db"))
	})

	t.Run("PrintsJSON", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		g, out := testGlobals(dir)
		g.JSON = true
		cmd := &ImportCmd{File: writeSnapshot(t, dir, "graph.json")}

		require.NoError(t, cmd.Run(g))
		var info storage.SnapshotInfo
		require.NoError(t, json.Unmarshal(out.Bytes(), &info))
		assert.NotEmpty(t, info.ID)
		assert.Equal(t, 6, info.Symbols)
		assert.Equal(t, filepath.Join(dir, "graph.json"), info.Source)
	})

	t.Run("MissingFile", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		g, _ := testGlobals(dir)
		cmd := &ImportCmd{File: filepath.Join(dir, "missing.json")}

		err := cmd.Run(g)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "opening snapshot")
	})

	t.Run("InvalidSnapshot", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"symbols":[{"id":1}]}`), 0o644))
		g, _ := testGlobals(dir)

		err := (&ImportCmd{File: path}).Run(g)
		require.ErrorIs(t, err, storage.ErrInvalidSnapshot)
	})

	t.Run("RepoNotDirectory", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		file := filepath.Join(dir, "file.txt")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
		g, _ := testGlobals(file)

		err := (&ImportCmd{File: "-"}).Run(g)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is not a directory")
	})
}

func TestReadSnapshotFile(t *testing.T) {
	t.Parallel()

	t.Run("Stdin", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, storage.WriteSnapshot(&buf, testSnapshot()))

		snap, source, err := readSnapshotFile("-", &buf)
		require.NoError(t, err)
		assert.Equal(t, "stdin", source)
		assert.Len(t, snap.Symbols, 6)
	})

	t.Run("InvalidStdin", func(t *testing.T) {
		t.Parallel()
		_, _, err := readSnapshotFile("-", bytes.NewBufferString("not json"))
		require.ErrorIs(t, err, storage.ErrInvalidSnapshot)
	})
}

func TestStatusCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("NoIndex", func(t *testing.T) {
		t.Parallel()
		g, _ := testGlobals(t.TempDir())
		err := (&StatusCmd{}).Run(g)
		require.ErrorIs(t, err, ErrNoIndex)
	})

	t.Run("AfterImport", func(t *testing.T) {
		t.Parallel()
		g, out := testGlobals(importedRepo(t))
		require.NoError(t, (&StatusCmd{}).Run(g))
		assert.Contains(t, out.String(), "Index status for")
		assert.Contains(t, out.String(), "Symbols:        6")
	})

	t.Run("JSON", func(t *testing.T) {
		t.Parallel()
		g, out := testGlobals(importedRepo(t))
		g.JSON = true
		require.NoError(t, (&StatusCmd{}).Run(g))

		var stats storage.Stats
		require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
		require.NotNil(t, stats.Snapshot)
		assert.Equal(t, 6, stats.Symbols)
		assert.Equal(t, 7, stats.Edges)
		assert.Zero(t, stats.Metrics)
	})
}

func TestCleanCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("NoIndex", func(t *testing.T) {
		t.Parallel()
		g, _ := testGlobals(t.TempDir())
		err := (&CleanCmd{Force: true}).Run(g)
		require.ErrorIs(t, err, ErrNoIndex)
	})

	t.Run("DeletesIndex", func(t *testing.T) {
		t.Parallel()
		dir := importedRepo(t)
		g, out := testGlobals(dir)

		require.NoError(t, (&CleanCmd{Force: true}).Run(g))
		assert.Contains(t, out.String(), "Deleted")
		assert.NoDirExists(t, filepath.Join(dir, ".archgraph", "db"))

		err := (&StatusCmd{}).Run(g)
		require.ErrorIs(t, err, ErrNoIndex)
	})
}

func TestVersionCmd_Run(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	require.NoError(t, (&VersionCmd{}).Run(&Globals{Out: &out}))
	assert.Equal(t, "archgraph "+Version+"\n", out.String())
}

func TestCLI_Execute(t *testing.T) {
	t.Parallel()

	t.Run("RunsCommand", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := writeSnapshot(t, dir, "graph.json")

		cli := NewCLI()
		var out bytes.Buffer
		cli.Out = &out
		require.NoError(t, cli.Execute([]string{"--repo", dir, "import", path}))
		assert.Contains(t, out.String(), "Imported")
		assert.Equal(t, dir, cli.Repo)
	})

	t.Run("UnknownCommand", func(t *testing.T) {
		t.Parallel()
		err := NewCLI().Execute([]string{"frobnicate"})
		require.Error(t, err)
	})

	t.Run("InvalidFlag", func(t *testing.T) {
		t.Parallel()
		err := NewCLI().Execute([]string{"metrics", "--limit", "many"})
		require.Error(t, err)
	})
}
