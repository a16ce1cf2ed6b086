package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/archgraph/internal/analysis"
	"github.com/Benny93/archgraph/internal/storage"
)

// testRepo is a throwaway repository with commits at chosen times.
type testRepo struct {
	t    *testing.T
	dir  string
	repo *git.Repository
}

func initGitRepo(t *testing.T) *testRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	return &testRepo{t: t, dir: dir, repo: repo}
}

func (r *testRepo) commit(when time.Time, files map[string]string) {
	r.t.Helper()
	wt, err := r.repo.Worktree()
	require.NoError(r.t, err)
	for name, content := range files {
		path := filepath.Join(r.dir, name)
		require.NoError(r.t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(r.t, os.WriteFile(path, []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(r.t, err)
	}
	_, err = wt.Commit("change", &git.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: when},
	})
	require.NoError(r.t, err)
}

func fileStat(h storage.History, path string) (storage.FileStat, bool) {
	for _, f := range h.Files {
		if f.FilePath == path {
			return f, true
		}
	}
	return storage.FileStat{}, false
}

func TestMiner_Mine(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)
	day := 24 * time.Hour

	repo := initGitRepo(t)
	repo.commit(now.Add(-5*day), map[string]string{"a.go": "1\n2\n", "pkg/b.go": "x\n"})
	repo.commit(now.Add(-4*day), map[string]string{"a.go": "1\n2\n3\n", "pkg/b.go": "y\n"})
	repo.commit(now.Add(-3*day), map[string]string{"a.go": "1\n2\n3\n4\n", "c.go": "z\n"})

	miner := NewMiner(Options{Months: 6, MinCochange: 2, Now: func() time.Time { return now }}, nil)
	h, err := miner.Mine(ctx, repo.dir)
	require.NoError(t, err)

	t.Run("FileStats", func(t *testing.T) {
		t.Parallel()
		require.Len(t, h.Files, 3)
		assert.Equal(t, "a.go", h.Files[0].FilePath)
		assert.Equal(t, "c.go", h.Files[1].FilePath)
		assert.Equal(t, "pkg/b.go", h.Files[2].FilePath)

		a, _ := fileStat(h, "a.go")
		assert.Equal(t, 3, a.Commits)
		assert.Equal(t, 4, a.Churn)
		assert.True(t, a.LastModified.Equal(now.Add(-3*day)), "got %v", a.LastModified)

		b, _ := fileStat(h, "pkg/b.go")
		assert.Equal(t, 2, b.Commits)
		assert.Equal(t, 3, b.Churn)
	})

	t.Run("CoChangeAboveMinimum", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []analysis.CoChange{{FileA: "a.go", FileB: "pkg/b.go", Count: 2}}, h.CoChange)
	})
}

func TestMiner_Window(t *testing.T) {
	t.Parallel()
	now := time.Now().Truncate(time.Second)

	repo := initGitRepo(t)
	repo.commit(now.AddDate(-1, 0, 0), map[string]string{"old.go": "1\n", "a.go": "1\n"})
	repo.commit(now.Add(-time.Hour), map[string]string{"a.go": "2\n"})

	h, err := NewMiner(Options{Months: 6, Now: func() time.Time { return now }}, nil).Mine(context.Background(), repo.dir)

	require.NoError(t, err)
	_, found := fileStat(h, "old.go")
	assert.False(t, found)
	a, found := fileStat(h, "a.go")
	require.True(t, found)
	assert.Equal(t, 1, a.Commits)
}

func TestMiner_SkipsBulkCommits(t *testing.T) {
	t.Parallel()
	now := time.Now().Truncate(time.Second)

	repo := initGitRepo(t)
	repo.commit(now.Add(-2*time.Hour), map[string]string{"a.go": "1\n", "b.go": "1\n", "c.go": "1\n"})
	repo.commit(now.Add(-time.Hour), map[string]string{"a.go": "2\n", "b.go": "2\n"})

	h, err := NewMiner(Options{MaxFilesPerCommit: 2, Now: func() time.Time { return now }}, nil).Mine(context.Background(), repo.dir)

	require.NoError(t, err)
	_, found := fileStat(h, "c.go")
	assert.False(t, found)
	assert.Equal(t, []analysis.CoChange{{FileA: "a.go", FileB: "b.go", Count: 1}}, h.CoChange)
}

func TestMiner_EdgeCases(t *testing.T) {
	t.Parallel()

	t.Run("HandlesNoGitRepo", func(t *testing.T) {
		t.Parallel()
		_, err := NewMiner(DefaultOptions(), nil).Mine(context.Background(), t.TempDir())

		assert.True(t, errors.Is(err, ErrNotRepository), "got %v", err)
	})

	t.Run("EmptyRepository", func(t *testing.T) {
		t.Parallel()
		repo := initGitRepo(t)

		h, err := NewMiner(DefaultOptions(), nil).Mine(context.Background(), repo.dir)

		require.NoError(t, err)
		assert.Empty(t, h.Files)
		assert.NotNil(t, h.CoChange)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		t.Parallel()
		repo := initGitRepo(t)
		repo.commit(time.Now().Add(-time.Hour), map[string]string{"a.go": "1\n"})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewMiner(DefaultOptions(), nil).Mine(ctx, repo.dir)

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBuildCoChangeMatrix(t *testing.T) {
	t.Parallel()

	t.Run("BuildsMatrix", func(t *testing.T) {
		changes := [][]string{
			{"file1.go", "file2.go"},
			{"file1.go", "file3.go"},
			{"file2.go", "file3.go"},
			{"file1.go", "file2.go"},
		}

		matrix := buildCoChangeMatrix(changes)

		assert.Equal(t, 2, matrix["file1.go"]["file2.go"])
		assert.Equal(t, 2, matrix["file2.go"]["file1.go"])
		assert.Equal(t, 1, matrix["file1.go"]["file3.go"])
		assert.Equal(t, 1, matrix["file2.go"]["file3.go"])
	})

	t.Run("HandlesEmptyChanges", func(t *testing.T) {
		assert.Empty(t, buildCoChangeMatrix([][]string{}))
	})

	t.Run("SingleFileCommits", func(t *testing.T) {
		assert.Empty(t, buildCoChangeMatrix([][]string{{"a.go"}, {"b.go"}}))
	})
}

func TestCouplings(t *testing.T) {
	t.Parallel()

	h := storage.History{
		CoChange: []analysis.CoChange{
			{FileA: "a.go", FileB: "b.go", Count: 3},
			{FileA: "a.go", FileB: "c.go", Count: 2},
		},
		Files: []storage.FileStat{
			{FilePath: "a.go", Commits: 4},
			{FilePath: "b.go", Commits: 3},
			{FilePath: "c.go", Commits: 10},
		},
	}

	t.Run("ScoresAndFilters", func(t *testing.T) {
		got := Couplings(h, 0.3)

		require.Len(t, got, 1)
		assert.Equal(t, "b.go", got[0].FileB)
		assert.InDelta(t, 0.75, got[0].Strength, 1e-9)
	})

	t.Run("StrongestFirst", func(t *testing.T) {
		got := Couplings(h, 0)

		require.Len(t, got, 2)
		assert.InDelta(t, 0.2, got[1].Strength, 1e-9)
	})

	t.Run("UnknownFilesScoreZero", func(t *testing.T) {
		assert.Zero(t, computeCouplingStrength(3, 0, 5))
		assert.InDelta(t, 0.5, computeCouplingStrength(2, 4, 3), 1e-9)
	})
}
