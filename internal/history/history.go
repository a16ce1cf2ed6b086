// Package history mines git history for churn and co-change signals.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"go.uber.org/zap"

	"github.com/Benny93/archgraph/internal/analysis"
	"github.com/Benny93/archgraph/internal/storage"
)

// ErrNotRepository is returned when the path is not inside a git repository.
var ErrNotRepository = errors.New("not a git repository")

// Options configures mining.
type Options struct {
	// Months limits the walk to commits newer than this many months.
	Months int

	// MaxFilesPerCommit skips bulk commits (renames, formatting sweeps)
	// touching more files than this. Zero disables the limit.
	MaxFilesPerCommit int

	// MinCochange drops pairs that changed together fewer times.
	MinCochange int

	// Now anchors the time window. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns six months of history, bulk commits above 50
// files skipped and pairs seen at least three times.
func DefaultOptions() Options {
	return Options{Months: 6, MaxFilesPerCommit: 50, MinCochange: 3}
}

// Miner walks a repository's commit log.
type Miner struct {
	opts   Options
	logger *zap.Logger
}

// NewMiner creates a miner. A nil logger is replaced by a no-op logger.
func NewMiner(opts Options, logger *zap.Logger) *Miner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Months <= 0 {
		opts.Months = DefaultOptions().Months
	}
	if opts.MinCochange <= 0 {
		opts.MinCochange = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Miner{opts: opts, logger: logger}
}

// commit is one non-merge commit reduced to what mining needs.
type commit struct {
	when  time.Time
	files map[string]int
}

// Mine walks the history reachable from HEAD and returns file stats
// and co-change pairs. Merge commits are skipped. A repository without
// commits yields empty history.
func (m *Miner) Mine(ctx context.Context, repoPath string) (storage.History, error) {
	empty := storage.History{CoChange: []analysis.CoChange{}, Files: []storage.FileStat{}}

	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return empty, fmt.Errorf("%w: %s", ErrNotRepository, repoPath)
	}
	if err != nil {
		return empty, fmt.Errorf("opening repository: %w", err)
	}

	commits, err := m.collect(ctx, repo)
	if err != nil {
		return empty, err
	}

	h := summarize(commits, m.opts.MinCochange)
	m.logger.Debug("history mined",
		zap.String("repo", repoPath),
		zap.Int("commits", len(commits)),
		zap.Int("files", len(h.Files)),
		zap.Int("pairs", len(h.CoChange)))
	return h, nil
}

func (m *Miner) collect(ctx context.Context, repo *git.Repository) ([]commit, error) {
	since := m.opts.Now().AddDate(0, -m.opts.Months, 0)
	iter, err := repo.Log(&git.LogOptions{Since: &since, Order: git.LogOrderCommitterTime})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	defer iter.Close()

	var commits []commit
	skipped := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.NumParents() > 1 {
			return nil
		}
		stats, err := c.Stats()
		if err != nil {
			return fmt.Errorf("diffing %s: %w", c.Hash, err)
		}
		if len(stats) == 0 {
			return nil
		}
		if m.opts.MaxFilesPerCommit > 0 && len(stats) > m.opts.MaxFilesPerCommit {
			skipped++
			return nil
		}
		files := make(map[string]int, len(stats))
		for _, s := range stats {
			files[s.Name] += s.Addition + s.Deletion
		}
		commits = append(commits, commit{when: c.Committer.When, files: files})
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, err
	}
	if skipped > 0 {
		m.logger.Debug("skipped bulk commits", zap.Int("count", skipped), zap.Int("max_files", m.opts.MaxFilesPerCommit))
	}
	return commits, nil
}

// summarize folds commits into per-file stats and co-change pairs.
func summarize(commits []commit, minCochange int) storage.History {
	stats := make(map[string]*storage.FileStat)
	changes := make([][]string, 0, len(commits))
	for _, c := range commits {
		files := make([]string, 0, len(c.files))
		for path, churn := range c.files {
			st, ok := stats[path]
			if !ok {
				st = &storage.FileStat{FilePath: path}
				stats[path] = st
			}
			st.Churn += churn
			st.Commits++
			if c.when.After(st.LastModified) {
				st.LastModified = c.when.UTC()
			}
			files = append(files, path)
		}
		sort.Strings(files)
		changes = append(changes, files)
	}

	h := storage.History{CoChange: []analysis.CoChange{}, Files: make([]storage.FileStat, 0, len(stats))}
	for _, st := range stats {
		h.Files = append(h.Files, *st)
	}
	sort.Slice(h.Files, func(i, j int) bool { return h.Files[i].FilePath < h.Files[j].FilePath })

	for fileA, row := range buildCoChangeMatrix(changes) {
		for fileB, count := range row {
			if fileA >= fileB || count < minCochange {
				continue
			}
			h.CoChange = append(h.CoChange, analysis.CoChange{FileA: fileA, FileB: fileB, Count: count})
		}
	}
	sort.Slice(h.CoChange, func(i, j int) bool {
		a, b := h.CoChange[i], h.CoChange[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.FileA != b.FileA {
			return a.FileA < b.FileA
		}
		return a.FileB < b.FileB
	})
	return h
}

// buildCoChangeMatrix counts how often each pair of files appears in the
// same commit. The matrix is symmetric.
func buildCoChangeMatrix(changes [][]string) map[string]map[string]int {
	matrix := make(map[string]map[string]int)

	for _, files := range changes {
		for i := 0; i < len(files); i++ {
			for j := i + 1; j < len(files); j++ {
				fileA, fileB := files[i], files[j]
				if matrix[fileA] == nil {
					matrix[fileA] = make(map[string]int)
				}
				if matrix[fileB] == nil {
					matrix[fileB] = make(map[string]int)
				}
				matrix[fileA][fileB]++
				matrix[fileB][fileA]++
			}
		}
	}

	return matrix
}

// Coupling is a co-change pair with its normalized strength.
type Coupling struct {
	FileA     string  `json:"file_a"`
	FileB     string  `json:"file_b"`
	CoChanges int     `json:"cochange_count"`
	Strength  float64 `json:"strength"`
}

// Couplings scores every co-change pair of h and keeps those with at least
// minStrength, strongest first.
func Couplings(h storage.History, minStrength float64) []Coupling {
	commits := make(map[string]int, len(h.Files))
	for _, f := range h.Files {
		commits[f.FilePath] = f.Commits
	}

	result := []Coupling{}
	for _, c := range h.CoChange {
		strength := computeCouplingStrength(c.Count, commits[c.FileA], commits[c.FileB])
		if strength < minStrength {
			continue
		}
		result = append(result, Coupling{FileA: c.FileA, FileB: c.FileB, CoChanges: c.Count, Strength: strength})
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Strength > result[j].Strength })
	return result
}

// computeCouplingStrength is co_changes / max(total_changes_A, total_changes_B).
func computeCouplingStrength(coChanges, totalA, totalB int) float64 {
	maxTotal := max(totalA, totalB)
	if totalA == 0 || totalB == 0 || maxTotal == 0 {
		return 0.0
	}
	return float64(coChanges) / float64(maxTotal)
}
