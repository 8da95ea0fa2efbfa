// Package batch analyzes many repositories in parallel, writing one
// JSON graph per repository. A persisted state file makes long runs
// resumable: completed repositories are skipped, interrupted ones are
// retried, and repositories that exhausted their retries stay skipped.
package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/repograph/repograph/internal/config"
	"github.com/repograph/repograph/internal/graph/jsonsink"
	"github.com/repograph/repograph/internal/pipeline"
)

const (
	DefaultWorkers    = 4
	DefaultMaxRetries = 3
	StateFileName     = ".batch_state.json"
)

// State is the persisted progress of a batch run. Failed maps a
// repository path to the number of attempts so far; a count at or above
// the retry limit marks it permanently failed.
type State struct {
	Version     string         `json:"version"`
	StartedAt   time.Time      `json:"started_at"`
	LastUpdated time.Time      `json:"last_updated"`
	Completed   []string       `json:"completed"`
	Failed      map[string]int `json:"failed"`
	InProgress  []string       `json:"in_progress"`
}

func newState() *State {
	return &State{
		Version:   "1.0",
		StartedAt: time.Now().UTC(),
		Failed:    make(map[string]int),
	}
}

// Result reports the outcome of analyzing one repository.
type Result struct {
	RepoPath   string        `json:"repo_path"`
	OutputPath string        `json:"output_path,omitempty"`
	Err        string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	Attempts   int           `json:"attempts"`
}

// Runner processes a list of repository checkouts with a bounded worker
// pool, one repository per worker.
type Runner struct {
	OutputDir  string
	StateFile  string
	Workers    int
	MaxRetries int
	Config     *config.Config

	mu    sync.Mutex
	state *State
}

// NewRunner builds a batch runner writing graphs into outputDir. The
// state file lives inside outputDir unless overridden.
func NewRunner(outputDir string) *Runner {
	return &Runner{
		OutputDir:  outputDir,
		StateFile:  filepath.Join(outputDir, StateFileName),
		Workers:    DefaultWorkers,
		MaxRetries: DefaultMaxRetries,
		state:      newState(),
	}
}

// Run analyzes every repository in repos that the persisted state does
// not rule out. It returns a result per attempted repository; a
// pipeline failure marks the repository failed and keeps going.
func (r *Runner) Run(ctx context.Context, repos []string) ([]Result, error) {
	if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	r.loadState()

	pending := r.filterPending(repos)
	slog.Info("batch.start",
		"repos", len(repos), "pending", len(pending),
		"workers", r.Workers, "output", r.OutputDir)
	if len(pending) == 0 {
		return nil, nil
	}

	workers := r.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(pending) {
		workers = len(pending)
	}

	results := make([]Result, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, repo := range pending {
		i, repo := i, repo
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results[i] = r.processRepo(gctx, repo)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	completed, failed := 0, 0
	for _, res := range results {
		if res.Err == "" {
			completed++
		} else {
			failed++
		}
	}
	slog.Info("batch.done", "completed", completed, "failed", failed)
	return results, nil
}

// filterPending drops repositories the state already settled: completed
// ones and ones whose retry budget is spent. Repositories left marked
// in-progress by an interrupted run are retried.
func (r *Runner) filterPending(repos []string) []string {
	done := make(map[string]bool, len(r.state.Completed))
	for _, repo := range r.state.Completed {
		done[repo] = true
	}
	var pending []string
	for _, repo := range repos {
		switch {
		case done[repo]:
			slog.Debug("batch.skip.completed", "repo", repo)
		case r.state.Failed[repo] >= r.MaxRetries:
			slog.Warn("batch.skip.exhausted", "repo", repo, "attempts", r.state.Failed[repo])
		default:
			pending = append(pending, repo)
		}
	}
	return pending
}

func (r *Runner) processRepo(ctx context.Context, repo string) Result {
	start := time.Now()
	r.markInProgress(repo)

	name := pipeline.ProjectNameFromPath(repo)
	outputPath := filepath.Join(r.OutputDir, name+".json")
	attempts := r.attemptCount(repo) + 1

	err := r.analyzeOne(ctx, repo, outputPath)
	res := Result{
		RepoPath: repo,
		Duration: time.Since(start),
		Attempts: attempts,
	}
	if err != nil {
		res.Err = err.Error()
		r.markFailed(repo)
		slog.Error("batch.repo.failed", "repo", repo, "attempt", attempts, "err", err)
		return res
	}
	res.OutputPath = outputPath
	r.markCompleted(repo)
	slog.Info("batch.repo.done", "repo", repo, "output", outputPath,
		"elapsed", res.Duration.Round(time.Millisecond))
	return res
}

func (r *Runner) analyzeOne(ctx context.Context, repo, outputPath string) error {
	if _, err := os.Stat(repo); err != nil {
		return fmt.Errorf("repo not found: %w", err)
	}
	sink := jsonsink.New(outputPath)
	defer sink.Close()

	cfg := r.Config
	if cfg == nil {
		cfg = config.Load(repo)
	}
	return pipeline.New(repo, sink, cfg).Run(ctx)
}

func (r *Runner) markInProgress(repo string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.InProgress = append(r.state.InProgress, repo)
	r.saveStateLocked()
}

func (r *Runner) markCompleted(repo string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Completed = append(r.state.Completed, repo)
	delete(r.state.Failed, repo)
	r.removeInProgressLocked(repo)
	r.saveStateLocked()
}

func (r *Runner) markFailed(repo string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Failed[repo]++
	r.removeInProgressLocked(repo)
	r.saveStateLocked()
}

func (r *Runner) attemptCount(repo string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Failed[repo]
}

func (r *Runner) removeInProgressLocked(repo string) {
	for i, ip := range r.state.InProgress {
		if ip == repo {
			r.state.InProgress = append(r.state.InProgress[:i], r.state.InProgress[i+1:]...)
			return
		}
	}
}

// loadState restores persisted state. A missing or corrupt state file
// starts the run fresh.
func (r *Runner) loadState() {
	data, err := os.ReadFile(r.StateFile)
	if err != nil {
		return
	}
	st := newState()
	if err := json.Unmarshal(data, st); err != nil {
		slog.Warn("batch.state.corrupt", "file", r.StateFile, "err", err)
		return
	}
	if st.Failed == nil {
		st.Failed = make(map[string]int)
	}
	r.state = st
	slog.Info("batch.state.loaded",
		"completed", len(st.Completed), "failed", len(st.Failed), "interrupted", len(st.InProgress))
}

// saveStateLocked writes the state file via rename so a crash mid-write
// never leaves a truncated file.
func (r *Runner) saveStateLocked() {
	r.state.LastUpdated = time.Now().UTC()
	data, err := json.MarshalIndent(r.state, "", "  ")
	if err != nil {
		return
	}
	tmp := r.StateFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Warn("batch.state.save", "err", err)
		return
	}
	if err := os.Rename(tmp, r.StateFile); err != nil {
		slog.Warn("batch.state.save", "err", err)
	}
}

// ReadRepoList reads a repository list file: one path per line, blank
// lines and #-comments ignored.
func ReadRepoList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open repo list: %w", err)
	}
	defer f.Close()

	var repos []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if trimmed := trimComment(line); trimmed != "" {
			repos = append(repos, trimmed)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read repo list: %w", err)
	}
	return repos, nil
}

func trimComment(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	return line
}
