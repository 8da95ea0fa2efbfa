// Package discover walks a repository and returns its analyzable source
// files, honoring built-in directory exclusions, a repository-local
// .rgignore file, and configured extra globs.
package discover

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/repograph/repograph/internal/lang"
)

// IGNORE_PATTERNS are directory names to skip during discovery.
var IGNORE_PATTERNS = map[string]bool{
	".cache": true, ".eggs": true, ".env": true, ".git": true,
	".gradle": true, ".hg": true, ".idea": true, ".maven": true,
	".mypy_cache": true, ".nox": true, ".npm": true, ".nyc_output": true,
	".pnpm-store": true, ".pytest_cache": true, ".ruff_cache": true,
	".svn": true, ".tmp": true, ".tox": true, ".venv": true,
	".vs": true, ".vscode": true, ".yarn": true, "__pycache__": true,
	"bin": true, "bower_components": true, "build": true,
	"coverage": true, "dist": true, "env": true, "htmlcov": true,
	"node_modules": true, "obj": true, "out": true, "Pods": true,
	"site-packages": true, "target": true, "temp": true, "tmp": true,
	"vendor": true, "venv": true,
}

// IGNORE_SUFFIXES are file suffixes to skip.
var IGNORE_SUFFIXES = map[string]bool{
	".tmp": true, "~": true, ".pyc": true, ".pyo": true,
	".o": true, ".a": true, ".so": true, ".dll": true, ".class": true,
}

// IgnoreFileName is the repository-local exclusion file, gitignore syntax.
const IgnoreFileName = ".rgignore"

// FileInfo represents a discovered source file.
type FileInfo struct {
	Path     string        // absolute path
	RelPath  string        // relative to repo root, slash-separated
	Language lang.Language // detected language
}

// Options configures file discovery.
type Options struct {
	IgnoreFile   string   // overrides the repo-local .rgignore (optional)
	ExtraIgnores []string // extra gitignore-syntax patterns from config
}

// Discover walks a repository and returns all source files in supported
// languages. Unreadable paths are logged and skipped; they never abort
// the walk.
func Discover(ctx context.Context, repoPath string, opts *Options) ([]FileInfo, error) {
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matcher := buildMatcher(repoPath, opts)

	var files []FileInfo
	err = filepath.Walk(repoPath, func(path string, info os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			slog.Warn("discover.skip", "path", path, "err", walkErr)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, _ := filepath.Rel(repoPath, path)
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if rel != "." && (IGNORE_PATTERNS[info.Name()] || (matcher != nil && matcher.MatchesPath(rel+"/"))) {
				return filepath.SkipDir
			}
			return nil
		}

		for suffix := range IGNORE_SUFFIXES {
			if strings.HasSuffix(path, suffix) {
				return nil
			}
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}

		ext := filepath.Ext(path)
		if l, ok := lang.LanguageForExtension(ext); ok {
			files = append(files, FileInfo{Path: path, RelPath: rel, Language: l})
		}
		return nil
	})

	return files, err
}

// buildMatcher combines the repo-local ignore file and configured globs
// into one gitignore matcher. Returns nil when there is nothing to match.
func buildMatcher(repoPath string, opts *Options) *ignore.GitIgnore {
	var lines []string

	ignPath := filepath.Join(repoPath, IgnoreFileName)
	if opts != nil && opts.IgnoreFile != "" {
		ignPath = opts.IgnoreFile
	}
	if b, err := os.ReadFile(ignPath); err == nil {
		lines = append(lines, strings.Split(string(b), "\n")...)
	}
	if opts != nil {
		lines = append(lines, opts.ExtraIgnores...)
	}
	if len(lines) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(lines...)
}
