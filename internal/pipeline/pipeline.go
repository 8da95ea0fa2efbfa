// Package pipeline orchestrates the three analysis passes that turn a
// repository checkout into a code graph: structure (directories and
// modules), definitions (classes, functions, methods), and resolution
// (imports, inheritance, calls). Passes two and three are separated by a
// hard barrier: no call is resolved until every definition in the
// repository is registered, so forward references and cross-file calls
// resolve regardless of file order.
package pipeline

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	"github.com/zeebo/xxh3"

	"github.com/repograph/repograph/internal/astcache"
	"github.com/repograph/repograph/internal/config"
	"github.com/repograph/repograph/internal/discover"
	"github.com/repograph/repograph/internal/fqn"
	"github.com/repograph/repograph/internal/graph"
	"github.com/repograph/repograph/internal/lang"
	"github.com/repograph/repograph/internal/manifest"
	"github.com/repograph/repograph/internal/parser"
	"github.com/repograph/repograph/internal/registry"
)

// classInfo records where a class was defined and the raw superclass
// names from its declaration. Base names are resolved after the
// definition barrier, when the registry is complete.
type classInfo struct {
	moduleQN string
	bases    []string
}

// Pipeline analyzes one repository and streams entities and
// relationships into a graph sink.
type Pipeline struct {
	RepoPath    string
	ProjectName string

	sink  graph.Sink
	cfg   *config.Config
	reg   *registry.Registry
	cache *astcache.Cache

	files []discover.FileInfo

	mu         sync.Mutex
	modules    map[string]discover.FileInfo // moduleQN -> file
	importMaps map[string]map[string]string // moduleQN -> alias -> target
	classes    map[string]classInfo         // classQN -> declaration info

	relCounts map[graph.RelType]*atomic.Int64

	unresolvedCalls   atomic.Int64
	unresolvedBases   atomic.Int64
	unresolvedImports atomic.Int64
}

// New builds a pipeline for a single repository. The sink receives every
// entity and relationship; nothing reaches storage until Flush.
func New(repoPath string, sink graph.Sink, cfg *config.Config) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	p := &Pipeline{
		RepoPath:    repoPath,
		ProjectName: ProjectNameFromPath(repoPath),
		sink:        sink,
		cfg:         cfg,
		reg:         registry.New(),
		cache:       astcache.New(cfg.CacheMaxEntries(), cfg.CacheMaxBytes()),
		modules:     make(map[string]discover.FileInfo),
		importMaps:  make(map[string]map[string]string),
		classes:     make(map[string]classInfo),
		relCounts:   make(map[graph.RelType]*atomic.Int64),
	}
	for _, t := range []graph.RelType{
		graph.RelContainsPackage, graph.RelContainsFolder, graph.RelContainsModule,
		graph.RelDefines, graph.RelDefinesMethod, graph.RelInherits, graph.RelOverrides,
		graph.RelImports, graph.RelCalls, graph.RelDependsOnExternal,
	} {
		p.relCounts[t] = &atomic.Int64{}
	}
	return p
}

// Registry exposes the definition registry, primarily for tests and the
// batch runner's progress reporting.
func (p *Pipeline) Registry() *registry.Registry { return p.reg }

// UnresolvedCalls reports how many call sites could not be resolved to
// any known definition.
func (p *Pipeline) UnresolvedCalls() int64 { return p.unresolvedCalls.Load() }

// UnresolvedImports reports how many import targets pointed inside the
// project but matched no discovered module.
func (p *Pipeline) UnresolvedImports() int64 { return p.unresolvedImports.Load() }

// Run executes all passes in order and flushes the sink. The context
// cancels file-level parallelism between files, never mid-file.
func (p *Pipeline) Run(ctx context.Context) error {
	start := time.Now()
	slog.Info("pipeline.start", "project", p.ProjectName, "path", p.RepoPath)

	files, err := discover.Discover(ctx, p.RepoPath, &discover.Options{
		ExtraIgnores: p.cfg.Analysis.ExcludeGlobs,
	})
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	p.files = filterLanguages(files, p.cfg.EnabledLanguages())
	slog.Info("pipeline.discovered", "files", len(p.files))

	passes := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"structure", p.passStructure},
		{"definitions", p.passDefinitions},
		{"imports", p.passImports},
		{"inherits", p.passInherits},
		{"overrides", p.passOverrides},
		{"calls", p.passCalls},
		{"manifests", p.passManifests},
	}
	for _, pass := range passes {
		t := time.Now()
		if err := pass.fn(ctx); err != nil {
			return fmt.Errorf("pass %s: %w", pass.name, err)
		}
		slog.Info("pass.timing", "pass", pass.name, "elapsed", time.Since(t).Round(time.Millisecond))
	}

	if err := p.sink.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	hits, misses, evictions := p.cache.Stats()
	slog.Info("pipeline.done",
		"project", p.ProjectName,
		"definitions", p.reg.Len(),
		"unresolved_calls", p.unresolvedCalls.Load(),
		"unresolved_bases", p.unresolvedBases.Load(),
		"unresolved_imports", p.unresolvedImports.Load(),
		"cache_hits", hits, "cache_misses", misses, "cache_evictions", evictions,
		"elapsed", time.Since(start).Round(time.Millisecond))
	for t, c := range p.relCounts {
		if n := c.Load(); n > 0 {
			slog.Info("pipeline.edges", "type", string(t), "count", n)
		}
	}
	p.cache.Purge()
	return nil
}

// emitEntity forwards an entity to the sink. The sink deduplicates, so
// passes can re-ensure the same entity freely.
func (p *Pipeline) emitEntity(e graph.Entity) error {
	if err := p.sink.EnsureEntity(e); err != nil {
		return fmt.Errorf("ensure entity %s %s: %w", e.Kind, e.QualifiedName, err)
	}
	return nil
}

func (p *Pipeline) emitRel(r graph.Relationship) error {
	if err := p.sink.EnsureRelationship(r); err != nil {
		return fmt.Errorf("ensure relationship %s %s->%s: %w", r.Type, r.SourceQN, r.TargetQN, err)
	}
	p.relCounts[r.Type].Add(1)
	return nil
}

// acquireTree checks a file's AST out of the shared cache, parsing it on
// a miss. Callers must Release the checkout when done.
func (p *Pipeline) acquireTree(f discover.FileInfo) (*astcache.Checkout, error) {
	return p.cache.Acquire(f.Path, func() (*tree_sitter.Tree, []byte, error) {
		source, err := readSource(f.Path)
		if err != nil {
			return nil, nil, err
		}
		tree, err := parser.Parse(f.Language, source)
		if err != nil {
			return nil, nil, err
		}
		return tree, source, nil
	})
}

// passManifests extracts declared third-party dependencies from manifest
// files and emits ExternalPackage nodes with DEPENDS_ON_EXTERNAL edges.
func (p *Pipeline) passManifests(context.Context) error {
	if err := manifest.Process(p.RepoPath, p.ProjectName, p.sink); err != nil {
		return err
	}
	return nil
}

// ProjectNameFromPath derives the project name from the repository
// directory name, normalized to a single qualified-name segment.
func ProjectNameFromPath(repoPath string) string {
	base := filepath.Base(filepath.Clean(repoPath))
	base = strings.TrimSuffix(base, ".git")
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '/', '\\', ':', ' ':
			return '-'
		}
		return r
	}, base)
}

func filterLanguages(files []discover.FileInfo, enabled []lang.Language) []discover.FileInfo {
	allowed := make(map[lang.Language]bool, len(enabled))
	for _, l := range enabled {
		allowed[l] = true
	}
	out := files[:0]
	for _, f := range files {
		if allowed[f.Language] {
			out = append(out, f)
		}
	}
	return out
}

// readSource loads a file and strips a UTF-8 BOM if present. Tree-sitter
// grammars choke on a leading BOM.
func readSource(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return stripBOM(data), nil
}

func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// fileHash returns a short content hash used to detect changed modules
// across runs.
func fileHash(data []byte) string {
	sum := xxh3.Hash128(data).Bytes()
	return hex.EncodeToString(sum[:])
}

// safeRowToLine converts a zero-based tree-sitter row to a one-based
// line number.
func safeRowToLine(row uint) int {
	return int(row) + 1
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

// lastSegment returns the final dot segment of a qualified name.
func lastSegment(qn string) string {
	segs := fqn.Segments(qn)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
