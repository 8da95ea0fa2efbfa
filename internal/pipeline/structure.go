package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/repograph/repograph/internal/fqn"
	"github.com/repograph/repograph/internal/graph"
	"github.com/repograph/repograph/internal/lang"
	"github.com/repograph/repograph/internal/registry"
)

// passStructure walks the discovered file set and emits the containment
// skeleton: the Project root, one Package or Folder per directory, and
// one Module per source file. Directories holding a package indicator
// file (go.mod, __init__.py, package.json, ...) become Packages;
// everything else is a plain Folder.
func (p *Pipeline) passStructure(ctx context.Context) error {
	if err := p.emitEntity(graph.Entity{
		Kind:          graph.KindProject,
		Project:       p.ProjectName,
		Name:          p.ProjectName,
		QualifiedName: p.ProjectName,
		FilePath:      ".",
	}); err != nil {
		return err
	}

	indicators := lang.PackageIndicators()

	// Collect every ancestor directory of every file, then emit them
	// shallowest-first so parents always exist before children.
	dirSet := make(map[string]bool)
	for _, f := range p.files {
		for dir := path.Dir(f.RelPath); dir != "." && dir != ""; dir = path.Dir(dir) {
			dirSet[dir] = true
		}
	}
	dirs := make([]string, 0, len(dirSet))
	for d := range dirSet {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool {
		di, dj := strings.Count(dirs[i], "/"), strings.Count(dirs[j], "/")
		if di != dj {
			return di < dj
		}
		return dirs[i] < dirs[j]
	})

	for _, dir := range dirs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		kind := graph.KindFolder
		relType := graph.RelContainsFolder
		if isPackageDir(filepath.Join(p.RepoPath, filepath.FromSlash(dir)), indicators) {
			kind = graph.KindPackage
			relType = graph.RelContainsPackage
		}
		dirQN := fqn.FolderQN(p.ProjectName, dir)
		parentQN := fqn.FolderQN(p.ProjectName, path.Dir(dir))
		if err := p.emitEntity(graph.Entity{
			Kind:          kind,
			Project:       p.ProjectName,
			Name:          path.Base(dir),
			QualifiedName: dirQN,
			FilePath:      dir,
		}); err != nil {
			return err
		}
		if err := p.emitRel(graph.Relationship{
			Type:     relType,
			SourceQN: parentQN,
			TargetQN: dirQN,
		}); err != nil {
			return err
		}
	}

	for _, f := range p.files {
		moduleQN := fqn.ModuleQN(p.ProjectName, f.RelPath)
		name := strings.TrimSuffix(path.Base(f.RelPath), path.Ext(f.RelPath))
		props := map[string]any{"language": string(f.Language)}
		if data, err := os.ReadFile(f.Path); err == nil {
			props["file_hash"] = fileHash(stripBOM(data))
		}
		if err := p.emitEntity(graph.Entity{
			Kind:          graph.KindModule,
			Project:       p.ProjectName,
			Name:          name,
			QualifiedName: moduleQN,
			FilePath:      f.RelPath,
			Properties:    props,
		}); err != nil {
			return err
		}
		if err := p.emitRel(graph.Relationship{
			Type:     graph.RelContainsModule,
			SourceQN: fqn.FolderQN(p.ProjectName, path.Dir(f.RelPath)),
			TargetQN: moduleQN,
		}); err != nil {
			return err
		}
		p.reg.Insert(registry.Definition{
			QualifiedName: moduleQN,
			Kind:          graph.KindModule,
			ModuleQN:      moduleQN,
			FilePath:      f.RelPath,
		})
		p.modules[moduleQN] = f
	}

	slog.Info("pass.structure.done", "directories", len(dirs), "modules", len(p.files))
	return nil
}

func isPackageDir(absDir string, indicators map[string]bool) bool {
	for name := range indicators {
		if _, err := os.Stat(filepath.Join(absDir, name)); err == nil {
			return true
		}
	}
	return false
}
