// Package manifest extracts declared dependencies from package manifests
// (pyproject.toml, requirements.txt, package.json, go.mod, Cargo.toml)
// and turns them into ExternalPackage entities with DEPENDS_ON_EXTERNAL
// edges from the project. It runs beside the analysis passes, not inside
// them.
package manifest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/repograph/repograph/internal/graph"
)

// Dependency is one declared external package.
type Dependency struct {
	Name        string
	VersionSpec string
	Source      string // manifest file it came from, relative path
}

// manifestFiles maps known manifest names to their parser.
var manifestFiles = map[string]func(path string) ([]Dependency, error){
	"requirements.txt": parseRequirements,
	"pyproject.toml":   parsePyproject,
	"package.json":     parsePackageJSON,
	"go.mod":           parseGoMod,
	"Cargo.toml":       parseCargoToml,
}

// Extract reads every recognized manifest at the repository root and
// returns the declared dependencies, deduplicated by name (first
// manifest wins) and sorted.
func Extract(repoPath string) ([]Dependency, error) {
	byName := make(map[string]Dependency)

	for name, parse := range manifestFiles {
		path := filepath.Join(repoPath, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		deps, err := parse(path)
		if err != nil {
			slog.Warn("manifest.parse.skip", "file", name, "err", err)
			continue
		}
		for _, d := range deps {
			d.Source = name
			if _, ok := byName[d.Name]; !ok {
				byName[d.Name] = d
			}
		}
	}

	out := make([]Dependency, 0, len(byName))
	for _, d := range byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Process extracts dependencies and hands them to the sink as
// ExternalPackage entities plus DEPENDS_ON_EXTERNAL edges from the
// project entity.
func Process(repoPath, projectQN string, sink graph.Sink) error {
	deps, err := Extract(repoPath)
	if err != nil {
		return err
	}
	for _, d := range deps {
		// External names carry no project prefix.
		if err := sink.EnsureEntity(graph.Entity{
			Kind:          graph.KindExternalPackage,
			Name:          d.Name,
			QualifiedName: d.Name,
			Properties:    map[string]any{"version_spec": d.VersionSpec, "source": d.Source},
		}); err != nil {
			return fmt.Errorf("ensure external package %s: %w", d.Name, err)
		}
		if err := sink.EnsureRelationship(graph.Relationship{
			Type:     graph.RelDependsOnExternal,
			SourceQN: projectQN,
			TargetQN: d.Name,
		}); err != nil {
			return fmt.Errorf("ensure dependency edge %s: %w", d.Name, err)
		}
	}
	slog.Info("manifest.extracted", "dependencies", len(deps))
	return nil
}

var versionOps = []string{"==", ">=", "<=", "~=", "!=", ">", "<", "="}

// parseRequirements handles pip requirements files: one spec per line,
// comments and pip flags skipped, extras stripped.
func parseRequirements(path string) ([]Dependency, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var deps []Dependency
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		// Environment markers.
		if i := strings.Index(line, ";"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		name, spec := splitVersion(line)
		if i := strings.Index(name, "["); i >= 0 {
			name = name[:i]
		}
		if name != "" {
			deps = append(deps, Dependency{Name: name, VersionSpec: spec})
		}
	}
	return deps, scanner.Err()
}

func splitVersion(s string) (name, spec string) {
	for _, op := range versionOps {
		if i := strings.Index(s, op); i >= 0 {
			return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i:])
		}
	}
	return strings.TrimSpace(s), ""
}

// parsePyproject reads PEP 621 `dependencies = [...]` arrays and poetry's
// `[tool.poetry.dependencies]` table. Full TOML parsing is not needed for
// the two shapes real manifests use here.
func parsePyproject(path string) ([]Dependency, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var deps []Dependency
	var inDepsArray, inPoetryTable bool
	for _, raw := range strings.Split(string(b), "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "["):
			inDepsArray = false
			inPoetryTable = line == "[tool.poetry.dependencies]"
			continue
		case strings.HasPrefix(line, "dependencies") && strings.Contains(line, "["):
			inDepsArray = !strings.Contains(line, "]")
			for _, item := range extractQuoted(line) {
				name, spec := splitVersion(item)
				deps = append(deps, Dependency{Name: name, VersionSpec: spec})
			}
			continue
		}
		if inDepsArray {
			if strings.Contains(line, "]") {
				inDepsArray = false
			}
			for _, item := range extractQuoted(line) {
				name, spec := splitVersion(item)
				deps = append(deps, Dependency{Name: name, VersionSpec: spec})
			}
		}
		if inPoetryTable && strings.Contains(line, "=") {
			name := strings.TrimSpace(strings.SplitN(line, "=", 2)[0])
			if name == "" || name == "python" || strings.HasPrefix(name, "#") {
				continue
			}
			spec := strings.Trim(strings.TrimSpace(strings.SplitN(line, "=", 2)[1]), `"'`)
			deps = append(deps, Dependency{Name: name, VersionSpec: spec})
		}
	}
	return deps, nil
}

func extractQuoted(line string) []string {
	var out []string
	for {
		i := strings.IndexAny(line, `"'`)
		if i < 0 {
			return out
		}
		quote := line[i]
		rest := line[i+1:]
		j := strings.IndexByte(rest, quote)
		if j < 0 {
			return out
		}
		if item := strings.TrimSpace(rest[:j]); item != "" {
			out = append(out, item)
		}
		line = rest[j+1:]
	}
}

func parsePackageJSON(path string) ([]Dependency, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse package.json: %w", err)
	}
	var deps []Dependency
	for name, spec := range doc.Dependencies {
		deps = append(deps, Dependency{Name: name, VersionSpec: spec})
	}
	for name, spec := range doc.DevDependencies {
		deps = append(deps, Dependency{Name: name, VersionSpec: spec})
	}
	return deps, nil
}

func parseGoMod(path string) ([]Dependency, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var deps []Dependency
	var inRequire bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "require ("):
			inRequire = true
			continue
		case inRequire && line == ")":
			inRequire = false
			continue
		case strings.HasPrefix(line, "require "):
			line = strings.TrimPrefix(line, "require ")
		case !inRequire:
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || strings.HasPrefix(fields[0], "//") {
			continue
		}
		deps = append(deps, Dependency{Name: fields[0], VersionSpec: fields[1]})
	}
	return deps, scanner.Err()
}

func parseCargoToml(path string) ([]Dependency, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var deps []Dependency
	var inDeps bool
	for _, raw := range strings.Split(string(b), "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "[") {
			section := strings.Trim(line, "[]")
			inDeps = section == "dependencies" || section == "dev-dependencies" ||
				strings.HasSuffix(section, ".dependencies")
			continue
		}
		if !inDeps || line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, "=") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		name := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		spec := ""
		if strings.HasPrefix(val, `"`) {
			spec = strings.Trim(val, `"`)
		} else if i := strings.Index(val, `version = "`); i >= 0 {
			rest := val[i+len(`version = "`):]
			if j := strings.IndexByte(rest, '"'); j >= 0 {
				spec = rest[:j]
			}
		}
		deps = append(deps, Dependency{Name: name, VersionSpec: spec})
	}
	return deps, nil
}
