package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/repograph/repograph/internal/graph"
	"github.com/repograph/repograph/internal/graph/memsink"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func depMap(deps []Dependency) map[string]Dependency {
	out := make(map[string]Dependency, len(deps))
	for _, d := range deps {
		out[d.Name] = d
	}
	return out
}

func TestExtractRequirements(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "requirements.txt"), `
# comment
loguru==0.7.2
tree-sitter>=0.21  # inline comment
uvicorn[standard]~=0.29
typer ; python_version >= "3.10"
-r extra.txt
`)

	deps, err := Extract(dir)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	got := depMap(deps)
	if len(got) != 4 {
		t.Fatalf("got %d deps: %v", len(got), got)
	}
	if got["loguru"].VersionSpec != "==0.7.2" {
		t.Errorf("loguru spec = %q", got["loguru"].VersionSpec)
	}
	if _, ok := got["uvicorn"]; !ok {
		t.Error("extras should be stripped from name")
	}
	if got["typer"].VersionSpec != "" {
		t.Errorf("typer spec = %q, want empty", got["typer"].VersionSpec)
	}
}

func TestExtractPyproject(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pyproject.toml"), `
[project]
name = "demo"
dependencies = [
    "requests>=2.31",
    "pydantic==2.7.0",
]

[tool.poetry.dependencies]
python = "^3.11"
click = "^8.1"
`)

	deps, err := Extract(dir)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	got := depMap(deps)
	if got["requests"].VersionSpec != ">=2.31" {
		t.Errorf("requests = %+v", got["requests"])
	}
	if _, ok := got["python"]; ok {
		t.Error("python pin should be excluded")
	}
	if got["click"].VersionSpec != "^8.1" {
		t.Errorf("click = %+v", got["click"])
	}
}

func TestExtractGoModAndPackageJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "go.mod"), `module example.com/demo

go 1.22

require (
	github.com/spf13/cobra v1.8.0
	golang.org/x/sync v0.7.0 // indirect
)

require gopkg.in/yaml.v3 v3.0.1
`)
	writeFile(t, filepath.Join(dir, "package.json"), `{
  "dependencies": {"react": "^18.2.0"},
  "devDependencies": {"vitest": "^1.0.0"}
}`)

	deps, err := Extract(dir)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	got := depMap(deps)
	for _, name := range []string{"github.com/spf13/cobra", "golang.org/x/sync", "gopkg.in/yaml.v3", "react", "vitest"} {
		if _, ok := got[name]; !ok {
			t.Errorf("missing dependency %s in %v", name, got)
		}
	}
}

func TestExtractCargoToml(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Cargo.toml"), `
[package]
name = "demo"

[dependencies]
serde = { version = "1.0", features = ["derive"] }
tokio = "1.37"

[dev-dependencies]
criterion = "0.5"
`)

	deps, err := Extract(dir)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	got := depMap(deps)
	if got["serde"].VersionSpec != "1.0" {
		t.Errorf("serde = %+v", got["serde"])
	}
	if got["tokio"].VersionSpec != "1.37" {
		t.Errorf("tokio = %+v", got["tokio"])
	}
	if _, ok := got["criterion"]; !ok {
		t.Error("dev-dependencies should be included")
	}
}

func TestProcessEmitsEntitiesAndEdges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "requirements.txt"), "flask==3.0\n")

	sink := memsink.New()
	if err := Process(dir, "myproj", sink); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := sink.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	pkg, ok := sink.FindEntity(graph.KindExternalPackage, "flask")
	if !ok {
		t.Fatal("flask entity missing")
	}
	if pkg.Properties["version_spec"] != "==3.0" {
		t.Errorf("version_spec = %v", pkg.Properties["version_spec"])
	}
	if pkg.FilePath != "" {
		t.Error("external package must have no file path")
	}
	if !sink.HasRelationship(graph.RelDependsOnExternal, "myproj", "flask") {
		t.Error("DEPENDS_ON_EXTERNAL edge missing")
	}
}
